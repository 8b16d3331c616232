package repository

import (
	"errors"
	"testing"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func TestApplyConfirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		errand        domain.Errand
		isRequester   bool
		wantStatus    domain.ErrandStatus
		wantCompleted bool
		wantChanged   bool
		wantErr       error
	}{
		{
			name:        "first confirmation awaits the other party",
			errand:      domain.Errand{Status: domain.ErrandAssigned},
			isRequester: true,
			wantStatus:  domain.ErrandAwaitingConfirmation,
			wantChanged: true,
		},
		{
			name:          "second party completes",
			errand:        domain.Errand{Status: domain.ErrandAwaitingConfirmation, RequesterConfirmed: true},
			isRequester:   false,
			wantStatus:    domain.ErrandCompleted,
			wantCompleted: true,
			wantChanged:   true,
		},
		{
			name:        "repeat by same party before completion",
			errand:      domain.Errand{Status: domain.ErrandAwaitingConfirmation, RequesterConfirmed: true},
			isRequester: true,
			wantStatus:  domain.ErrandAwaitingConfirmation,
		},
		{
			name: "repeat after completion",
			errand: domain.Errand{
				Status:             domain.ErrandCompleted,
				RequesterConfirmed: true,
				HelperConfirmed:    true,
			},
			isRequester: true,
			wantStatus:  domain.ErrandCompleted,
		},
		{
			name:        "cancelled errand",
			errand:      domain.Errand{Status: domain.ErrandCancelled},
			isRequester: true,
			wantStatus:  domain.ErrandCancelled,
			wantErr:     domain.ErrInvalidTransition,
		},
		{
			name:        "open errand",
			errand:      domain.Errand{Status: domain.ErrandOpen},
			isRequester: false,
			wantStatus:  domain.ErrandOpen,
			wantErr:     domain.ErrInvalidTransition,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			errand := tc.errand
			completed, changed, err := applyConfirmation(&errand, tc.isRequester)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("applyConfirmation() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyConfirmation() error = %v", err)
			}
			if completed != tc.wantCompleted {
				t.Fatalf("completed = %t, want %t", completed, tc.wantCompleted)
			}
			if changed != tc.wantChanged {
				t.Fatalf("changed = %t, want %t", changed, tc.wantChanged)
			}
			if errand.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", errand.Status, tc.wantStatus)
			}
		})
	}
}
