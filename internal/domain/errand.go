package domain

import (
	"fmt"
	"strings"
	"time"
)

// ErrandStatus represents the lifecycle state of a one-to-one task contract.
type ErrandStatus string

const (
	ErrandOpen                 ErrandStatus = "OPEN"
	ErrandAssigned             ErrandStatus = "ASSIGNED"
	ErrandAwaitingConfirmation ErrandStatus = "AWAITING_CONFIRMATION"
	ErrandCompleted            ErrandStatus = "COMPLETED"
	ErrandCancelled            ErrandStatus = "CANCELLED"
)

func (s ErrandStatus) String() string { return string(s) }

func (s ErrandStatus) IsValid() bool {
	switch s {
	case ErrandOpen, ErrandAssigned, ErrandAwaitingConfirmation, ErrandCompleted, ErrandCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the errand can never transition again.
func (s ErrandStatus) IsTerminal() bool {
	return s == ErrandCompleted || s == ErrandCancelled
}

// IsActive reports whether the errand counts against a helper's concurrent
// errand limit.
func (s ErrandStatus) IsActive() bool {
	return s == ErrandAssigned || s == ErrandAwaitingConfirmation
}

// RequiresHelper reports whether AssignedHelperID must be set in this state.
func (s ErrandStatus) RequiresHelper() bool {
	switch s {
	case ErrandAssigned, ErrandAwaitingConfirmation, ErrandCompleted:
		return true
	}
	return false
}

func ParseErrandStatusFromString(s string) (ErrandStatus, error) {
	st := ErrandStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid errand status %q", ErrValidation, s)
	}
	return st, nil
}

// ApplicationStatus represents the state of a helper's application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationAccepted ApplicationStatus = "ACCEPTED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

func (s ApplicationStatus) String() string { return string(s) }

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationPending, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

// Errand is a one-to-one task contract between a requester and a helper.
// AssignedHelperID is set if and only if the status requires a helper;
// PaymentReleased flips to true at most once, on completion.
type Errand struct {
	ID                 string       `gorm:"type:uuid;primaryKey"`
	RequesterID        string       `gorm:"type:uuid;not null"`
	Title              string       `gorm:"type:varchar(255);not null"`
	Budget             int64        `gorm:"not null"`
	Status             ErrandStatus `gorm:"type:varchar(25);not null"`
	AssignedHelperID   *string      `gorm:"type:uuid"`
	RequesterConfirmed bool         `gorm:"not null;default:false"`
	HelperConfirmed    bool         `gorm:"not null;default:false"`
	PaymentReleased    bool         `gorm:"not null;default:false"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (e *Errand) Validate() error {
	if strings.TrimSpace(e.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if e.Budget <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrValidation)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("%w: invalid errand status %q", ErrValidation, e.Status)
	}
	hasHelper := e.AssignedHelperID != nil && strings.TrimSpace(*e.AssignedHelperID) != ""
	if e.Status.RequiresHelper() != hasHelper {
		return fmt.Errorf("%w: assigned helper does not match status %q", ErrValidation, e.Status)
	}
	return nil
}

// Application is a helper's offer to take an errand. At most one ACCEPTED
// application exists per errand.
type Application struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	ErrandID    string            `gorm:"type:uuid;not null"`
	HelperID    string            `gorm:"type:uuid;not null"`
	OfferAmount *int64            `gorm:""`
	Message     string            `gorm:"type:text"`
	Status      ApplicationStatus `gorm:"type:varchar(10);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Application) Validate() error {
	if strings.TrimSpace(a.ErrandID) == "" {
		return fmt.Errorf("%w: errand id is required", ErrValidation)
	}
	if strings.TrimSpace(a.HelperID) == "" {
		return fmt.Errorf("%w: helper id is required", ErrValidation)
	}
	if a.OfferAmount != nil && *a.OfferAmount <= 0 {
		return fmt.Errorf("%w: offer amount must be positive", ErrValidation)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: invalid application status %q", ErrValidation, a.Status)
	}
	return nil
}

// HelperRating is the requester's rating of a helper after completion.
// One rating per (errand, rater) pair; a second call updates in place.
type HelperRating struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ErrandID  string `gorm:"type:uuid;not null"`
	RaterID   string `gorm:"type:uuid;not null"`
	HelperID  string `gorm:"type:uuid;not null"`
	Rating    int    `gorm:"not null"`
	Comment   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *HelperRating) Validate() error {
	if strings.TrimSpace(r.ErrandID) == "" {
		return fmt.Errorf("%w: errand id is required", ErrValidation)
	}
	if strings.TrimSpace(r.RaterID) == "" {
		return fmt.Errorf("%w: rater id is required", ErrValidation)
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	return nil
}
