package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	PaymentGatewayURL    string `env:"PAYMENT_GATEWAY_URL,required=true"`
	NotifyWebhookURL     string `env:"NOTIFY_WEBHOOK_URL,required=true"`
	ModerationServiceURL string `env:"MODERATION_SERVICE_URL"`

	ActiveErrandLimit        int   `env:"ACTIVE_ERRAND_LIMIT,default=3"`
	CreditExpiryDays         int   `env:"CREDIT_EXPIRY_DAYS,default=90"`
	MinimumWithdrawal        int64 `env:"MINIMUM_WITHDRAWAL_CENTS,default=5000"`
	SettlementMaxRetries     int   `env:"SETTLEMENT_MAX_RETRIES,default=5"`
	PaymentRatePerSec        int   `env:"PAYMENT_RATE_PER_SEC,default=50"`
	WorkerConcurrency        int   `env:"WORKER_CONCURRENCY,default=8"`
	RetryScanIntervalSec     int   `env:"RETRY_SCAN_INTERVAL_SEC,default=5"`
	DeadlineSweepIntervalSec int   `env:"DEADLINE_SWEEP_INTERVAL_SEC,default=30"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
