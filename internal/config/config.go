// Package config loads runtime settings from the environment, with a .env
// file honored for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the scheduler process needs to run. Secrets may
// arrive either directly in the environment or as Secrets Manager ids
// resolved through the secret cache at startup.
type Config struct {
	DBPath    string
	Port      int
	LogLevel  string
	LogFormat string

	// Tick tuning.
	BatchLimit       int
	EvaluateInterval time.Duration
	DispatchInterval time.Duration
	BriefingInterval time.Duration
	SendTimeout      time.Duration
	RecoveryAge      time.Duration

	// Hand-off bus. Empty RedisAddr selects the in-memory bus.
	RedisAddr     string
	RedisPassword string
	HandoffKey    string

	// Secret resolution.
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SecretTTL          time.Duration
	PostmarkTokenID    string // Secrets Manager id; overrides PostmarkToken when set
	DiscordWebhookID   string

	// Channel senders.
	PostmarkToken   string
	FromEmail       string
	DiscordWebhook  string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	// Briefing agent.
	AgentURL    string
	AgentAPIKey string

	// Encrypted off-site backup.
	BackupBucket     string
	BackupEndpoint   string
	BackupRegion     string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPassphrase string
	BackupHour       int
	BackupRetention  int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first; absence is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBPath:    envStr("MINDER_DB_PATH", "minder.db"),
		Port:      envInt("MINDER_PORT", 8080),
		LogLevel:  envStr("MINDER_LOG_LEVEL", "info"),
		LogFormat: envStr("MINDER_LOG_FORMAT", "text"),

		BatchLimit:       envInt("MINDER_BATCH_LIMIT", 100),
		EvaluateInterval: envDuration("MINDER_EVALUATE_INTERVAL", time.Minute),
		DispatchInterval: envDuration("MINDER_DISPATCH_INTERVAL", 15*time.Second),
		BriefingInterval: envDuration("MINDER_BRIEFING_INTERVAL", time.Minute),
		SendTimeout:      envDuration("MINDER_SEND_TIMEOUT", 5*time.Second),
		RecoveryAge:      envDuration("MINDER_RECOVERY_AGE", 5*time.Minute),

		RedisAddr:     envStr("MINDER_REDIS_ADDR", ""),
		RedisPassword: envStr("MINDER_REDIS_PASSWORD", ""),
		HandoffKey:    envStr("MINDER_HANDOFF_KEY", "minder:notifications"),

		AWSRegion:          envStr("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     envStr("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: envStr("AWS_SECRET_ACCESS_KEY", ""),
		SecretTTL:          envDuration("MINDER_SECRET_TTL", 15*time.Minute),
		PostmarkTokenID:    envStr("MINDER_POSTMARK_TOKEN_SECRET_ID", ""),
		DiscordWebhookID:   envStr("MINDER_DISCORD_WEBHOOK_SECRET_ID", ""),

		PostmarkToken:   envStr("MINDER_POSTMARK_TOKEN", ""),
		FromEmail:       envStr("MINDER_FROM_EMAIL", "reminders@minder.local"),
		DiscordWebhook:  envStr("MINDER_DISCORD_WEBHOOK", ""),
		VAPIDPublicKey:  envStr("MINDER_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: envStr("MINDER_VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: envStr("MINDER_VAPID_SUBSCRIBER", "mailto:admin@minder.local"),

		AgentURL:    envStr("MINDER_AGENT_URL", ""),
		AgentAPIKey: envStr("MINDER_AGENT_API_KEY", ""),

		BackupBucket:     envStr("MINDER_BACKUP_BUCKET", ""),
		BackupEndpoint:   envStr("MINDER_BACKUP_ENDPOINT", ""),
		BackupRegion:     envStr("MINDER_BACKUP_REGION", "us-east-1"),
		BackupAccessKey:  envStr("MINDER_BACKUP_ACCESS_KEY", ""),
		BackupSecretKey:  envStr("MINDER_BACKUP_SECRET_KEY", ""),
		BackupPassphrase: envStr("MINDER_BACKUP_PASSPHRASE", ""),
		BackupHour:       envInt("MINDER_BACKUP_HOUR", 3),
		BackupRetention:  envInt("MINDER_BACKUP_RETENTION_DAYS", 30),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
