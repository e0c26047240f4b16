package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // SILO_DATABASE_URL (required)
	HTTPAddr    string // SILO_HTTP_ADDR (default ":8080")
	NATSURL     string // SILO_NATS_URL (optional, empty = no bus mirror)
	AuthToken   string // SILO_AUTH_TOKEN (optional, empty = auth disabled)
	AdminToken  string // SILO_ADMIN_TOKEN (optional, empty = log surface open)

	// Trigger dispatch settings
	DispatchWorkers int           // SILO_DISPATCH_WORKERS (default 4)
	DispatchQueue   int           // SILO_DISPATCH_QUEUE (default 1024)
	HandlerTimeout  time.Duration // SILO_HANDLER_TIMEOUT (default 30s)
	BusDispatch     bool          // SILO_BUS_DISPATCH (feed dispatcher from the bus; needs SILO_NATS_URL)

	// Notification settings
	TemplatesPath string // SILO_TEMPLATES_PATH (optional TOML template catalog)
	NotifyMode    string // SILO_NOTIFY_MODE ("log" writes to the log, "off" discards)

	// Session settings
	SessionIdleClose time.Duration // SILO_SESSION_IDLE_CLOSE (default 30m; 0 = disabled)

	// Backup settings
	BackupInterval   time.Duration // SILO_BACKUP_INTERVAL (default 3m; 0 = disabled)
	BackupS3Bucket   string        // SILO_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string        // SILO_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string        // SILO_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string        // SILO_BACKUP_S3_KEY (default "silo/backup.jsonl")
	BackupPath       string        // SILO_BACKUP_PATH (enables local-file backup when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("SILO_DATABASE_URL"),
		HTTPAddr:         envOrDefault("SILO_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("SILO_NATS_URL"),
		AuthToken:        os.Getenv("SILO_AUTH_TOKEN"),
		AdminToken:       os.Getenv("SILO_ADMIN_TOKEN"),
		TemplatesPath:    os.Getenv("SILO_TEMPLATES_PATH"),
		NotifyMode:       envOrDefault("SILO_NOTIFY_MODE", "log"),
		BackupS3Bucket:   os.Getenv("SILO_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("SILO_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("SILO_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Key:      envOrDefault("SILO_BACKUP_S3_KEY", "silo/backup.jsonl"),
		BackupPath:       os.Getenv("SILO_BACKUP_PATH"),
		BusDispatch:      os.Getenv("SILO_BUS_DISPATCH") == "1" || os.Getenv("SILO_BUS_DISPATCH") == "true",
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("SILO_DATABASE_URL is required")
	}
	if c.BusDispatch && c.NATSURL == "" {
		return nil, fmt.Errorf("SILO_BUS_DISPATCH requires SILO_NATS_URL")
	}
	if c.NotifyMode != "log" && c.NotifyMode != "off" {
		return nil, fmt.Errorf("SILO_NOTIFY_MODE must be %q or %q, got %q", "log", "off", c.NotifyMode)
	}

	var err error
	if c.DispatchWorkers, err = envInt("SILO_DISPATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if c.DispatchQueue, err = envInt("SILO_DISPATCH_QUEUE", 1024); err != nil {
		return nil, err
	}
	if c.HandlerTimeout, err = envDuration("SILO_HANDLER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.SessionIdleClose, err = envDuration("SILO_SESSION_IDLE_CLOSE", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.BackupInterval, err = envDuration("SILO_BACKUP_INTERVAL", 3*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
