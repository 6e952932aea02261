package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Settings is the operator-editable configuration, grouped by concern.
type Settings struct {
	Scanner       ScannerSettings        `yaml:"scanner"`
	Products      ProductSettings        `yaml:"products"`
	ExternalAPI   ExternalAPISettings    `yaml:"external_api"`
	Notifications NotificationSettings   `yaml:"notifications"`
	Security      SecuritySettings       `yaml:"security"`
	Performance   PerformanceSettings    `yaml:"performance"`
	UI            UISettings             `yaml:"ui"`
	Backup        ReceiptStorageSettings `yaml:"backup"`
}

type ScannerSettings struct {
	DefaultQuantity int  `yaml:"default_quantity"`
	AutoAddToCart   bool `yaml:"auto_add_to_cart"`
}

type ProductSettings struct {
	DefaultVATRate  float64 `yaml:"default_vat_rate"`
	DefaultMinStock int     `yaml:"default_min_stock"`
	DefaultCategory string  `yaml:"default_category"`
}

type ExternalAPISettings struct {
	Enabled         bool   `yaml:"enabled"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func (e ExternalAPISettings) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExternalAPISettings) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

type NotificationSettings struct {
	EmailEnabled        bool         `yaml:"email_enabled"`
	Recipient           string       `yaml:"recipient"`
	DailySummaryEnabled bool         `yaml:"daily_summary_enabled"`
	DailySummaryTime    string       `yaml:"daily_summary_time"`
	SMTP                SMTPSettings `yaml:"smtp"`
}

type SMTPSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type SecuritySettings struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds"`
}

func (s SecuritySettings) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutSeconds) * time.Second
}

type PerformanceSettings struct {
	CleanupSchedule  string `yaml:"cleanup_schedule"`
	AutoSaveSchedule string `yaml:"autosave_schedule"`
}

type UISettings struct {
	Currency      string `yaml:"currency"`
	ReceiptPrefix string `yaml:"receipt_prefix"`
	ShopName      string `yaml:"shop_name"`
	Timezone      string `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (u UISettings) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ReceiptStorageSettings struct {
	Driver   string     `yaml:"driver"`
	LocalDir string     `yaml:"local_dir"`
	BaseURL  string     `yaml:"base_url"`
	S3       S3Settings `yaml:"s3"`
}

type S3Settings struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

func DefaultSettings() Settings {
	return Settings{
		Scanner: ScannerSettings{DefaultQuantity: 1, AutoAddToCart: true},
		Products: ProductSettings{
			DefaultVATRate:  19,
			DefaultMinStock: 5,
		},
		ExternalAPI: ExternalAPISettings{
			BaseURL:         "https://world.openfoodfacts.org/api/v2/product",
			TimeoutSeconds:  5,
			CacheTTLSeconds: 86400,
		},
		Notifications: NotificationSettings{
			DailySummaryTime: "20:00",
			SMTP:             SMTPSettings{Port: 587, FromName: "Automat POS"},
		},
		Security: SecuritySettings{
			MaxConcurrentSessions: 10,
			SessionTimeoutSeconds: 3600,
		},
		Performance: PerformanceSettings{
			CleanupSchedule:  "@hourly",
			AutoSaveSchedule: "@every 5m",
		},
		UI: UISettings{
			Currency:      "EUR",
			ReceiptPrefix: "AMP",
			ShopName:      "Automat POS",
			Timezone:      "UTC",
		},
		Backup: ReceiptStorageSettings{
			Driver:   "local",
			LocalDir: "data/receipts",
			BaseURL:  "/receipts",
		},
	}
}

// LoadSettings overlays the YAML file at path on top of DefaultSettings.
// Keys the file does not name keep their defaults; a missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func (s Settings) Validate() error {
	var problems []string
	if s.Security.MaxConcurrentSessions < 1 {
		problems = append(problems, "security.max_concurrent_sessions must be positive")
	}
	if s.Security.SessionTimeoutSeconds < 1 {
		problems = append(problems, "security.session_timeout_seconds must be positive")
	}
	if s.ExternalAPI.Enabled {
		if s.ExternalAPI.TimeoutSeconds < 1 {
			problems = append(problems, "external_api.timeout_seconds must be positive")
		}
		if strings.TrimSpace(s.ExternalAPI.BaseURL) == "" {
			problems = append(problems, "external_api.base_url is required when enabled")
		}
	}
	if s.Products.DefaultVATRate < 0 {
		problems = append(problems, "products.default_vat_rate must not be negative")
	}
	if strings.TrimSpace(s.UI.ReceiptPrefix) == "" {
		problems = append(problems, "ui.receipt_prefix is required")
	}
	if s.UI.Timezone != "" {
		if _, err := time.LoadLocation(s.UI.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("ui.timezone %q is unknown", s.UI.Timezone))
		}
	}
	if _, err := time.Parse("15:04", s.Notifications.DailySummaryTime); err != nil {
		problems = append(problems, "notifications.daily_summary_time must be HH:MM")
	}
	switch s.Backup.Driver {
	case "local":
		if strings.TrimSpace(s.Backup.LocalDir) == "" {
			problems = append(problems, "backup.local_dir is required for the local driver")
		}
	case "s3":
		if strings.TrimSpace(s.Backup.S3.Bucket) == "" {
			problems = append(problems, "backup.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("backup.driver %q is not one of local, s3", s.Backup.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}
