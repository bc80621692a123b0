package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/seedkeeper/internal/jobs"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/linkscan"
	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/qbit"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	QBittorrent   QBittorrentConfig   `yaml:"qbittorrent"`
	Paths         PathsConfig         `yaml:"paths"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Jobs          JobsConfig          `yaml:"jobs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.QBittorrent.Validate(); err != nil {
		return fmt.Errorf("qbittorrent: %w", err)
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	return c.Jobs.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel logging.Level `yaml:"log_level"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the strike ledger database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for a trusted LAN.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// QBittorrentConfig holds the torrent client connection settings.
type QBittorrentConfig struct {
	Host           string            `yaml:"host"`
	Username       string            `yaml:"username"`
	Password       string            `yaml:"password"`
	ProtectedTag   string            `yaml:"protected_tag"`
	TLSSkipVerify  bool              `yaml:"tls_skip_verify"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	LoginAttempts  int               `yaml:"login_attempts"`
	LoginBackoff   time.Duration     `yaml:"login_backoff"`
	PathMapping    PathMappingConfig `yaml:"path_mapping"`
}

// PathMappingConfig rewrites client-side content paths to local ones.
type PathMappingConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Validate validates the qBittorrent configuration.
func (c *QBittorrentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
		validation.Field(&c.LoginAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.LoginBackoff, validation.Min(time.Duration(0))),
		validation.Field(&c.PathMapping, validation.By(func(any) error {
			if (c.PathMapping.From == "") != (c.PathMapping.To == "") {
				return fmt.Errorf("from and to must both be set")
			}
			return nil
		})),
	)
}

// Client returns the connection settings for qbit.New.
func (c *QBittorrentConfig) Client() qbit.Config {
	return qbit.Config{
		Host:          c.Host,
		Username:      c.Username,
		Password:      c.Password,
		TLSSkipVerify: c.TLSSkipVerify,
		Timeout:       time.Duration(c.TimeoutSeconds) * time.Second,
		LoginAttempts: c.LoginAttempts,
		LoginBackoff:  c.LoginBackoff,
		Mapping:       qbit.Mapping{From: c.PathMapping.From, To: c.PathMapping.To},
	}
}

// PathsConfig locates the data volume. Torrents is the managed storage
// root and Media the protected library root; both live on Data.
type PathsConfig struct {
	Data     string `yaml:"data"`
	Torrents string `yaml:"torrents"`
	Media    string `yaml:"media"`
}

// Validate validates the paths configuration.
func (c *PathsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Data, validation.Required),
		validation.Field(&c.Torrents, validation.Required),
		validation.Field(&c.Media, validation.Required),
	); err != nil {
		return err
	}
	data := filepath.Clean(c.Data)
	for name, p := range map[string]string{"torrents": c.Torrents, "media": c.Media} {
		if !linkscan.Within(data, filepath.Clean(p)) {
			return fmt.Errorf("%s %q is not under data %q", name, p, c.Data)
		}
	}
	torrents, media := filepath.Clean(c.Torrents), filepath.Clean(c.Media)
	if linkscan.Within(torrents, media) || linkscan.Within(media, torrents) {
		return fmt.Errorf("torrents %q and media %q must not contain each other", c.Torrents, c.Media)
	}
	return nil
}

// NotificationsConfig holds notification targets.
type NotificationsConfig struct {
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// JobConfig holds the settings shared by every retention job.
type JobConfig struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalHours   float64 `yaml:"interval_hours"`
	RequiredStrikes int     `yaml:"required_strikes"`
	MinStrikeDays   int     `yaml:"min_strike_days"`
	Action          string  `yaml:"action"`
}

// Validate validates the job configuration.
func (c *JobConfig) Validate() error {
	return c.validate(string(jobs.ActionTest), string(jobs.ActionStop), string(jobs.ActionDelete))
}

func (c *JobConfig) validate(actions ...any) error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.IntervalHours, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.RequiredStrikes, validation.Required, validation.Min(1)),
		validation.Field(&c.MinStrikeDays, validation.Min(0)),
		validation.Field(&c.Action, validation.Required, validation.In(actions...)),
	)
}

// Interval returns the run interval.
func (c *JobConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours * float64(time.Hour))
}

// Thresholds returns the strike thresholds.
func (c *JobConfig) Thresholds() ledger.Thresholds {
	return ledger.Thresholds{RequiredStrikes: c.RequiredStrikes, MinStrikeDays: c.MinStrikeDays}
}

// ForgottenJobConfig configures delete_forgotten.
type ForgottenJobConfig struct {
	JobConfig      `yaml:",inline"`
	MinSeedingDays float64 `yaml:"min_seeding_days"`
}

// Validate validates the forgotten job configuration.
func (c *ForgottenJobConfig) Validate() error {
	if err := c.JobConfig.Validate(); err != nil {
		return err
	}
	if c.MinSeedingDays < 0 {
		return fmt.Errorf("min_seeding_days: must be no less than 0")
	}
	return nil
}

// OrphanedJobConfig configures delete_orphaned. Paths cannot be stopped.
type OrphanedJobConfig struct {
	JobConfig `yaml:",inline"`
}

// Validate validates the orphaned job configuration.
func (c *OrphanedJobConfig) Validate() error {
	return c.validate(string(jobs.ActionTest), string(jobs.ActionDelete))
}

// JobsConfig holds the three retention jobs.
type JobsConfig struct {
	Forgotten ForgottenJobConfig `yaml:"delete_forgotten"`
	Trackers  JobConfig          `yaml:"delete_not_working_trackers"`
	Orphaned  OrphanedJobConfig  `yaml:"delete_orphaned"`
}

// Validate validates every job.
func (c *JobsConfig) Validate() error {
	if err := c.Forgotten.Validate(); err != nil {
		return fmt.Errorf("jobs.%s: %w", ledger.KindForgotten, err)
	}
	if err := c.Trackers.Validate(); err != nil {
		return fmt.Errorf("jobs.%s: %w", ledger.KindNotWorkingTrackers, err)
	}
	if err := c.Orphaned.Validate(); err != nil {
		return fmt.Errorf("jobs.%s: %w", ledger.KindOrphaned, err)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
// Every job starts disabled and in test mode.
func NewDefaultConfig() *Config {
	job := func(hours float64, strikes, days int) JobConfig {
		return JobConfig{
			IntervalHours:   hours,
			RequiredStrikes: strikes,
			MinStrikeDays:   days,
			Action:          string(jobs.ActionTest),
		}
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: logging.Level(slog.LevelInfo),
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./seedkeeper.db",
		},
		QBittorrent: QBittorrentConfig{
			Host:           "http://localhost:8080",
			ProtectedTag:   "protected",
			TimeoutSeconds: 30,
			LoginAttempts:  3,
			LoginBackoff:   10 * time.Second,
		},
		Paths: PathsConfig{
			Data:     "/data",
			Torrents: "/data/torrents",
			Media:    "/data/media",
		},
		Jobs: JobsConfig{
			Forgotten: ForgottenJobConfig{JobConfig: job(24, 3, 3)},
			Trackers:  job(6, 5, 2),
			Orphaned:  OrphanedJobConfig{JobConfig: job(24, 3, 3)},
		},
	}
}
