package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// STRESSOOR_MAIL_SERVER.
	EnvPrefix = "STRESSOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultFormat is the default report format.
	DefaultFormat = "text"

	// DefaultMailPort is the SMTP relay port.
	DefaultMailPort = 25

	// DefaultSubject is the default mail subject.
	DefaultSubject = "Summary of sleepgraph batch tests"

	// DefaultSummaryPath is the hosted path template of a kernel summary.
	DefaultSummaryPath = "pm-graph-test/{kernel}/summary_{kernel}"

	// DefaultTestPath is the hosted path template of a single run.
	DefaultTestPath = "pm-graph-test/{kernel}/{host}/{mode}-x{count}-summary"

	// DefaultUploadConcurrency bounds parallel S3 uploads.
	DefaultUploadConcurrency = 8

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP request budget.
	DefaultRequestsPerMinute = 60

	// DefaultSQLitePath is the default index database file.
	DefaultSQLitePath = "stressoor.db"
)

var validFormats = map[string]struct{}{
	"text":  {},
	"html":  {},
	"sheet": {},
	"json":  {},
	"yaml":  {},
}

// Config is the root configuration for stressoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Summary SummaryConfig `yaml:"summary" mapstructure:"summary"`
	Mail    MailConfig    `yaml:"mail" mapstructure:"mail"`
	Sheets  SheetsConfig  `yaml:"sheets" mapstructure:"sheets"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// SummaryConfig controls what a scan extracts and how it is rendered.
// OutputOwner is an optional "UID:GID" applied to the written report.
type SummaryConfig struct {
	Format      string `yaml:"format" mapstructure:"format"`
	Devices     bool   `yaml:"devices" mapstructure:"devices"`
	Issues      bool   `yaml:"issues" mapstructure:"issues"`
	URLPrefix   string `yaml:"url_prefix,omitempty" mapstructure:"url_prefix"`
	Output      string `yaml:"output,omitempty" mapstructure:"output"`
	OutputOwner string `yaml:"output_owner,omitempty" mapstructure:"output_owner"`
}

// MailConfig describes the SMTP relay used to deliver a report.
// Receivers is a semicolon separated list of addresses.
type MailConfig struct {
	Server    string `yaml:"server,omitempty" mapstructure:"server"`
	Port      int    `yaml:"port" mapstructure:"port"`
	Sender    string `yaml:"sender,omitempty" mapstructure:"sender"`
	Receivers string `yaml:"receivers,omitempty" mapstructure:"receivers"`
	Subject   string `yaml:"subject" mapstructure:"subject"`
}

// IsConfigured reports whether enough is set to send mail.
func (c *MailConfig) IsConfigured() bool {
	return c.Server != ""
}

// Validate checks the mail settings.
func (c *MailConfig) Validate() error {
	if !c.IsConfigured() {
		return nil
	}

	if c.Sender == "" {
		return errors.New("mail.sender is required when mail.server is set")
	}

	if strings.Trim(c.Receivers, "; ") == "" {
		return errors.New("mail.receivers is required when mail.server is set")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mail.port %d is out of range", c.Port)
	}

	return nil
}

// SheetsConfig configures the hosted Google spreadsheet integration.
// CredentialsFile is a service account key; application default
// credentials are used when it is empty.
type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	CredentialsFile string `yaml:"credentials_file,omitempty" mapstructure:"credentials_file"`
	SummaryPath     string `yaml:"summary_path" mapstructure:"summary_path"`
	TestPath        string `yaml:"test_path" mapstructure:"test_path"`
}

// UploadConfig contains publication settings.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// Validate checks the S3 settings when enabled.
func (c *S3UploadConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Bucket == "" {
		return errors.New("upload.s3.bucket is required when upload.s3 is enabled")
	}

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("upload.s3 access_key_id and secret_access_key must be set together")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("upload.s3.concurrency must be positive, got %d", c.Concurrency)
	}

	return nil
}

// IndexConfig configures the run index database.
type IndexConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Validate checks the database settings.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required")
		}
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return errors.New("database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	return nil
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// newViper returns a viper instance with defaults and env overrides set.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("summary.format", DefaultFormat)
	v.SetDefault("summary.devices", false)
	v.SetDefault("summary.issues", false)
	v.SetDefault("summary.url_prefix", "")
	v.SetDefault("summary.output", "")
	v.SetDefault("summary.output_owner", "")

	v.SetDefault("mail.server", "")
	v.SetDefault("mail.port", DefaultMailPort)
	v.SetDefault("mail.sender", "")
	v.SetDefault("mail.receivers", "")
	v.SetDefault("mail.subject", DefaultSubject)

	v.SetDefault("sheets.enabled", false)
	v.SetDefault("sheets.credentials_file", "")
	v.SetDefault("sheets.summary_path", DefaultSummaryPath)
	v.SetDefault("sheets.test_path", DefaultTestPath)

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.force_path_style", false)
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.s3.storage_class", "")
	v.SetDefault("upload.s3.acl", "")
	v.SetDefault("upload.s3.concurrency", DefaultUploadConcurrency)

	v.SetDefault("index.enabled", false)
	v.SetDefault("index.database.driver", "sqlite")
	v.SetDefault("index.database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("index.database.postgres.host", "")
	v.SetDefault("index.database.postgres.port", 5432)
	v.SetDefault("index.database.postgres.user", "")
	v.SetDefault("index.database.postgres.password", "")
	v.SetDefault("index.database.postgres.database", "")
	v.SetDefault("index.database.postgres.ssl_mode", "")

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", DefaultRequestsPerMinute)

	return v
}

// Load reads a configuration file from the given path and applies
// environment overrides. An empty path yields the defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Summary.URLPrefix = strings.TrimRight(cfg.Summary.URLPrefix, "/")

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if _, ok := validFormats[c.Summary.Format]; !ok {
		return fmt.Errorf("summary.format: unknown format %q", c.Summary.Format)
	}

	if err := c.Mail.Validate(); err != nil {
		return err
	}

	if err := c.Upload.S3.Validate(); err != nil {
		return err
	}

	if c.Index.Enabled {
		if err := c.Index.Database.Validate(); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute < 1 {
		return errors.New("server.rate_limit.requests_per_minute must be positive")
	}

	return nil
}
