package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Warehouse kinds a profile can point at.
const (
	WarehouseBigQuery  = "bigquery"
	WarehouseSnowflake = "snowflake"
	WarehousePostgres  = "postgres"
)

// Snowflake auth methods.
const (
	AuthKeyPair   = "KEY_PAIR"
	AuthUserLogin = "USER_LOGIN"
)

// Config represents the application configuration.
type Config struct {
	Profiles    []Profile   `mapstructure:"profiles" yaml:"profiles"`
	Preferences Preferences `mapstructure:"preferences" yaml:"preferences"`
}

// Profile is a saved warehouse connection. Only the fields of its warehouse
// kind are used.
type Profile struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Warehouse string `mapstructure:"warehouse" yaml:"warehouse"`
	// Dataset is the default dataset (BigQuery) or schema for unqualified tables.
	Dataset string `mapstructure:"dataset" yaml:"dataset,omitempty"`

	// BigQuery
	Project         string `mapstructure:"project" yaml:"project,omitempty"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	Location        string `mapstructure:"location" yaml:"location,omitempty"`
	StagingBucket   string `mapstructure:"staging_bucket" yaml:"staging_bucket,omitempty"`

	// Snowflake
	Account              string `mapstructure:"account" yaml:"account,omitempty"`
	Auth                 string `mapstructure:"auth" yaml:"auth,omitempty"`
	PrivateKeyPath       string `mapstructure:"private_key_path" yaml:"private_key_path,omitempty"`
	PrivateKeyPassphrase string `mapstructure:"private_key_passphrase" yaml:"private_key_passphrase,omitempty"`
	WarehouseName        string `mapstructure:"warehouse_name" yaml:"warehouse_name,omitempty"`
	Role                 string `mapstructure:"role" yaml:"role,omitempty"`
	Schema               string `mapstructure:"schema" yaml:"schema,omitempty"`

	// Snowflake and Postgres
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database,omitempty"`

	// Postgres
	Host    string `mapstructure:"host" yaml:"host,omitempty"`
	Port    int    `mapstructure:"port" yaml:"port,omitempty"`
	SSLMode string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
}

// Preferences holds user preferences.
type Preferences struct {
	DefaultProfile string `mapstructure:"default_profile" yaml:"default_profile"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
	AuditColumn    string `mapstructure:"audit_column" yaml:"audit_column,omitempty"`
}

// Validate reports every missing or invalid parameter of the profile.
func (p Profile) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(p.Name) == "" {
		result = multierror.Append(result, errors.New("name is required"))
	}

	switch p.Warehouse {
	case WarehouseBigQuery:
		if p.Project == "" {
			result = multierror.Append(result, errors.New("project is required"))
		}
	case WarehouseSnowflake:
		if p.Account == "" {
			result = multierror.Append(result, errors.New("account is required"))
		}
		if p.User == "" {
			result = multierror.Append(result, errors.New("user is required"))
		}
		switch strings.ToUpper(p.Auth) {
		case AuthKeyPair:
			if p.PrivateKeyPath == "" {
				result = multierror.Append(result, errors.New("private_key_path is required for KEY_PAIR"))
			}
		case AuthUserLogin:
		default:
			result = multierror.Append(result, fmt.Errorf("auth %q must be KEY_PAIR or USER_LOGIN", p.Auth))
		}
	case WarehousePostgres:
		if p.Host == "" {
			result = multierror.Append(result, errors.New("host is required"))
		}
		if p.Database == "" {
			result = multierror.Append(result, errors.New("database is required"))
		}
		if p.Port < 0 || p.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("port %d is out of range", p.Port))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("warehouse %q must be bigquery, snowflake or postgres", p.Warehouse))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return nil
}

// DefaultDataset returns the dataset used for unqualified table names, or
// "" to fall back to the application default.
func (p Profile) DefaultDataset() string {
	if p.Dataset != "" {
		return p.Dataset
	}
	switch p.Warehouse {
	case WarehouseSnowflake:
		if p.Schema != "" {
			return p.Schema
		}
		return "PUBLIC"
	case WarehousePostgres:
		return "public"
	}
	return ""
}

// DSN builds a PostgreSQL connection string from the profile.
func (p Profile) DSN() string {
	u := url.URL{Scheme: "postgresql", Host: p.Host, Path: "/" + p.Database}
	if p.Port > 0 {
		u.Host += ":" + strconv.Itoa(p.Port)
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// DisplayString returns a human-readable summary of the profile.
func (p Profile) DisplayString() string {
	switch p.Warehouse {
	case WarehouseBigQuery:
		s := "bigquery://" + p.Project
		if p.Location != "" {
			s += " (" + p.Location + ")"
		}
		return s
	case WarehouseSnowflake:
		s := "snowflake://" + p.User + "@" + p.Account
		if p.Database != "" {
			s += "/" + p.Database
		}
		return s
	case WarehousePostgres:
		s := p.Host
		if p.Port > 0 {
			s += ":" + strconv.Itoa(p.Port)
		}
		s += "/" + p.Database
		if p.User != "" {
			s = p.User + "@" + s
		}
		return "postgres://" + s
	}
	return p.Warehouse
}

// ParseDSN parses a PostgreSQL connection string into a profile.
func ParseDSN(dsn string) (Profile, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Profile{}, fmt.Errorf("invalid DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return Profile{}, fmt.Errorf("invalid DSN: scheme %q is not postgres", u.Scheme)
	}

	p := Profile{
		Warehouse: WarehousePostgres,
		Host:      u.Hostname(),
		Database:  strings.TrimPrefix(u.Path, "/"),
		SSLMode:   u.Query().Get("sslmode"),
	}
	if u.User != nil {
		p.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			p.Password = pw
		}
	}
	if portStr := u.Port(); portStr != "" {
		p.Port, _ = strconv.Atoi(portStr)
	}
	if p.Port == 0 {
		p.Port = 5432
	}

	p.Name = fmt.Sprintf("postgres-%s-%d-%s", p.Host, p.Port, p.Database)
	return p, nil
}

// Profile returns the named profile.
func (cfg *Config) Profile(name string) (*Profile, error) {
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == name {
			return &cfg.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %q not found", name)
}

// HasProfile checks if a profile with the given name already exists.
func (cfg *Config) HasProfile(name string) bool {
	_, err := cfg.Profile(name)
	return err == nil
}

// AddProfile validates and appends a profile. The first profile becomes the
// default.
func (cfg *Config) AddProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if cfg.HasProfile(p.Name) {
		return fmt.Errorf("profile %q already exists", p.Name)
	}
	cfg.Profiles = append(cfg.Profiles, p)
	if cfg.Preferences.DefaultProfile == "" {
		cfg.Preferences.DefaultProfile = p.Name
	}
	return nil
}

// RemoveProfile deletes the named profile and clears it as default.
func (cfg *Config) RemoveProfile(name string) error {
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == name {
			cfg.Profiles = append(cfg.Profiles[:i], cfg.Profiles[i+1:]...)
			if cfg.Preferences.DefaultProfile == name {
				cfg.Preferences.DefaultProfile = ""
			}
			return nil
		}
	}
	return fmt.Errorf("profile %q not found", name)
}

// SetDefault marks an existing profile as the default.
func (cfg *Config) SetDefault(name string) error {
	if !cfg.HasProfile(name) {
		return fmt.Errorf("profile %q not found", name)
	}
	cfg.Preferences.DefaultProfile = name
	return nil
}

// ActiveProfile returns the named profile, or the default one when name is
// empty.
func (cfg *Config) ActiveProfile(name string) (*Profile, error) {
	if name != "" {
		return cfg.Profile(name)
	}
	if p := DefaultProfile(cfg); p != nil {
		return p, nil
	}
	return nil, errors.New("no profiles configured; add one with `bqpipe profiles add`")
}

// SlogLevel maps a level name to an slog.Level. Unknown names are info.
func SlogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
