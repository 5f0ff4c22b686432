// Package config loads the commentsd configuration. Values come from
// defaults, then an optional TOML file, then COMMENTS_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	// Store selects the document store: "postgres" or "memory"
	// (COMMENTS_STORE).
	Store    string   `toml:"store"`
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	NATS     NATS     `toml:"nats"`
	Auth     Auth     `toml:"auth"`
	Log      Log      `toml:"log"`
}

type Server struct {
	Addr            string        `toml:"addr"`             // COMMENTS_SERVER_ADDR (default ":8080")
	PublicURL       string        `toml:"public_url"`       // COMMENTS_PUBLIC_URL, base of in-memory attachment URLs
	ReadTimeout     time.Duration `toml:"read_timeout"`     // COMMENTS_SERVER_READ_TIMEOUT
	WriteTimeout    time.Duration `toml:"write_timeout"`    // COMMENTS_SERVER_WRITE_TIMEOUT
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"` // COMMENTS_SERVER_SHUTDOWN_TIMEOUT
	CORSOrigins     []string      `toml:"cors_origins"`     // COMMENTS_CORS_ORIGINS, comma separated
	MaxUploadBytes  int64         `toml:"max_upload_bytes"` // COMMENTS_MAX_UPLOAD_BYTES
}

type Database struct {
	URL string `toml:"url"` // COMMENTS_DATABASE_URL (required for the postgres store)
}

type Redis struct {
	URL     string        `toml:"url"`      // COMMENTS_REDIS_URL (optional, empty = no page cache)
	PageTTL time.Duration `toml:"page_ttl"` // COMMENTS_REDIS_PAGE_TTL
}

type S3 struct {
	Bucket          string `toml:"bucket"`            // COMMENTS_S3_BUCKET (optional, empty = in-process attachments)
	Region          string `toml:"region"`            // COMMENTS_S3_REGION
	Endpoint        string `toml:"endpoint"`          // COMMENTS_S3_ENDPOINT, for MinIO
	PublicBaseURL   string `toml:"public_base_url"`   // COMMENTS_S3_PUBLIC_BASE_URL
	AccessKeyID     string `toml:"access_key_id"`     // COMMENTS_S3_ACCESS_KEY_ID
	SecretAccessKey string `toml:"secret_access_key"` // COMMENTS_S3_SECRET_ACCESS_KEY
}

type NATS struct {
	URL string `toml:"url"` // COMMENTS_NATS_URL (optional, empty = no events)
}

type Auth struct {
	JWTSecret string        `toml:"jwt_secret"` // COMMENTS_JWT_SECRET
	Issuer    string        `toml:"issuer"`     // COMMENTS_JWT_ISSUER
	Leeway    time.Duration `toml:"leeway"`     // COMMENTS_JWT_LEEWAY
}

type Log struct {
	Level  string `toml:"level"`  // COMMENTS_LOG_LEVEL (debug, info, warn, error)
	Format string `toml:"format"` // COMMENTS_LOG_FORMAT (text or json)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Store: StorePostgres,
		Server: Server{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Redis: Redis{PageTTL: time.Minute},
		S3:    S3{Region: "us-east-1"},
		Auth:  Auth{Leeway: 30 * time.Second},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path names an optional TOML file; an empty
// path skips it.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Store, "COMMENTS_STORE")
	setString(&c.Server.Addr, "COMMENTS_SERVER_ADDR")
	setString(&c.Server.PublicURL, "COMMENTS_PUBLIC_URL")
	setString(&c.Database.URL, "COMMENTS_DATABASE_URL")
	setString(&c.Redis.URL, "COMMENTS_REDIS_URL")
	setString(&c.S3.Bucket, "COMMENTS_S3_BUCKET")
	setString(&c.S3.Region, "COMMENTS_S3_REGION")
	setString(&c.S3.Endpoint, "COMMENTS_S3_ENDPOINT")
	setString(&c.S3.PublicBaseURL, "COMMENTS_S3_PUBLIC_BASE_URL")
	setString(&c.S3.AccessKeyID, "COMMENTS_S3_ACCESS_KEY_ID")
	setString(&c.S3.SecretAccessKey, "COMMENTS_S3_SECRET_ACCESS_KEY")
	setString(&c.NATS.URL, "COMMENTS_NATS_URL")
	setString(&c.Auth.JWTSecret, "COMMENTS_JWT_SECRET")
	setString(&c.Auth.Issuer, "COMMENTS_JWT_ISSUER")
	setString(&c.Log.Level, "COMMENTS_LOG_LEVEL")
	setString(&c.Log.Format, "COMMENTS_LOG_FORMAT")

	if v, ok := os.LookupEnv("COMMENTS_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("COMMENTS_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("COMMENTS_MAX_UPLOAD_BYTES: %w", err)
		}
		c.Server.MaxUploadBytes = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"COMMENTS_SERVER_READ_TIMEOUT", &c.Server.ReadTimeout},
		{"COMMENTS_SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout},
		{"COMMENTS_SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout},
		{"COMMENTS_REDIS_PAGE_TTL", &c.Redis.PageTTL},
		{"COMMENTS_JWT_LEEWAY", &c.Auth.Leeway},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("COMMENTS_DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	lvl, _ := l.level()
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
