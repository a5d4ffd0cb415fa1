// Package config loads the CLI and server configuration: a YAML (or JSON)
// file, then CALLFLOW_* environment overrides. Flags are applied by the caller.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the file read when no --config flag is given.
const DefaultPath = "callflow.yaml"

// Backends accepted in store.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendLoam     = "loam"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendS3       = "s3"
	BackendRemote   = "remote"
)

// Config is the full configuration.
type Config struct {
	Collection     string `yaml:"collection" json:"collection"`
	LogLevel       string `yaml:"log_level" json:"log_level"`
	LogJSON        bool   `yaml:"log_json" json:"log_json"`
	Listen         string `yaml:"listen" json:"listen"`
	ExitEditOnSave bool   `yaml:"exit_edit_on_save" json:"exit_edit_on_save"`

	// SessionIdleTimeout evicts unused served sessions. Zero keeps the
	// default; a negative value disables eviction.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" json:"session_idle_timeout"`

	// CredentialsPath is the device credential slot (token + gate flag).
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`
	// GateHash is the sha256 hex or bcrypt hash of the PIN.
	GateHash string `yaml:"gate_hash" json:"gate_hash"`

	// EncryptionKey is a base64 AES-256 key enabling at-rest encryption.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`

	// WriteTokens are the bearer credentials the served store accepts.
	WriteTokens []string `yaml:"write_tokens" json:"write_tokens"`
	// WriteTokenHashes are sha256 hex or bcrypt hashes of accepted credentials.
	WriteTokenHashes []string `yaml:"write_token_hashes" json:"write_token_hashes"`

	Store StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`

	// Dir is the data directory of the file and loam backends.
	Dir string `yaml:"dir" json:"dir"`
	// LoamVersioning commits every loam save to git.
	LoamVersioning bool `yaml:"loam_versioning" json:"loam_versioning"`

	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`
	// LockTTL bounds distributed save locks (redis backend only).
	LockTTL time.Duration `yaml:"lock_ttl" json:"lock_ttl"`

	DatabaseURL string `yaml:"database_url" json:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`

	RemoteURL string `yaml:"remote_url" json:"remote_url"`

	S3 S3Config `yaml:"s3" json:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Collection:      "callflows",
		LogLevel:        "info",
		Listen:          ":8080",
		CredentialsPath: defaultCredentialsPath(),
		Store: StoreConfig{
			Backend:    BackendFile,
			Dir:        "data",
			SQLitePath: "callflow.db",
			S3:         S3Config{Bucket: "callflows", UseSSL: true},
		},
	}
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".callflow-credentials.json"
	}
	return filepath.Join(dir, "callflow", "credentials.json")
}

// Load reads path over Default and applies the environment. A missing file
// is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with CALLFLOW_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CALLFLOW_COLLECTION":       &cfg.Collection,
		"CALLFLOW_LOG_LEVEL":        &cfg.LogLevel,
		"CALLFLOW_LISTEN":           &cfg.Listen,
		"CALLFLOW_CREDENTIALS_PATH": &cfg.CredentialsPath,
		"CALLFLOW_GATE_HASH":        &cfg.GateHash,
		"CALLFLOW_ENCRYPTION_KEY":   &cfg.EncryptionKey,
		"CALLFLOW_STORE":            &cfg.Store.Backend,
		"CALLFLOW_DIR":              &cfg.Store.Dir,
		"CALLFLOW_REDIS_ADDR":       &cfg.Store.RedisAddr,
		"CALLFLOW_REDIS_PASSWORD":   &cfg.Store.RedisPassword,
		"CALLFLOW_DATABASE_URL":     &cfg.Store.DatabaseURL,
		"CALLFLOW_SQLITE_PATH":      &cfg.Store.SQLitePath,
		"CALLFLOW_REMOTE_URL":       &cfg.Store.RemoteURL,
		"CALLFLOW_S3_ENDPOINT":      &cfg.Store.S3.Endpoint,
		"CALLFLOW_S3_ACCESS_KEY":    &cfg.Store.S3.AccessKey,
		"CALLFLOW_S3_SECRET_KEY":    &cfg.Store.S3.SecretKey,
		"CALLFLOW_S3_BUCKET":        &cfg.Store.S3.Bucket,
		"CALLFLOW_S3_REGION":        &cfg.Store.S3.Region,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"CALLFLOW_LOG_JSON":          &cfg.LogJSON,
		"CALLFLOW_EXIT_EDIT_ON_SAVE": &cfg.ExitEditOnSave,
		"CALLFLOW_S3_USE_SSL":        &cfg.Store.S3.UseSSL,
		"CALLFLOW_LOAM_VERSIONING":   &cfg.Store.LoamVersioning,
	}
	for name, dst := range flags {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup("CALLFLOW_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALLFLOW_REDIS_DB: %w", err)
		}
		cfg.Store.RedisDB = db
	}
	if v, ok := lookup("CALLFLOW_WRITE_TOKENS"); ok {
		cfg.WriteTokens = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	if strings.Trim(c.Collection, "/") == "" {
		return fmt.Errorf("collection must not be empty")
	}
	s := c.Store
	switch s.Backend {
	case BackendMemory:
	case BackendFile, BackendLoam:
		if s.Dir == "" {
			return fmt.Errorf("store.dir is required for the %s backend", s.Backend)
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend")
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendS3:
		if s.S3.Endpoint == "" || s.S3.Bucket == "" {
			return fmt.Errorf("store.s3.endpoint and store.s3.bucket are required for the s3 backend")
		}
	case BackendRemote:
		if s.RemoteURL == "" {
			return fmt.Errorf("store.remote_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Backend)
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys. A nil active key means
// encryption is off.
func (c Config) EncryptionKeys() ([]byte, [][]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption_key: %w", err)
	}
	var fallback [][]byte
	for i, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
