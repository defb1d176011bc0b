// Package config holds operator-level configuration for a Sentra
// installation: data directory, memory shape, policy bundle location, crypto
// keys, server keys, and backend endpoints. Set via env vars (SENTRA_*) or a
// sentra.config.yaml file; resolved once at process start.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sentra-io/sentra/internal/cryptoutil"
	"github.com/sentra-io/sentra/internal/pelm"
)

// Viper keys. Each maps to an env var with the SENTRA_ prefix
// (e.g. "signing_key" → SENTRA_SIGNING_KEY) and to a YAML field in
// sentra.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeyDimension        = "dimension"
	KeyCapacity         = "capacity"
	KeyPolicyBundle     = "policy_bundle"
	KeySigningKey       = "signing_key"
	KeySnapshotKey      = "snapshot_key"
	KeySnapshotKeep     = "snapshot_keep"
	KeySnapshotSchedule = "snapshot_schedule"
	KeyListenAddr       = "listen_addr"
	KeyAPIKeys          = "api_keys"
	KeyRateLimitRPS     = "rate_limit_rps"
	KeyRateLimitBurst   = "rate_limit_burst"
	KeyPhasePeriod      = "phase_period"
	KeyPhaseTolerance   = "phase_tolerance"
	KeyProvider         = "provider"
	KeyGenerationModel  = "generation_model"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyOllamaBaseURL    = "ollama_base_url"
)

// Defaults that do not involve crypto material. The signing key has no
// baked-in default; when unset we derive a per-machine fallback and warn.
const (
	DefaultDimension        = 256
	DefaultCapacity         = 4096
	DefaultSnapshotKeep     = 10
	DefaultSnapshotSchedule = "@every 5m"
	DefaultListenAddr       = ":8080"
	DefaultRateLimitRPS     = 10
	DefaultRateLimitBurst   = 20
	DefaultPhasePeriod      = time.Hour
	DefaultPhaseTolerance   = 1.0
	DefaultProvider         = "ollama"
	DefaultGenerationModel  = "llama3"
	DefaultOllamaURL        = "http://localhost:11434"
)

// Config is the resolved operator configuration for one Sentra process.
type Config struct {
	DataDir          string        // base directory for all state (~/.sentra)
	Dimension        int           // memory vector dimension
	Capacity         int           // ring capacity
	PolicyBundle     string        // path to the drift-budget bundle (empty: built-in defaults)
	SigningKey       string        // HMAC-SHA256 key verifying the bundle fingerprint
	SnapshotKey      string        // optional secretbox passphrase sealing snapshots at rest
	SnapshotKeep     int           // snapshots retained after pruning
	SnapshotSchedule string        // cron spec for periodic persistence
	ListenAddr       string        // HTTP listen address
	APIKeys          string        // comma-separated key:caller pairs
	RateLimitRPS     float64       // per-caller sustained request rate
	RateLimitBurst   int           // per-caller burst size
	PhasePeriod      time.Duration // wake/sleep cycle period
	PhaseTolerance   float64       // receptive window around the oracle phase
	Provider         string        // "openai", "ollama", or "none"
	GenerationModel  string        // backend model name
	OpenAIAPIKey     string        // quickstart fallback; prefer a secrets manager in production
	OllamaBaseURL    string        // Ollama API endpoint

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey reports whether the signing key was derived rather
// than set explicitly.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// SnapshotDBPath returns the full path to the snapshot SQLite database.
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.DataDir, "snapshots.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly
// set. Suppressed when SENTRA_QUICKSTART=1 or true.
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default SENTRA_SIGNING_KEY, set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("SENTRA_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	viper.SetEnvPrefix("SENTRA")
	viper.AutomaticEnv()
	viper.SetDefault(KeyDimension, DefaultDimension)
	viper.SetDefault(KeyCapacity, DefaultCapacity)
	viper.SetDefault(KeySnapshotKeep, DefaultSnapshotKeep)
	viper.SetDefault(KeySnapshotSchedule, DefaultSnapshotSchedule)
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	viper.SetDefault(KeyRateLimitBurst, DefaultRateLimitBurst)
	viper.SetDefault(KeyPhasePeriod, DefaultPhasePeriod)
	viper.SetDefault(KeyPhaseTolerance, DefaultPhaseTolerance)
	viper.SetDefault(KeyProvider, DefaultProvider)
	viper.SetDefault(KeyGenerationModel, DefaultGenerationModel)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		Dimension:        viper.GetInt(KeyDimension),
		Capacity:         viper.GetInt(KeyCapacity),
		PolicyBundle:     viper.GetString(KeyPolicyBundle),
		SigningKey:       viper.GetString(KeySigningKey),
		SnapshotKey:      viper.GetString(KeySnapshotKey),
		SnapshotKeep:     viper.GetInt(KeySnapshotKeep),
		SnapshotSchedule: viper.GetString(KeySnapshotSchedule),
		ListenAddr:       viper.GetString(KeyListenAddr),
		APIKeys:          viper.GetString(KeyAPIKeys),
		RateLimitRPS:     viper.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst:   viper.GetInt(KeyRateLimitBurst),
		PhasePeriod:      viper.GetDuration(KeyPhasePeriod),
		PhaseTolerance:   viper.GetFloat64(KeyPhaseTolerance),
		Provider:         viper.GetString(KeyProvider),
		GenerationModel:  viper.GetString(KeyGenerationModel),
		OpenAIAPIKey:     viper.GetString(KeyOpenAIAPIKey),
		OllamaBaseURL:    viper.GetString(KeyOllamaBaseURL),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "policy-bundle-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentra"
	}
	return filepath.Join(home, ".sentra")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. This is NOT cryptographically strong. It
// exists solely so `sentra serve` works out of the box while still verifying
// bundles with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("sentra:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive (got %d)", c.Dimension)
	}
	if c.Capacity <= 0 || c.Capacity > pelm.MaxCapacity {
		return fmt.Errorf("capacity must be in [1, %d] (got %d)", pelm.MaxCapacity, c.Capacity)
	}
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	if c.SnapshotKeep <= 0 {
		return fmt.Errorf("snapshot_keep must be positive (got %d)", c.SnapshotKeep)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.PhasePeriod <= 0 {
		return fmt.Errorf("phase_period must be positive (got %v)", c.PhasePeriod)
	}
	if c.PhaseTolerance < 0 || c.PhaseTolerance > 1 {
		return fmt.Errorf("phase_tolerance must be in [0, 1] (got %v)", c.PhaseTolerance)
	}
	switch c.Provider {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("provider must be openai, ollama, or none (got %q)", c.Provider)
	}
	return nil
}

// validateSigningKey accepts either ≥32 raw bytes or 64+ hex characters
// (decoded length ≥32 for HMAC-SHA256). Hex is checked first (disjoint from
// raw) so that hex format is validated; raw is accepted otherwise when n ≥ 32.
func validateSigningKey(key string) error {
	n := len(key)
	if n >= 64 && n%2 == 0 && cryptoutil.IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) < 32 {
			return fmt.Errorf("signing_key hex must decode to at least 32 bytes: %w", err)
		}
		return nil
	}
	if n >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (got %d); set SENTRA_SIGNING_KEY", n)
}

// ParseAPIKeys splits the comma-separated key:caller list into a map from
// API key to caller key. Malformed entries are rejected.
func ParseAPIKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, caller, ok := strings.Cut(pair, ":")
		if !ok || key == "" || caller == "" {
			return nil, fmt.Errorf("api_keys entry %q must be key:caller", pair)
		}
		keys[key] = caller
	}
	return keys, nil
}
