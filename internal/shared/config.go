package shared

import (
	_ "embed"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Transform   TransformConfig   `toml:"transform"`
	Auth        AuthConfig        `toml:"auth"`
	Credentials CredentialsConfig `toml:"credentials"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	PublicDir      string   `toml:"public_dir"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimit      float64  `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst      int      `toml:"rate_burst"`
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For header is honored.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Proxies parses TrustedProxies. A bare address becomes a single-host prefix.
func (s ServerConfig) Proxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: server.trusted_proxies: %v", ErrInvalidConfig, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: server.trusted_proxies: %v", ErrInvalidConfig, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig contains settings for the Supabase S3-compatible object store.
type StorageConfig struct {
	Endpoint          string `toml:"endpoint"`
	Region            string `toml:"region"`
	AccessKeyID       string `toml:"access_key_id"`
	SecretAccessKey   string `toml:"secret_access_key"`
	PublicURL         string `toml:"public_url"`
	OriginalBucket    string `toml:"original_bucket"`
	TransformedBucket string `toml:"transformed_bucket"`
	MaxFileSize       int64  `toml:"max_file_size"`
}

// TransformConfig contains settings for the ML transformation service.
type TransformConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Attempts       uint   `toml:"attempts"`
}

// Timeout returns the per-request timeout for the ML service.
func (t TransformConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// AuthConfig contains token signing settings.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	TokenTTLMinutes int    `toml:"token_ttl_minutes"`
}

// TokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// CredentialsConfig contains third-party login credentials.
type CredentialsConfig struct {
	Google GoogleConfig `toml:"google"`
}

// GoogleConfig contains Google OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	FrontendURL  string `toml:"frontend_url"`
}

// Enabled reports whether Google login has real credentials configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && !strings.HasPrefix(g.ClientID, "your_")
}

// LoadConfig reads the TOML file at path on top of the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, ErrConflict)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are ignored; variables already set are never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from environment variables using lookup
// (normally [os.LookupEnv]).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
		c.Database.Driver = DriverFor(v)
	}

	if base, ok := lookup("SUPABASE_URL"); ok && base != "" {
		base = strings.TrimRight(base, "/")
		c.Storage.Endpoint = base + "/storage/v1/s3"
		c.Storage.PublicURL = base + "/storage/v1/object/public"
	}
	set(&c.Storage.Endpoint, "SUPABASE_S3_ENDPOINT")
	set(&c.Storage.AccessKeyID, "SUPABASE_ACCESS_KEY_ID")
	set(&c.Storage.SecretAccessKey, "SUPABASE_SECRET_ACCESS_KEY")
	set(&c.Transform.URL, "ML_SERVICE_URL")
	set(&c.Auth.JWTSecret, "JWT_SECRET_KEY")
	set(&c.Credentials.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.Credentials.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")

	if v, ok := lookup("PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks the settings required to serve requests.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0:
		return fmt.Errorf("%w: server.port must be positive", ErrInvalidConfig)
	case c.Database.URL == "":
		return fmt.Errorf("%w: database.url is required", ErrInvalidConfig)
	case c.Auth.JWTSecret == "":
		return fmt.Errorf("%w: auth.jwt_secret (or JWT_SECRET_KEY) is required", ErrMissingCredentials)
	case c.Auth.TokenTTLMinutes <= 0:
		return fmt.Errorf("%w: auth.token_ttl_minutes must be positive", ErrInvalidConfig)
	case c.Storage.MaxFileSize <= 0:
		return fmt.Errorf("%w: storage.max_file_size must be positive", ErrInvalidConfig)
	}
	if _, err := c.Server.Proxies(); err != nil {
		return err
	}
	return nil
}
