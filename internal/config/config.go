package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/webhook"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// StoreConfig selects the ledger persistence backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | postgres
	// AutoMigrate applies pending migrations at startup (postgres only)
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// LedgerConfig holds the registry identity
type LedgerConfig struct {
	Name            string       `mapstructure:"name"`
	Symbol          string       `mapstructure:"symbol"`
	ChainID         domain.Chain `mapstructure:"chain_id"`
	AdminAddress    string       `mapstructure:"admin_address"`
	RegistryAddress string       `mapstructure:"registry_address"`
	QueueSize       int          `mapstructure:"queue_size"`
	BootstrapPath   string       `mapstructure:"bootstrap_path"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// RelayConfig holds notification relay configuration
type RelayConfig struct {
	// Embedded runs the relay inside the API process, woken by ledger commits
	Embedded             bool          `mapstructure:"embedded"`
	Name                 string        `mapstructure:"name"`
	StartCursor          uint64        `mapstructure:"start_cursor"`
	StartFromLatest      bool          `mapstructure:"start_from_latest"`
	CursorSaveFreq       int           `mapstructure:"cursor_save_freq"`
	CursorSaveDelay      time.Duration `mapstructure:"cursor_save_delay"`
	BatchSize            int           `mapstructure:"batch_size"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
}

// WebhooksConfig holds webhook delivery configuration
type WebhooksConfig struct {
	Endpoints            []webhook.Endpoint `mapstructure:"endpoints"`
	WorkerPoolSize       int                `mapstructure:"worker_pool_size"`
	Timeout              time.Duration      `mapstructure:"timeout"`
	RetryInitialInterval time.Duration      `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration      `mapstructure:"retry_max_interval"`
	RetryMaxElapsedTime  time.Duration      `mapstructure:"retry_max_elapsed_time"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Address serves the metrics endpoint on its own listener (relay only)
	Address string `mapstructure:"address"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int      `mapstructure:"idle_timeout"`  // in seconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

// APIConfig holds configuration for API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Store      StoreConfig    `mapstructure:"store"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Ledger     LedgerConfig   `mapstructure:"ledger"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Relay      RelayConfig    `mapstructure:"relay"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Webhooks   WebhooksConfig `mapstructure:"webhooks"`
}

// RelayServiceConfig holds configuration for the standalone relay
type RelayServiceConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Relay      RelayConfig    `mapstructure:"relay"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Webhooks   WebhooksConfig `mapstructure:"webhooks"`
}

// LoadAPIConfig loads configuration for API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("ledger.name", domain.DEFAULT_REGISTRY_NAME)
	v.SetDefault("ledger.symbol", domain.DEFAULT_REGISTRY_SYMBOL)
	v.SetDefault("ledger.chain_id", string(domain.ChainEthereumMainnet))
	v.SetDefault("ledger.queue_size", 128)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	setDatabaseDefaults(v)
	setRelayDefaults(v)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadRelayConfig loads configuration for the standalone relay
func LoadRelayConfig(configFile string, envPath string) (*RelayServiceConfig, error) {
	v := configureViper("relay", configFile, envPath)

	// Set defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.address", ":9090")
	setDatabaseDefaults(v)
	setRelayDefaults(v)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config RelayServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if config.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if config.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}
	if config.NATS.URL == "" && len(config.Webhooks.Endpoints) == 0 {
		return nil, errors.New("at least one publisher is required: nats.url or webhooks.endpoints")
	}

	return &config, nil
}

func (c *APIConfig) validate() error {
	if _, _, err := c.Ledger.Addresses(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database.host is required for the postgres store")
		}
		if c.Database.DBName == "" {
			return errors.New("database.dbname is required for the postgres store")
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	if c.Relay.Embedded && c.NATS.URL == "" && len(c.Webhooks.Endpoints) == 0 {
		return errors.New("embedded relay requires nats.url or webhooks.endpoints")
	}

	return nil
}

// Addresses parses the administrator and registry identities. The administrator is optional.
func (c *LedgerConfig) Addresses() (admin common.Address, registry common.Address, err error) {
	if c.RegistryAddress == "" {
		return admin, registry, errors.New("ledger.registry_address is required")
	}
	registry, err = domain.ParseAddress(c.RegistryAddress)
	if err != nil {
		return admin, registry, fmt.Errorf("ledger.registry_address: %w", err)
	}

	if c.AdminAddress != "" {
		admin, err = domain.ParseAddress(c.AdminAddress)
		if err != nil {
			return admin, registry, fmt.Errorf("ledger.admin_address: %w", err)
		}
	}

	return admin, registry, nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setRelayDefaults(v *viper.Viper) {
	v.SetDefault("relay.name", "default")
	v.SetDefault("relay.cursor_save_freq", 10)
	v.SetDefault("relay.cursor_save_delay", "5s")
	v.SetDefault("relay.batch_size", 100)
	v.SetDefault("relay.poll_interval", "1s")
	v.SetDefault("relay.retry_initial_interval", "1s")
	v.SetDefault("relay.retry_max_interval", "1m")
	v.SetDefault("nats.stream_name", "CUSTODY_LEDGER")
	v.SetDefault("nats.subject_prefix", "ledger")
	v.SetDefault("nats.dedup_window", "2m")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("webhooks.worker_pool_size", 4)
	v.SetDefault("webhooks.timeout", "10s")
	v.SetDefault("webhooks.retry_initial_interval", "2s")
	v.SetDefault("webhooks.retry_max_interval", "30s")
	v.SetDefault("webhooks.retry_max_elapsed_time", "1m")
}

// readConfig reads the config file; a missing file falls back to environment variables
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/, cmd/relay/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("CUSTODY_LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Store
		"store.driver",
		"store.auto_migrate",
		// Ledger
		"ledger.name",
		"ledger.symbol",
		"ledger.chain_id",
		"ledger.admin_address",
		"ledger.registry_address",
		"ledger.queue_size",
		"ledger.bootstrap_path",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.subject_prefix",
		"nats.dedup_window",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Relay
		"relay.embedded",
		"relay.name",
		"relay.start_cursor",
		"relay.start_from_latest",
		"relay.cursor_save_freq",
		"relay.cursor_save_delay",
		"relay.batch_size",
		"relay.poll_interval",
		"relay.retry_initial_interval",
		"relay.retry_max_interval",
		// Webhooks (endpoints come from the config file)
		"webhooks.worker_pool_size",
		"webhooks.timeout",
		"webhooks.retry_initial_interval",
		"webhooks.retry_max_interval",
		"webhooks.retry_max_elapsed_time",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.allowed_origins",
		// Auth
		"auth.jwt_public_key",
		// Metrics
		"metrics.enabled",
		"metrics.path",
		"metrics.address",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
