package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/textile/backend/internal/domain/sales"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Counters  CountersConfig
	Invoicing InvoicingConfig
	Ingestion IngestionConfig
	OpenAI    OpenAIConfig
	Printing  PrintingConfig
	Storage   StorageConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// StoreConfig selects and tunes the document store
type StoreConfig struct {
	Driver        string
	SQLitePath    string
	KeyPrefix     string // redis key prefix
	Channel       string // redis pub/sub channel
	NotifyChannel string // postgres LISTEN/NOTIFY channel
	MaxRetries    int
	RetryBackoff  time.Duration
	CounterRoot   string // parent path of counters, empty for top level
	CustomersPath string
	FXRatePath    string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CountersConfig holds the first value of each counter namespace
type CountersConfig struct {
	InvoiceSeed      int64
	SalesInvoiceSeed int64
	SalesOrderSeed   int64
	OrderNumberSeed  int64
}

// Seeds returns the configured seeds keyed by namespace
func (c CountersConfig) Seeds() sales.CounterSeeds {
	return sales.CounterSeeds{
		sales.CounterInvoice:      c.InvoiceSeed,
		sales.CounterSalesInvoice: c.SalesInvoiceSeed,
		sales.CounterSalesOrder:   c.SalesOrderSeed,
		sales.CounterOrderNumber:  c.OrderNumberSeed,
	}
}

// Link modes
const (
	LinkModeAtomic     = "atomic"
	LinkModeSequential = "sequential"
)

// WorkflowConfig describes one invoicing workflow. A workflow with
// EligibleStatuses selects orders by that set; otherwise the caller's status
// filter and date range apply.
type WorkflowConfig struct {
	Name             string   `mapstructure:"name"`
	Orders           string   `mapstructure:"orders"`
	Invoices         string   `mapstructure:"invoices"`
	Counter          string   `mapstructure:"counter"`
	EligibleStatuses []string `mapstructure:"eligible_statuses"`
}

// InvoicingConfig holds consolidation settings
type InvoicingConfig struct {
	LinkMode          string
	LocalCurrency     string
	DefaultCurrency   string
	ForeignCurrencies []string
	DefaultDueDays    int
	Workflows         []WorkflowConfig
}

// Classifiers
const (
	ClassifierHeader = "header"
	ClassifierOpenAI = "openai"
)

// IngestionConfig holds spreadsheet import settings
type IngestionConfig struct {
	MaxUploadSize     int64
	DefaultQuantity   int64
	Classifier        string
	AllowedExtensions []string
	// RateLimit caps uploads per user per minute; 0 disables the limit
	RateLimit int
}

// OpenAIConfig holds the schema-inference model settings
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// PrintingConfig holds PDF rendering settings
type PrintingConfig struct {
	Enabled        bool
	ChromePath     string
	Timeout        time.Duration
	CompanyName    string
	CompanyAddress string
	CompanyPhone   string
}

// StorageConfig holds S3 settings for the PDF archive
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
	PresignExpiry   time.Duration
}

// JWTConfig holds settings for verifying identity-provider tokens
type JWTConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Export zap logs through OTLP
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	DBSlowQueryThresh time.Duration
	ProfilingEnabled  bool
	ProfilingServer   string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with TEXTILE_ prefix (e.g., TEXTILE_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TEXTILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(v.GetString("store.driver")),
			SQLitePath:    v.GetString("store.sqlite_path"),
			KeyPrefix:     v.GetString("store.key_prefix"),
			Channel:       v.GetString("store.channel"),
			NotifyChannel: v.GetString("store.notify_channel"),
			MaxRetries:    v.GetInt("store.max_retries"),
			RetryBackoff:  v.GetDuration("store.retry_backoff"),
			CounterRoot:   v.GetString("store.counter_root"),
			CustomersPath: v.GetString("store.customers_path"),
			FXRatePath:    v.GetString("store.fx_rate_path"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Counters: CountersConfig{
			InvoiceSeed:      v.GetInt64("counters.invoice_seed"),
			SalesInvoiceSeed: v.GetInt64("counters.sales_invoice_seed"),
			SalesOrderSeed:   v.GetInt64("counters.sales_order_seed"),
			OrderNumberSeed:  v.GetInt64("counters.order_number_seed"),
		},
		Invoicing: InvoicingConfig{
			LinkMode:          strings.ToLower(v.GetString("invoicing.link_mode")),
			LocalCurrency:     v.GetString("invoicing.local_currency"),
			DefaultCurrency:   v.GetString("invoicing.default_currency"),
			ForeignCurrencies: v.GetStringSlice("invoicing.foreign_currencies"),
			DefaultDueDays:    v.GetInt("invoicing.default_due_days"),
		},
		Ingestion: IngestionConfig{
			MaxUploadSize:     v.GetInt64("ingestion.max_upload_size"),
			DefaultQuantity:   v.GetInt64("ingestion.default_quantity"),
			Classifier:        strings.ToLower(v.GetString("ingestion.classifier")),
			AllowedExtensions: v.GetStringSlice("ingestion.allowed_extensions"),
			RateLimit:         v.GetInt("ingestion.rate_limit"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			BaseURL: v.GetString("openai.base_url"),
			Model:   v.GetString("openai.model"),
			Timeout: v.GetDuration("openai.timeout"),
		},
		Printing: PrintingConfig{
			Enabled:        v.GetBool("printing.enabled"),
			ChromePath:     v.GetString("printing.chrome_path"),
			Timeout:        v.GetDuration("printing.timeout"),
			CompanyName:    v.GetString("printing.company_name"),
			CompanyAddress: v.GetString("printing.company_address"),
			CompanyPhone:   v.GetString("printing.company_phone"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			Prefix:          v.GetString("storage.prefix"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
		},
		JWT: JWTConfig{
			Enabled: v.GetBool("jwt.enabled"),
			Secret:  v.GetString("jwt.secret"),
			Issuer:  v.GetString("jwt.issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
	}

	if err := v.UnmarshalKey("invoicing.workflows", &cfg.Invoicing.Workflows); err != nil {
		return nil, fmt.Errorf("error reading invoicing.workflows: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultWorkflows returns the two workflows the back office runs: general
// orders filtered ad hoc, and sales orders selected by status.
func DefaultWorkflows() []WorkflowConfig {
	return []WorkflowConfig{
		{
			Name:     "orders",
			Orders:   "orders",
			Invoices: "invoices",
			Counter:  string(sales.CounterInvoice),
		},
		{
			Name:             "sales",
			Orders:           "salesOrders",
			Invoices:         "salesInvoices",
			Counter:          string(sales.CounterSalesInvoice),
			EligibleStatuses: []string{string(sales.OrderStatusConfirmed), string(sales.OrderStatusReady)},
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "textile-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// SSE streams stay open, so no write timeout by default
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverMemory
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "textile.db"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "docs:"
	}
	if cfg.Store.Channel == "" {
		cfg.Store.Channel = "docs:events"
	}
	if cfg.Store.NotifyChannel == "" {
		cfg.Store.NotifyChannel = "docstore_events"
	}
	if cfg.Store.MaxRetries == 0 {
		cfg.Store.MaxRetries = 25
	}
	if cfg.Store.RetryBackoff == 0 {
		cfg.Store.RetryBackoff = 2 * time.Millisecond
	}
	if cfg.Store.CustomersPath == "" {
		cfg.Store.CustomersPath = "customers"
	}
	if cfg.Store.FXRatePath == "" {
		cfg.Store.FXRatePath = "settings/usdRate"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "textile"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	seeds := sales.DefaultCounterSeeds()
	if cfg.Counters.InvoiceSeed == 0 {
		cfg.Counters.InvoiceSeed = seeds[sales.CounterInvoice]
	}
	if cfg.Counters.SalesInvoiceSeed == 0 {
		cfg.Counters.SalesInvoiceSeed = seeds[sales.CounterSalesInvoice]
	}
	if cfg.Counters.SalesOrderSeed == 0 {
		cfg.Counters.SalesOrderSeed = seeds[sales.CounterSalesOrder]
	}
	if cfg.Counters.OrderNumberSeed == 0 {
		cfg.Counters.OrderNumberSeed = seeds[sales.CounterOrderNumber]
	}

	if cfg.Invoicing.LinkMode == "" {
		cfg.Invoicing.LinkMode = LinkModeAtomic
	}
	if cfg.Invoicing.LocalCurrency == "" {
		cfg.Invoicing.LocalCurrency = "PKR"
	}
	if cfg.Invoicing.DefaultCurrency == "" {
		cfg.Invoicing.DefaultCurrency = "PKR"
	}
	if len(cfg.Invoicing.ForeignCurrencies) == 0 {
		cfg.Invoicing.ForeignCurrencies = []string{"USD"}
	}
	if cfg.Invoicing.DefaultDueDays == 0 {
		cfg.Invoicing.DefaultDueDays = 30
	}
	if len(cfg.Invoicing.Workflows) == 0 {
		cfg.Invoicing.Workflows = DefaultWorkflows()
	}

	if cfg.Ingestion.MaxUploadSize == 0 {
		cfg.Ingestion.MaxUploadSize = 10 << 20 // 10MB
	}
	if cfg.Ingestion.DefaultQuantity == 0 {
		cfg.Ingestion.DefaultQuantity = 1
	}
	if cfg.Ingestion.Classifier == "" {
		cfg.Ingestion.Classifier = ClassifierHeader
	}
	if len(cfg.Ingestion.AllowedExtensions) == 0 {
		cfg.Ingestion.AllowedExtensions = []string{".csv", ".xlsx", ".xls"}
	}

	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60 * time.Second
	}
	if cfg.Printing.Timeout == 0 {
		cfg.Printing.Timeout = 30 * time.Second
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "invoices/"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "textile-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverRedis, StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("store.driver must be one of memory, redis, postgres, sqlite, got %q", c.Store.Driver)
	}
	if c.Store.MaxRetries < 1 {
		return fmt.Errorf("store.max_retries must be positive")
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Invoicing.LinkMode {
	case LinkModeAtomic, LinkModeSequential:
	default:
		return fmt.Errorf("invoicing.link_mode must be atomic or sequential, got %q", c.Invoicing.LinkMode)
	}
	if c.Invoicing.DefaultDueDays < 0 {
		return fmt.Errorf("invoicing.default_due_days cannot be negative")
	}
	seen := make(map[string]bool, len(c.Invoicing.Workflows))
	for i, wf := range c.Invoicing.Workflows {
		if wf.Name == "" || wf.Orders == "" || wf.Invoices == "" || wf.Counter == "" {
			return fmt.Errorf("invoicing.workflows[%d] needs name, orders, invoices and counter", i)
		}
		if seen[wf.Name] {
			return fmt.Errorf("invoicing.workflows: duplicate workflow %q", wf.Name)
		}
		seen[wf.Name] = true
	}

	if c.Ingestion.DefaultQuantity < 1 {
		return fmt.Errorf("ingestion.default_quantity must be at least 1")
	}
	switch c.Ingestion.Classifier {
	case ClassifierHeader:
	case ClassifierOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required when ingestion.classifier is openai")
		}
	default:
		return fmt.Errorf("ingestion.classifier must be header or openai, got %q", c.Ingestion.Classifier)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.Store.Driver == StoreDriverMemory {
			return fmt.Errorf("store.driver cannot be memory in production")
		}
		if c.Store.Driver == StoreDriverPostgres {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if !c.JWT.Enabled {
			return fmt.Errorf("jwt.enabled must be true in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}
	if c.JWT.Enabled && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 characters when jwt is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// Workflow returns the workflow named name
func (c *InvoicingConfig) Workflow(name string) (WorkflowConfig, bool) {
	for _, wf := range c.Workflows {
		if wf.Name == name {
			return wf, true
		}
	}
	return WorkflowConfig{}, false
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
