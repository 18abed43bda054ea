// Package config loads the pipeline configuration from YAML, a .env file
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the cardpulse pipeline.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	AWS      AWS      `yaml:"aws"`
	Source   Source   `yaml:"source"`
	Datasets Datasets `yaml:"datasets"`
	Query    Query    `yaml:"query"`
	Report   Report   `yaml:"report"`
	Logging  Logging  `yaml:"logging"`
	Schedule Schedule `yaml:"schedule"`

	// ParamNames names configuration-store entries that override Storage
	// and AWS values at startup.
	ParamNames ParamNames `yaml:"param_names"`

	// Parameters holds configuration-store values for the local backend,
	// keyed by parameter name.
	Parameters map[string]string `yaml:"parameters"`
}

// Storage selects the backend and holds its local paths and bucket names.
type Storage struct {
	Backend       string `yaml:"backend" validate:"required,oneof=local aws"`
	DataDir       string `yaml:"data_dir" validate:"required_if=Backend local"`
	SQLitePath    string `yaml:"sqlite_path" validate:"required_if=Backend local"`
	PrimaryBucket string `yaml:"primary_bucket"`
	ServeBucket   string `yaml:"serve_bucket"`
}

// AWS holds the settings of the managed backend.
type AWS struct {
	Region          string `yaml:"region"`
	Database        string `yaml:"database"`
	QueryOutput     string `yaml:"query_output"`
	TopicARN        string `yaml:"topic_arn"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// ParamNames lists configuration-store parameter names. Empty names are
// not looked up.
type ParamNames struct {
	PrimaryBucket string `yaml:"primary_bucket"`
	ServeBucket   string `yaml:"serve_bucket"`
	TopicARN      string `yaml:"topic_arn"`
}

// Names returns the non-empty parameter names.
func (p ParamNames) Names() []string {
	var names []string
	for _, n := range []string{p.PrimaryBucket, p.ServeBucket, p.TopicARN} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Source describes the remote bulk-data endpoint.
type Source struct {
	IndexURL        string        `yaml:"index_url" validate:"required,url"`
	BulkType        string        `yaml:"bulk_type" validate:"required"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min" validate:"gte=0"`
	UserAgent       string        `yaml:"user_agent"`
}

// Dataset names the folders, file stems and catalog tables of one projection.
type Dataset struct {
	CSVFolder     string `yaml:"csv_folder" validate:"required"`
	ParquetFolder string `yaml:"parquet_folder" validate:"required"`
	CSVFile       string `yaml:"csv_file" validate:"required"`
	ParquetFile   string `yaml:"parquet_file" validate:"required"`
	CSVTable      string `yaml:"csv_table"`
	ParquetTable  string `yaml:"parquet_table" validate:"required"`
}

// Datasets groups the price and static projections plus the ledger table.
type Datasets struct {
	Prices      Dataset `yaml:"prices"`
	Static      Dataset `yaml:"static"`
	LedgerTable string  `yaml:"ledger_table" validate:"required"`
}

// Query controls how long-running warehouse statements are awaited.
type Query struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultMinPrice is the report threshold used when min_price is unset.
const DefaultMinPrice = 1.0

// Report controls the trend report. A nil MinPrice means DefaultMinPrice;
// an explicit zero keeps every priced row.
type Report struct {
	OutputKey          string   `yaml:"output_key" validate:"required"`
	MinPrice           *float64 `yaml:"min_price" validate:"omitempty,gte=0"`
	ReleaseWindowYears int      `yaml:"release_window_years" validate:"gte=1"`
}

// Threshold returns the effective minimum today price.
func (r Report) Threshold() float64 {
	if r.MinPrice == nil {
		return DefaultMinPrice
	}
	return *r.MinPrice
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Schedule holds the cron expression of the daily daemon.
type Schedule struct {
	Cron     string `yaml:"cron"`
	TimeZone string `yaml:"time_zone"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// defaults and environment variable overrides (a .env file in the working
// directory is loaded first if present), and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.PrimaryBucket == "" {
		cfg.Storage.PrimaryBucket = "mtgdump"
	}
	if cfg.Storage.ServeBucket == "" {
		cfg.Storage.ServeBucket = "mtgserve"
	}
	defaultDataset(&cfg.Datasets.Prices, Dataset{
		CSVFolder: "mtg_csv", ParquetFolder: "mtg_parquet",
		CSVFile: "mtg_prices", ParquetFile: "mtg_prices",
		CSVTable: "mtg_prices_csv", ParquetTable: "mtg_prices_parquet",
	})
	defaultDataset(&cfg.Datasets.Static, Dataset{
		CSVFolder: "mtg_static_csv", ParquetFolder: "mtg_static_parquet",
		CSVFile: "mtg_static", ParquetFile: "mtg_static",
		CSVTable: "mtg_static_csv", ParquetTable: "mtg_static_parquet",
	})
	if cfg.Datasets.LedgerTable == "" {
		cfg.Datasets.LedgerTable = "mtg_prices_iceberg"
	}
	if cfg.Source.IndexURL == "" {
		cfg.Source.IndexURL = "https://api.scryfall.com/bulk-data"
	}
	if cfg.Source.BulkType == "" {
		cfg.Source.BulkType = "default_cards"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 10 * time.Minute
	}
	if cfg.Source.MaxAttempts == 0 {
		cfg.Source.MaxAttempts = 3
	}
	if cfg.Source.BaseDelay == 0 {
		cfg.Source.BaseDelay = time.Second
	}
	if cfg.Source.UserAgent == "" {
		cfg.Source.UserAgent = "cardpulse/1.0"
	}
	if cfg.Query.PollInterval == 0 {
		cfg.Query.PollInterval = 5 * time.Second
	}
	if cfg.Report.OutputKey == "" {
		cfg.Report.OutputKey = "reports/price_movers.csv"
	}
	if cfg.Report.MinPrice == nil {
		v := DefaultMinPrice
		cfg.Report.MinPrice = &v
	}
	if cfg.Report.ReleaseWindowYears == 0 {
		cfg.Report.ReleaseWindowYears = 10
	}
	if cfg.AWS.Database == "" {
		cfg.AWS.Database = "mtg"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultDataset(ds *Dataset, def Dataset) {
	if ds.CSVFolder == "" {
		ds.CSVFolder = def.CSVFolder
	}
	if ds.ParquetFolder == "" {
		ds.ParquetFolder = def.ParquetFolder
	}
	if ds.CSVFile == "" {
		ds.CSVFile = def.CSVFile
	}
	if ds.ParquetFile == "" {
		ds.ParquetFile = def.ParquetFile
	}
	if ds.CSVTable == "" {
		ds.CSVTable = def.CSVTable
	}
	if ds.ParquetTable == "" {
		ds.ParquetTable = def.ParquetTable
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARDPULSE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CARDPULSE_PRIMARY_BUCKET"); v != "" {
		cfg.Storage.PrimaryBucket = v
	}
	if v := os.Getenv("CARDPULSE_SERVE_BUCKET"); v != "" {
		cfg.Storage.ServeBucket = v
	}
	if v := os.Getenv("OUTPUT_S3_KEY"); v != "" {
		cfg.Report.OutputKey = v
	}
	if v := os.Getenv("TOPIC_ARN"); v != "" {
		cfg.AWS.TopicARN = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("CARDPULSE_QUERY_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Query.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
