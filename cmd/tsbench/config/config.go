// Package config implements the tsbench command configuration.
//
// Every setting is a flag whose default comes from an environment variable,
// so the same binary can be driven from a shell, a .env file or a scheduler.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/HatiCode/tsbench/pkg/models"
)

// Config holds all tsbench configuration.
type Config struct {
	// Input series
	InputCSV    string
	DateColumn  string
	ValueColumn string
	Frequency   string

	// Backtest
	Horizon      int
	MinTrainSize int
	Workers      int
	Models       []string
	OutputPrefix string
	ZeroPolicy   string

	// Models
	SARIMAOrder          string
	SARIMALog            bool
	DecompPeriod         int
	DecompYearly         bool
	FoundationCheckpoint string
	FoundationEndpoint   string
	FoundationModel      string
	FoundationTimeout    time.Duration

	// Extraction
	Source       string
	UF           string
	Years        string
	Month        int
	CIDColumn    string
	CIDPrefix    string
	MirrorURL    string
	FallbackURL  string
	LocalPattern string
	CacheDir     string
	RequestRate  float64
	FetchTimeout time.Duration
	MaxRows      int
	MaxAttempts  int
	RetryWait    time.Duration

	// Validation
	MinSeriesPoints   int
	MinDistinctCIDs   int
	MaxFilledFraction float64
	MinCV             float64
	RawCSV            string
	MetaJSON          string
	ReportOutput      string

	// Storage
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Metrics
	MetricsTextfile string
	PushgatewayURL  string
	PushJob         string

	// Logging
	LogFormat string
	LogLevel  string
}

// AddInputFlags registers the input series flags.
func (c *Config) AddInputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.InputCSV, "input-csv", getEnv("INPUT_CSV", ""), "Input series CSV")
	fs.StringVar(&c.DateColumn, "date-col", getEnv("DATE_COL", "date"), "Date column name")
	fs.StringVar(&c.ValueColumn, "value-col", getEnv("VALUE_COL", "value"), "Value column name")
	fs.StringVar(&c.Frequency, "freq", getEnv("FREQ", "monthly"), "Series frequency (monthly only)")
}

// AddBacktestFlags registers the backtest and model flags.
func (c *Config) AddBacktestFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Horizon, "horizon", getEnvInt("HORIZON", 6), "Forecast horizon in periods")
	fs.IntVar(&c.MinTrainSize, "min-train-size", getEnvInt("MIN_TRAIN_SIZE", 24), "Training periods of the first window")
	fs.IntVar(&c.Workers, "workers", getEnvInt("WORKERS", 1), "Concurrent fit/predict tasks")
	fs.StringSliceVar(&c.Models, "models", getEnvList("MODELS", []string{"sarima", "decomposition", "foundation"}), "Models to benchmark")
	fs.StringVar(&c.OutputPrefix, "output-prefix", getEnv("OUTPUT_PREFIX", "results/benchmark"), "Output file prefix")
	fs.StringVar(&c.ZeroPolicy, "smape-zero", getEnv("SMAPE_ZERO", "strict"), "sMAPE one-sided zero policy: strict or bounded")

	fs.StringVar(&c.SARIMAOrder, "sarima-order", getEnv("SARIMA_ORDER", "1,1,1,1,1,1,12"), "SARIMA order p,d,q,P,D,Q,s")
	fs.BoolVar(&c.SARIMALog, "sarima-log", getEnvBool("SARIMA_LOG", false), "Fit SARIMA on log values")
	fs.IntVar(&c.DecompPeriod, "decomp-period", getEnvInt("DECOMP_PERIOD", 12), "Decomposition seasonal period")
	fs.BoolVar(&c.DecompYearly, "decomp-yearly", getEnvBool("DECOMP_YEARLY", true), "Enable yearly seasonality")
	fs.StringVar(&c.FoundationCheckpoint, "foundation-checkpoint", getEnv("FOUNDATION_CHECKPOINT", ""), "Foundation model checkpoint path")
	fs.StringVar(&c.FoundationEndpoint, "foundation-endpoint", getEnv("FOUNDATION_ENDPOINT", ""), "Foundation model inference URL (overrides checkpoint)")
	fs.StringVar(&c.FoundationModel, "foundation-model", getEnv("FOUNDATION_MODEL", "timesfm"), "Model name sent to the inference service")
	fs.DurationVar(&c.FoundationTimeout, "foundation-timeout", getEnvDuration("FOUNDATION_TIMEOUT", 30*time.Second), "Inference request timeout")
}

// AddExtractionFlags registers the extraction and retry flags.
func (c *Config) AddExtractionFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Source, "source", getEnv("SOURCE", "SIM"), "Registry source")
	fs.StringVar(&c.UF, "uf", getEnv("UF", "SP"), "Two-letter state code")
	fs.StringVar(&c.Years, "years", getEnv("YEARS", ""), "Years: 2022, 2019-2023 or 2019,2020,2022")
	fs.IntVar(&c.Month, "month", getEnvInt("MONTH", 0), "Keep only this calendar month (0 = all)")
	fs.StringVar(&c.CIDColumn, "cid-column", getEnv("CID_COLUMN", "CAUSABAS"), "Cause-of-death column")
	fs.StringVar(&c.CIDPrefix, "cid-prefix", getEnv("CID_PREFIX", "I"), "CID-10 prefix to keep")
	fs.StringVar(&c.MirrorURL, "mirror-url", getEnv("MIRROR_URL", ""), "Registry export mirror URL")
	fs.StringVar(&c.FallbackURL, "fallback-url", getEnv("FALLBACK_URL", ""), "Secondary mirror URL")
	fs.StringVar(&c.LocalPattern, "local-exports", getEnv("LOCAL_EXPORTS", ""), "Local export path pattern with {uf} and {year}")
	fs.StringVar(&c.CacheDir, "cache-dir", getEnv("CACHE_DIR", ""), "Download cache directory")
	fs.Float64Var(&c.RequestRate, "request-rate", getEnvFloat("REQUEST_RATE", 2), "Mirror requests per second (0 = unlimited)")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", 2*time.Minute), "Per-request download timeout")
	fs.IntVar(&c.MaxRows, "max-rows", getEnvInt("MAX_ROWS", 0), "Cap on filtered records (0 = no cap)")
	fs.IntVar(&c.MaxAttempts, "max-retries", getEnvInt("MAX_RETRIES", 3), "Attempts per extraction channel")
	fs.DurationVar(&c.RetryWait, "retry-wait", getEnvDuration("RETRY_WAIT", 20*time.Second), "Wait between attempts")
}

// AddValidationFlags registers the real-data validation thresholds.
func (c *Config) AddValidationFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.MinSeriesPoints, "min-series-points", getEnvInt("MIN_SERIES_POINTS", 24), "Minimum series length")
	fs.IntVar(&c.MinDistinctCIDs, "min-distinct-cids", getEnvInt("MIN_DISTINCT_CIDS", 3), "Minimum distinct cause codes")
	fs.Float64Var(&c.MaxFilledFraction, "max-filled-fraction", getEnvFloat("MAX_FILLED_FRACTION", 0.5), "Maximum share of zero-filled periods (0 disables)")
	fs.Float64Var(&c.MinCV, "min-cv", getEnvFloat("MIN_CV", 0), "Minimum coefficient of variation (0 disables)")
}

// AddValidateInputFlags registers the files read by the validate command.
func (c *Config) AddValidateInputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.RawCSV, "raw-csv", getEnv("RAW_CSV", ""), "Filtered raw records CSV")
	fs.StringVar(&c.InputCSV, "series-csv", getEnv("SERIES_CSV", ""), "Monthly series CSV")
	fs.StringVar(&c.MetaJSON, "meta-json", getEnv("META_JSON", ""), "Extraction metadata JSON")
	fs.StringVar(&c.ReportOutput, "report-output", getEnv("REPORT_OUTPUT", "results/data_reality_report.json"), "Validation report path")
	fs.StringVar(&c.Source, "source", getEnv("SOURCE", "SIM"), "Expected registry source")
	fs.StringVar(&c.CIDColumn, "cid-column", getEnv("CID_COLUMN", "CAUSABAS"), "Cause-of-death column")
	fs.StringVar(&c.CIDPrefix, "cid-prefix", getEnv("CID_PREFIX", "I"), "CID-10 prefix every record must match")
}

// AddGlobalFlags registers storage, metrics and logging flags.
func (c *Config) AddGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Storage, "storage", getEnv("STORAGE", "memory"), "Run store backend: memory or redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&c.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database")
	fs.DurationVar(&c.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis record TTL (0 = keep)")

	fs.StringVar(&c.MetricsTextfile, "metrics-textfile", getEnv("METRICS_TEXTFILE", ""), "Write run metrics to this Prometheus textfile")
	fs.StringVar(&c.PushgatewayURL, "pushgateway-url", getEnv("PUSHGATEWAY_URL", ""), "Push run metrics to this Pushgateway")
	fs.StringVar(&c.PushJob, "push-job", getEnv("PUSH_JOB", "tsbench"), "Pushgateway job name")

	fs.StringVar(&c.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&c.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
}

// ValidateBacktest checks the settings used by the benchmark stage.
func (c *Config) ValidateBacktest() error {
	var errs []error
	if c.Horizon < 1 {
		errs = append(errs, fmt.Errorf("--horizon must be >= 1, got %d", c.Horizon))
	}
	if c.MinTrainSize < 1 {
		errs = append(errs, fmt.Errorf("--min-train-size must be >= 1, got %d", c.MinTrainSize))
	}
	if f := strings.ToLower(c.Frequency); f != "" && f != "monthly" && f != "ms" {
		errs = append(errs, fmt.Errorf("--freq %q is not supported, only monthly", c.Frequency))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("--models must name at least one model"))
	}
	if c.OutputPrefix == "" {
		errs = append(errs, errors.New("--output-prefix is required"))
	}
	if _, err := ParseSARIMAOrder(c.SARIMAOrder); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateExtraction checks the settings used by the extraction stage.
func (c *Config) ValidateExtraction() error {
	var errs []error
	if c.Years == "" {
		errs = append(errs, errors.New("--years is required"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("--max-retries must be >= 1, got %d", c.MaxAttempts))
	}
	if c.RetryWait < 0 {
		errs = append(errs, fmt.Errorf("--retry-wait must be >= 0, got %s", c.RetryWait))
	}
	if c.MirrorURL == "" && c.FallbackURL == "" && c.LocalPattern == "" {
		errs = append(errs, errors.New("one of --mirror-url, --fallback-url or --local-exports is required"))
	}
	return errors.Join(errs...)
}

// ParseSARIMAOrder parses "p,d,q,P,D,Q,s".
func ParseSARIMAOrder(s string) (models.SARIMAOrder, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 7 {
		return models.SARIMAOrder{}, fmt.Errorf("--sarima-order %q must have 7 comma-separated integers", s)
	}
	v := make([]int, 7)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return models.SARIMAOrder{}, fmt.Errorf("--sarima-order %q: invalid term %q", s, p)
		}
		v[i] = n
	}
	return models.SARIMAOrder{P: v[0], D: v[1], Q: v[2], SP: v[3], SD: v[4], SQ: v[5], Period: v[6]}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
