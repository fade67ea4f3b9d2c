// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-webp/internal/storage"
)

const (
	ProbePolicyFail    = "fail"
	ProbePolicyProceed = "proceed"

	MaxWorkersLimit = 20
)

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Config is the full runtime configuration. It is built once by LoadConfig
// and passed by value to constructors.
type Config struct {
	StorageProvider   string
	Bucket            string
	Prefix            string
	DestinationPrefix string
	Region            string
	Endpoint          string
	UsePathStyle      bool
	AzureEndpoint     string
	FileRoot          string

	Quality          int
	DeleteOriginal   bool
	MaxWorkers       int
	BatchSize        int
	ProbeErrorPolicy string

	LogLevel       string
	LogFile        string
	LogMaxBytes    int
	LogBackupCount int

	NATSURL          string
	ConvertedSubject string
	DoneSubject      string
}

// Overrides carries optional command-line values. Nil fields keep the
// loaded value.
type Overrides struct {
	Prefix     *string
	Quality    *int
	MaxWorkers *int
	Verbose    bool
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageProvider:   strings.ToLower(getenv("STORAGE_PROVIDER", storage.ProviderS3)),
		Bucket:            getenv("S3_BUCKET_NAME", ""),
		Prefix:            getenv("S3_PREFIX", ""),
		DestinationPrefix: lookupenv("S3_DESTINATION_PREFIX", "webp-images"),
		Region:            getenv("AWS_DEFAULT_REGION", "us-east-1"),
		Endpoint:          getenv("S3_ENDPOINT", ""),
		AzureEndpoint:     getenv("AZURE_BLOB_ENDPOINT", ""),
		FileRoot:          getenv("FILE_STORE_ROOT", "./data"),
		ProbeErrorPolicy:  strings.ToLower(getenv("PROBE_ERROR_POLICY", ProbePolicyFail)),
		LogLevel:          strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		LogFile:           lookupenv("LOG_FILE", "logs/s3_converter.log"),
		NATSURL:           getenv("NATS_URL", ""),
		ConvertedSubject:  getenv("SUBJECT_WEBP_CONVERTED", "images.webp.converted"),
		DoneSubject:       getenv("SUBJECT_WEBP_BATCH_DONE", "images.webp.batch.done"),
	}

	var err error
	if cfg.UsePathStyle, err = parseBool(getenv("S3_USE_PATH_STYLE", "false"), "S3_USE_PATH_STYLE"); err != nil {
		return Config{}, err
	}
	if cfg.DeleteOriginal, err = parseBool(getenv("DELETE_ORIGINAL", "false"), "DELETE_ORIGINAL"); err != nil {
		return Config{}, err
	}
	if cfg.Quality, err = parseInt(getenv("WEBP_QUALITY", "100"), "WEBP_QUALITY"); err != nil {
		return Config{}, err
	}
	if cfg.MaxWorkers, err = parseInt(getenv("MAX_WORKERS", "4"), "MAX_WORKERS"); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = parsePositiveInt(getenv("BATCH_SIZE", "100"), "BATCH_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxBytes, err = parsePositiveInt(getenv("LOG_MAX_BYTES", "104100760"), "LOG_MAX_BYTES"); err != nil {
		return Config{}, err
	}
	if cfg.LogBackupCount, err = parseInt(getenv("LOG_BACKUP_COUNT", "5"), "LOG_BACKUP_COUNT"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and required settings.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("S3_BUCKET_NAME is required")
	}
	if !slices.Contains(storage.Providers(), c.StorageProvider) {
		return fmt.Errorf("STORAGE_PROVIDER must be one of %v (got %q)", storage.Providers(), c.StorageProvider)
	}
	if c.StorageProvider == storage.ProviderAzure && c.AzureEndpoint == "" {
		return fmt.Errorf("AZURE_BLOB_ENDPOINT is required for the azure provider")
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("WEBP_QUALITY must be between 0 and 100 (got %d)", c.Quality)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > MaxWorkersLimit {
		return fmt.Errorf("MAX_WORKERS must be between 1 and %d (got %d)", MaxWorkersLimit, c.MaxWorkers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be greater than zero (got %d)", c.BatchSize)
	}
	if c.ProbeErrorPolicy != ProbePolicyFail && c.ProbeErrorPolicy != ProbePolicyProceed {
		return fmt.Errorf("PROBE_ERROR_POLICY must be %q or %q (got %q)", ProbePolicyFail, ProbePolicyProceed, c.ProbeErrorPolicy)
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of %v (got %q)", logLevels, c.LogLevel)
	}
	if c.LogBackupCount < 0 {
		return fmt.Errorf("LOG_BACKUP_COUNT must not be negative (got %d)", c.LogBackupCount)
	}
	return nil
}

// Apply returns a copy of c with the overrides applied and re-validated.
func (c Config) Apply(o Overrides) (Config, error) {
	if o.Prefix != nil {
		c.Prefix = *o.Prefix
	}
	if o.Quality != nil {
		c.Quality = *o.Quality
	}
	if o.MaxWorkers != nil {
		c.MaxWorkers = *o.MaxWorkers
	}
	if o.Verbose {
		c.LogLevel = "DEBUG"
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// StorageOptions maps the config onto the storage backend options.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Provider:      c.StorageProvider,
		Bucket:        c.Bucket,
		Region:        c.Region,
		Endpoint:      c.Endpoint,
		UsePathStyle:  c.UsePathStyle,
		AzureEndpoint: c.AzureEndpoint,
		FileRoot:      c.FileRoot,
		PageSize:      c.BatchSize,
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// lookupenv is like getenv but keeps an explicitly empty value.
func lookupenv(k, d string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return d
}

func parseInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := parseInt(value, name)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseBool(value string, name string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "on", "y":
		return true, nil
	case "no", "off", "n":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
