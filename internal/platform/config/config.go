package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	StoreDriver  string
	// StoreMaxTime bounds every store call, whichever driver serves it.
	StoreMaxTime time.Duration
	Mongo        Mongo

	// DatabaseURL is the Postgres DSN, used when StoreDriver is postgres.
	DatabaseURL            string
	RetentionPurgeInterval time.Duration

	// RetentionTTL is how long records are kept. Zero disables retention.
	RetentionTTL time.Duration

	SQS SQS
	SOC SOC

	PageSizeMax     int
	PageSizeDefault int
}

// Mongo configures the document store.
type Mongo struct {
	URI            string
	Database       string
	ReadPreference string
}

// SQS configures the inbound queue. An empty QueueURL disables the consumer.
type SQS struct {
	QueueURL          string
	Region            string
	Endpoint          string
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout time.Duration
	Concurrency       int
}

// SOC configures forwarding of security views to Kafka.
type SOC struct {
	Enabled       bool
	Brokers       []string
	Topic         string
	BufferSize    int
	FlushInterval time.Duration
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// FromEnv builds a Config from environment variables, loading .env first
// when one exists.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	ttlSeconds, err := getEnvAsInt("DATA_GLOBAL_TTL", 0)
	if err != nil {
		return Config{}, err
	}
	// MONGO_MAX_TIME_MS predates the Postgres store and is still honoured.
	legacyMaxTimeMS, err := getEnvAsInt("MONGO_MAX_TIME_MS", 10000)
	if err != nil {
		return Config{}, err
	}
	maxTimeMS, err := getEnvAsInt("STORE_MAX_TIME_MS", legacyMaxTimeMS)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		StoreMaxTime: time.Duration(maxTimeMS) * time.Millisecond,
		Mongo: Mongo{
			URI:            getEnv("MONGO_URI", "mongodb://127.0.0.1:27017/"),
			Database:       getEnv("MONGO_DATABASE", "fcp-audit"),
			ReadPreference: getEnv("MONGO_READ_PREFERENCE", "secondaryPreferred"),
		},
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RetentionTTL: time.Duration(ttlSeconds) * time.Second,
		SQS: SQS{
			QueueURL: os.Getenv("SQS_QUEUE_URL"),
			Region:   getEnv("AWS_REGION", "eu-west-2"),
			Endpoint: os.Getenv("AWS_ENDPOINT_URL"),
		},
		SOC: SOC{
			Topic: getEnv("SOC_TOPIC", "fcp-soc-events"),
		},
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Port, err = getEnvAsInt("PORT", 3001)
	collect(err)
	cfg.PageSizeMax, err = getEnvAsInt("PAGE_SIZE_MAX", 100)
	collect(err)
	cfg.PageSizeDefault, err = getEnvAsInt("PAGE_SIZE_DEFAULT", 20)
	collect(err)
	cfg.RetentionPurgeInterval, err = getEnvAsDuration("RETENTION_PURGE_INTERVAL", time.Minute)
	collect(err)

	wait, err := getEnvAsInt("SQS_WAIT_TIME_SECONDS", 20)
	collect(err)
	cfg.SQS.WaitTimeSeconds = int32(wait)
	maxMessages, err := getEnvAsInt("SQS_MAX_MESSAGES", 10)
	collect(err)
	cfg.SQS.MaxMessages = int32(maxMessages)
	cfg.SQS.VisibilityTimeout, err = getEnvAsDuration("SQS_VISIBILITY_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.SQS.Concurrency, err = getEnvAsInt("SQS_CONCURRENCY", 10)
	collect(err)

	cfg.SOC.Enabled, err = getEnvAsBool("SOC_ENABLED", false)
	collect(err)
	cfg.SOC.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.SOC.BufferSize, err = getEnvAsInt("SOC_BUFFER_SIZE", 10000)
	collect(err)
	cfg.SOC.FlushInterval, err = getEnvAsDuration("SOC_FLUSH_INTERVAL", time.Second)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
		if c.RetentionPurgeInterval <= 0 {
			errs = append(errs, errors.New("RETENTION_PURGE_INTERVAL must be positive"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.StoreMaxTime <= 0 {
		errs = append(errs, errors.New("STORE_MAX_TIME_MS must be positive"))
	}
	if c.RetentionTTL < 0 {
		errs = append(errs, errors.New("DATA_GLOBAL_TTL must not be negative"))
	}
	if c.RetentionTTL > math.MaxInt32*time.Second {
		errs = append(errs, fmt.Errorf("DATA_GLOBAL_TTL must not exceed %d seconds", math.MaxInt32))
	}
	if c.SOC.Enabled {
		if len(c.SOC.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when SOC_ENABLED is true"))
		}
		if c.SOC.Topic == "" {
			errs = append(errs, errors.New("SOC_TOPIC is required when SOC_ENABLED is true"))
		}
	}
	if c.SQS.QueueURL != "" && c.SQS.Concurrency < 1 {
		errs = append(errs, errors.New("SQS_CONCURRENCY must be at least 1"))
	}
	if c.PageSizeMax < 1 {
		errs = append(errs, errors.New("PAGE_SIZE_MAX must be at least 1"))
	}
	if c.PageSizeDefault < 1 || c.PageSizeDefault > c.PageSizeMax {
		errs = append(errs, errors.New("PAGE_SIZE_DEFAULT must be between 1 and PAGE_SIZE_MAX"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// getEnvAsDuration accepts Go durations ("30s") or bare seconds ("30").
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
