package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, Config)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 3001, cfg.Port)
				assert.Equal(t, ":3001", cfg.Addr())
				assert.Equal(t, DriverMongo, cfg.StoreDriver)
				assert.Equal(t, "mongodb://127.0.0.1:27017/", cfg.Mongo.URI)
				assert.Equal(t, "fcp-audit", cfg.Mongo.Database)
				assert.Equal(t, 10*time.Second, cfg.StoreMaxTime)
				assert.Equal(t, "secondaryPreferred", cfg.Mongo.ReadPreference)
				assert.Zero(t, cfg.RetentionTTL)
				assert.Equal(t, int32(20), cfg.SQS.WaitTimeSeconds)
				assert.Equal(t, int32(10), cfg.SQS.MaxMessages)
				assert.Equal(t, 10, cfg.SQS.Concurrency)
				assert.False(t, cfg.SOC.Enabled)
				assert.Equal(t, 100, cfg.PageSizeMax)
				assert.Equal(t, 20, cfg.PageSizeDefault)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "overrides",
			envVars: map[string]string{
				"PORT":                     "8080",
				"STORE_DRIVER":             "Postgres",
				"DATABASE_URL":             "postgres://audit@localhost/audit",
				"DATA_GLOBAL_TTL":          "2592000",
				"MONGO_MAX_TIME_MS":        "2500",
				"RETENTION_PURGE_INTERVAL": "5m",
				"SQS_VISIBILITY_TIMEOUT":   "45",
				"SOC_ENABLED":              "true",
				"KAFKA_BROKERS":            "kafka-1:9092, kafka-2:9092,",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 8080, cfg.Port)
				assert.Equal(t, DriverPostgres, cfg.StoreDriver)
				assert.Equal(t, 30*24*time.Hour, cfg.RetentionTTL)
				assert.Equal(t, 2500*time.Millisecond, cfg.StoreMaxTime)
				assert.Equal(t, 5*time.Minute, cfg.RetentionPurgeInterval)
				assert.Equal(t, 45*time.Second, cfg.SQS.VisibilityTimeout)
				assert.True(t, cfg.SOC.Enabled)
				assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.SOC.Brokers)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "store max time wins over the mongo setting",
			envVars: map[string]string{
				"STORE_DRIVER":      "postgres",
				"DATABASE_URL":      "postgres://audit@localhost/audit",
				"MONGO_MAX_TIME_MS": "2500",
				"STORE_MAX_TIME_MS": "4000",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 4*time.Second, cfg.StoreMaxTime)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name:    "invalid integer",
			envVars: map[string]string{"PORT": "http"},
			wantErr: true,
		},
		{
			name:    "invalid ttl",
			envVars: map[string]string{"DATA_GLOBAL_TTL": "thirty days"},
			wantErr: true,
		},
		{
			name:    "invalid boolean",
			envVars: map[string]string{"SOC_ENABLED": "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := FromEnv()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreDriver:     DriverMongo,
			StoreMaxTime:    time.Second,
			Mongo:           Mongo{URI: "mongodb://localhost"},
			PageSizeMax:     100,
			PageSizeDefault: 20,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres; c.RetentionPurgeInterval = time.Minute }, "DATABASE_URL"},
		{"postgres without a time limit", func(c *Config) {
			c.StoreDriver = DriverPostgres
			c.DatabaseURL = "postgres://audit@localhost/audit"
			c.RetentionPurgeInterval = time.Minute
			c.StoreMaxTime = 0
		}, "STORE_MAX_TIME_MS"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "dynamo" }, "unknown STORE_DRIVER"},
		{"negative ttl", func(c *Config) { c.RetentionTTL = -time.Second }, "DATA_GLOBAL_TTL"},
		{"ttl beyond index range", func(c *Config) { c.RetentionTTL = (math.MaxInt32 + 1) * time.Second }, "DATA_GLOBAL_TTL must not exceed"},
		{"soc without brokers", func(c *Config) { c.SOC = SOC{Enabled: true, Topic: "soc"} }, "KAFKA_BROKERS"},
		{"default page size above max", func(c *Config) { c.PageSizeDefault = 200 }, "PAGE_SIZE_DEFAULT"},
		{"queue without workers", func(c *Config) { c.SQS = SQS{QueueURL: "http://sqs/q"} }, "SQS_CONCURRENCY"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("memory driver needs no connection settings", func(t *testing.T) {
		cfg := valid()
		cfg.StoreDriver = DriverMemory
		cfg.Mongo = Mongo{}
		assert.NoError(t, cfg.Validate())
	})
}
