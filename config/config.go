package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ramsey-B/clover/pkg/audit"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/progress"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

type Config struct {
	AppName            string
	Port               int
	LogLevel           string
	PrettyLogs         bool
	StartupMaxAttempts int

	// PostgreSQL (audit store)
	DatabaseHost                  string
	DatabasePort                  int
	DatabaseUserName              string
	DatabasePassword              string
	DatabaseName                  string
	DatabaseSSLMode               string
	DatabaseMaxOpenConns          int
	DatabaseMaxIdleConns          int
	DatabaseConnMaxLifetime       time.Duration
	DatabaseMigrationFolderPath   string
	DatabaseMigrationVersion      int
	DatabaseMigrationForce        int
	DatabaseMigrationAutoRollback bool

	// Graph Database (Memgraph / Neo4j)
	GraphDBScheme   string
	GraphDBHost     string
	GraphDBPort     int
	GraphDBUser     string
	GraphDBPassword string
	GraphDBName     string

	// Redis (progress)
	RedisEnabled     bool
	RedisHost        string
	RedisPort        int
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
	RedisProgressTTL time.Duration

	// Kafka Producer (audit and resolution events)
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaOutputTopic  string
	KafkaBatchSize    int
	KafkaBatchTimeout int
	KafkaRequiredAcks int
	KafkaCompression  string

	// Audit
	AuditWriteTimeout time.Duration
	AuditReportTTL    time.Duration

	// Matching
	MatchNameThreshold         float64
	MatchNameOnlyThreshold     float64
	MatchEmailThreshold        float64
	MatchPhoneThreshold        float64
	MatchOrganizationThreshold float64
	MatchAddressThreshold      float64
	MatchNameWeight            float64
	MatchEmailWeight           float64
	MatchPhoneWeight           float64
	MatchOrganizationWeight    float64
	MatchAddressWeight         float64
	MatchWinklerScale          float64
	MatchMaxComparisons        int
	MatchWorkers               int
	GoldenMergeDiscount        float64
}

func setDefaults(v *viper.Viper) {
	sim := similarity.DefaultConfig()

	defaults := map[string]any{
		"APP_NAME":             "clover",
		"PORT":                 3004,
		"LOG_LEVEL":            "info",
		"PRETTY_LOGS":          false,
		"STARTUP_MAX_ATTEMPTS": 5,

		"DB_HOST":                    "",
		"DB_PORT":                    5432,
		"DB_USER_NAME":               "",
		"DB_PASSWORD":                "",
		"DB_NAME":                    "clover",
		"DB_SSL_MODE":                "disable",
		"DB_MAX_OPEN_CONNS":          25,
		"DB_MAX_IDLE_CONNS":          10,
		"DB_CONN_MAX_LIFETIME":       "10s",
		"DB_MIGRATION_FOLDER_PATH":   "db/pg",
		"DB_MIGRATION_VERSION":       0,
		"DB_MIGRATION_FORCE":         0,
		"DB_MIGRATION_AUTO_ROLLBACK": true,

		"GRAPH_DB_SCHEME":   "bolt",
		"GRAPH_DB_HOST":     "localhost",
		"GRAPH_DB_PORT":     7687,
		"GRAPH_DB_USER":     "",
		"GRAPH_DB_PASSWORD": "",
		"GRAPH_DB_NAME":     "",

		"REDIS_ENABLED":      false,
		"REDIS_HOST":         "localhost",
		"REDIS_PORT":         6379,
		"REDIS_PASSWORD":     "",
		"REDIS_DB":           0,
		"REDIS_KEY_PREFIX":   progress.DefaultKeyPrefix,
		"REDIS_PROGRESS_TTL": progress.DefaultTTL.String(),

		"KAFKA_ENABLED":          false,
		"KAFKA_BROKERS":          "localhost:9092",
		"KAFKA_OUTPUT_TOPIC":     "clover-events",
		"KAFKA_BATCH_SIZE":       100,
		"KAFKA_BATCH_TIMEOUT_MS": 100,
		"KAFKA_REQUIRED_ACKS":    1,
		"KAFKA_COMPRESSION":      "snappy",

		"AUDIT_WRITE_TIMEOUT": audit.DefaultConfig().WriteTimeout.String(),
		"AUDIT_REPORT_TTL":    audit.DefaultConfig().ReportTTL.String(),

		"MATCH_NAME_THRESHOLD":         sim.NameThreshold,
		"MATCH_NAME_ONLY_THRESHOLD":    sim.NameOnlyThreshold,
		"MATCH_EMAIL_THRESHOLD":        sim.EmailThreshold,
		"MATCH_PHONE_THRESHOLD":        sim.PhoneThreshold,
		"MATCH_ORGANIZATION_THRESHOLD": sim.OrganizationThreshold,
		"MATCH_ADDRESS_THRESHOLD":      sim.AddressThreshold,
		"MATCH_NAME_WEIGHT":            sim.NameWeight,
		"MATCH_EMAIL_WEIGHT":           sim.EmailWeight,
		"MATCH_PHONE_WEIGHT":           sim.PhoneWeight,
		"MATCH_ORGANIZATION_WEIGHT":    sim.OrganizationWeight,
		"MATCH_ADDRESS_WEIGHT":         sim.AddressWeight,
		"MATCH_WINKLER_SCALE":          sim.WinklerScale,
		"MATCH_MAX_COMPARISONS":        matching.DefaultMaxComparisons,
		"MATCH_WORKERS":                1,
		"GOLDEN_MERGE_DISCOUNT":        merging.DefaultMergeDiscount,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads configuration from the environment. envFiles are loaded first
// when present; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return FromViper(v), nil
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) *Config {
	return &Config{
		AppName:            v.GetString("APP_NAME"),
		Port:               v.GetInt("PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		PrettyLogs:         v.GetBool("PRETTY_LOGS"),
		StartupMaxAttempts: v.GetInt("STARTUP_MAX_ATTEMPTS"),

		DatabaseHost:                  v.GetString("DB_HOST"),
		DatabasePort:                  v.GetInt("DB_PORT"),
		DatabaseUserName:              v.GetString("DB_USER_NAME"),
		DatabasePassword:              v.GetString("DB_PASSWORD"),
		DatabaseName:                  v.GetString("DB_NAME"),
		DatabaseSSLMode:               v.GetString("DB_SSL_MODE"),
		DatabaseMaxOpenConns:          v.GetInt("DB_MAX_OPEN_CONNS"),
		DatabaseMaxIdleConns:          v.GetInt("DB_MAX_IDLE_CONNS"),
		DatabaseConnMaxLifetime:       v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DatabaseMigrationFolderPath:   v.GetString("DB_MIGRATION_FOLDER_PATH"),
		DatabaseMigrationVersion:      v.GetInt("DB_MIGRATION_VERSION"),
		DatabaseMigrationForce:        v.GetInt("DB_MIGRATION_FORCE"),
		DatabaseMigrationAutoRollback: v.GetBool("DB_MIGRATION_AUTO_ROLLBACK"),

		GraphDBScheme:   v.GetString("GRAPH_DB_SCHEME"),
		GraphDBHost:     v.GetString("GRAPH_DB_HOST"),
		GraphDBPort:     v.GetInt("GRAPH_DB_PORT"),
		GraphDBUser:     v.GetString("GRAPH_DB_USER"),
		GraphDBPassword: v.GetString("GRAPH_DB_PASSWORD"),
		GraphDBName:     v.GetString("GRAPH_DB_NAME"),

		RedisEnabled:     v.GetBool("REDIS_ENABLED"),
		RedisHost:        v.GetString("REDIS_HOST"),
		RedisPort:        v.GetInt("REDIS_PORT"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		RedisKeyPrefix:   v.GetString("REDIS_KEY_PREFIX"),
		RedisProgressTTL: v.GetDuration("REDIS_PROGRESS_TTL"),

		KafkaEnabled:      v.GetBool("KAFKA_ENABLED"),
		KafkaBrokers:      kafka.ParseBrokers(v.GetString("KAFKA_BROKERS")),
		KafkaOutputTopic:  v.GetString("KAFKA_OUTPUT_TOPIC"),
		KafkaBatchSize:    v.GetInt("KAFKA_BATCH_SIZE"),
		KafkaBatchTimeout: v.GetInt("KAFKA_BATCH_TIMEOUT_MS"),
		KafkaRequiredAcks: v.GetInt("KAFKA_REQUIRED_ACKS"),
		KafkaCompression:  v.GetString("KAFKA_COMPRESSION"),

		AuditWriteTimeout: v.GetDuration("AUDIT_WRITE_TIMEOUT"),
		AuditReportTTL:    v.GetDuration("AUDIT_REPORT_TTL"),

		MatchNameThreshold:         v.GetFloat64("MATCH_NAME_THRESHOLD"),
		MatchNameOnlyThreshold:     v.GetFloat64("MATCH_NAME_ONLY_THRESHOLD"),
		MatchEmailThreshold:        v.GetFloat64("MATCH_EMAIL_THRESHOLD"),
		MatchPhoneThreshold:        v.GetFloat64("MATCH_PHONE_THRESHOLD"),
		MatchOrganizationThreshold: v.GetFloat64("MATCH_ORGANIZATION_THRESHOLD"),
		MatchAddressThreshold:      v.GetFloat64("MATCH_ADDRESS_THRESHOLD"),
		MatchNameWeight:            v.GetFloat64("MATCH_NAME_WEIGHT"),
		MatchEmailWeight:           v.GetFloat64("MATCH_EMAIL_WEIGHT"),
		MatchPhoneWeight:           v.GetFloat64("MATCH_PHONE_WEIGHT"),
		MatchOrganizationWeight:    v.GetFloat64("MATCH_ORGANIZATION_WEIGHT"),
		MatchAddressWeight:         v.GetFloat64("MATCH_ADDRESS_WEIGHT"),
		MatchWinklerScale:          v.GetFloat64("MATCH_WINKLER_SCALE"),
		MatchMaxComparisons:        v.GetInt("MATCH_MAX_COMPARISONS"),
		MatchWorkers:               v.GetInt("MATCH_WORKERS"),
		GoldenMergeDiscount:        v.GetFloat64("GOLDEN_MERGE_DISCOUNT"),
	}
}

// Validate reports configuration that makes it impossible to run a batch
func (c *Config) Validate() error {
	var errs []error
	if c.GraphDBHost == "" {
		errs = append(errs, errors.New("GRAPH_DB_HOST is required"))
	}
	if c.DatabaseHost == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DatabaseUserName == "" {
		errs = append(errs, errors.New("DB_USER_NAME is required"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if err := c.MatchConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.GoldenMergeDiscount <= 0 || c.GoldenMergeDiscount > 1 {
		errs = append(errs, fmt.Errorf("GOLDEN_MERGE_DISCOUNT must be in (0, 1], got %v", c.GoldenMergeDiscount))
	}
	return errors.Join(errs...)
}

// MatchConfig returns the similarity policy
func (c *Config) MatchConfig() similarity.Config {
	return similarity.Config{
		NameThreshold:         c.MatchNameThreshold,
		NameOnlyThreshold:     c.MatchNameOnlyThreshold,
		EmailThreshold:        c.MatchEmailThreshold,
		PhoneThreshold:        c.MatchPhoneThreshold,
		OrganizationThreshold: c.MatchOrganizationThreshold,
		AddressThreshold:      c.MatchAddressThreshold,
		NameWeight:            c.MatchNameWeight,
		EmailWeight:           c.MatchEmailWeight,
		PhoneWeight:           c.MatchPhoneWeight,
		OrganizationWeight:    c.MatchOrganizationWeight,
		AddressWeight:         c.MatchAddressWeight,
		WinklerScale:          c.MatchWinklerScale,
	}
}

func (c *Config) MatcherConfig() matching.Config {
	return matching.Config{
		MaxComparisons: c.MatchMaxComparisons,
		Workers:        c.MatchWorkers,
	}
}

func (c *Config) MergeConfig() merging.Config {
	return merging.Config{MergeDiscount: c.GoldenMergeDiscount}
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) MigrationConfig() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(max(c.DatabaseMigrationVersion, 0)),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) GraphConfig() graph.Config {
	return graph.Config{
		Scheme:   c.GraphDBScheme,
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
	}
}

func (c *Config) RedisConfig() progress.Config {
	return progress.Config{
		Host:      c.RedisHost,
		Port:      c.RedisPort,
		Password:  c.RedisPassword,
		DB:        c.RedisDB,
		KeyPrefix: c.RedisKeyPrefix,
		TTL:       c.RedisProgressTTL,
	}
}

func (c *Config) ProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) AuditConfig() audit.Config {
	cfg := audit.DefaultConfig()
	if c.AuditWriteTimeout > 0 {
		cfg.WriteTimeout = c.AuditWriteTimeout
	}
	if c.AuditReportTTL > 0 {
		cfg.ReportTTL = c.AuditReportTTL
	}
	return cfg
}
