package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all runtime settings consumed by the application.
type Config struct {
	Port        string
	Environment string
	SecretKey   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Price alert core settings.
	RefreshInterval time.Duration // staleness window for cached quotes
	ScanInterval    time.Duration // scheduler tick period
	AlertsPerUser   int

	PriceAPIURL     string
	PriceAPITimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AdminEmail   string

	MongoURI string
}

// LoadConfig reads configuration from the environment, with a .env file as
// an optional source for local development.
func LoadConfig(log *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		SecretKey:   getEnv("SECRET_KEY", "something-secret"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stockalert"),
		SQLitePath: getEnv("SQLITE_PATH", "app.db"),

		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_MINUTES", 9)) * time.Minute,
		ScanInterval:    time.Duration(getEnvInt("SCAN_INTERVAL_SECONDS", 60)) * time.Second,
		AlertsPerUser:   getEnvInt("ALERTS_PER_USER", 5),

		PriceAPIURL:     getEnv("PRICE_API_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
		PriceAPITimeout: time.Duration(getEnvInt("PRICE_API_TIMEOUT_SECONDS", 8)) * time.Second,

		SMTPHost:     getEnv("MAIL_SERVER", "localhost"),
		SMTPPort:     getEnvInt("MAIL_PORT", 25),
		SMTPUsername: getEnv("MAIL_USERNAME", ""),
		SMTPPassword: getEnv("MAIL_PASSWORD", ""),
		AdminEmail:   getEnv("ADMIN_EMAIL", "admin@localhost"),

		MongoURI: getEnv("MONGODB_URI", ""),
	}
}

// InitDB opens the database connection. Postgres is used when DB_HOST is
// set; otherwise a local SQLite file keeps development setup to zero steps.
func InitDB(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	logLevel := logger.Error
	if cfg.Environment != "production" {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.DBHost != "" {
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
		)
		log.Info("connecting to postgres",
			zap.String("host", cfg.DBHost),
			zap.String("dbname", cfg.DBName),
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		log.Info("DB_HOST not set, falling back to sqlite", zap.String("path", cfg.SQLitePath))
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
