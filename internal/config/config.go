package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bank-reconciliation-backend/internal/models"
)

type Config struct {
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	HTTPAddr    string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	AutoMatchCron     string
	AutoMatchTimezone string

	AmountTolerance float64
	DateWindowDays  int
	MaxCandidates   int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "reconciliation")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("AUTO_MATCH_TIMEZONE", "UTC")
	v.SetDefault("MATCH_AMOUNT_TOLERANCE", 0.10)
	v.SetDefault("MATCH_DATE_WINDOW_DAYS", 30)
	v.SetDefault("MATCH_MAX_CANDIDATES", 3)
}

// Load reads .env (if present), the optional config file and the environment,
// in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	// .env is optional, the process environment is enough in production
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBHost:            v.GetString("DB_HOST"),
		DBPort:            v.GetInt("DB_PORT"),
		DBUser:            v.GetString("DB_USER"),
		DBPassword:        v.GetString("DB_PASSWORD"),
		DBName:            v.GetString("DB_NAME"),
		DBSSLMode:         v.GetString("DB_SSLMODE"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
		AutoMatchCron:     v.GetString("AUTO_MATCH_CRON"),
		AutoMatchTimezone: v.GetString("AUTO_MATCH_TIMEZONE"),
		AmountTolerance:   v.GetFloat64("MATCH_AMOUNT_TOLERANCE"),
		DateWindowDays:    v.GetInt("MATCH_DATE_WINDOW_DAYS"),
		MaxCandidates:     v.GetInt("MATCH_MAX_CANDIDATES"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AmountTolerance <= 0 || c.AmountTolerance >= 1 {
		return fmt.Errorf("MATCH_AMOUNT_TOLERANCE must be in (0,1), got %v", c.AmountTolerance)
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("MATCH_DATE_WINDOW_DAYS must not be negative, got %d", c.DateWindowDays)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("MATCH_MAX_CANDIDATES must be positive, got %d", c.MaxCandidates)
	}
	if c.DatabaseURL == "" && c.DBHost == "" {
		return fmt.Errorf("either DATABASE_URL or DB_HOST must be set")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// GormConfig is shared by every gorm handle the service opens. TranslateError
// turns unique violations into gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the engine's tables. The collaborator tables are
// migrated too so that a fresh database is usable on its own.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ReconciliationBatch{},
		&models.StatementLine{},
		&models.Match{},
		&models.MatchAuditLog{},
		&models.Payment{},
		&models.Expense{},
		&models.Invoice{},
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
