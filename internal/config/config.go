package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Scheduler     SchedulerConfig
	Collaborators CollaboratorsConfig
	Alerts        AlertsConfig
	API           APIConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type SchedulerConfig struct {
	TickInterval  time.Duration
	ActionTimeout time.Duration
	ActivityTTL   time.Duration
}

type CollaboratorsConfig struct {
	ScraperURL   string
	GeneratorURL string
	DeliveryURL  string
	APIKey       string
}

type AlertsConfig struct {
	TelegramToken  string
	TelegramChatID int64
}

type APIConfig struct {
	Key string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("SCHEDULER_TICK", "30s")
	viper.SetDefault("ACTION_TIMEOUT", "5m")
	viper.SetDefault("ACTIVITY_CACHE_TTL", "30s")

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Scheduler: SchedulerConfig{
			TickInterval:  durationOrDefault("SCHEDULER_TICK", 30*time.Second),
			ActionTimeout: durationOrDefault("ACTION_TIMEOUT", 5*time.Minute),
			ActivityTTL:   durationOrDefault("ACTIVITY_CACHE_TTL", 30*time.Second),
		},
		Collaborators: CollaboratorsConfig{
			ScraperURL:   viper.GetString("SCRAPER_URL"),
			GeneratorURL: viper.GetString("GENERATOR_URL"),
			DeliveryURL:  viper.GetString("DELIVERY_URL"),
			APIKey:       viper.GetString("COLLABORATOR_API_KEY"),
		},
		Alerts: AlertsConfig{
			TelegramToken:  viper.GetString("ALERT_BOT_TOKEN"),
			TelegramChatID: viper.GetInt64("ALERT_CHAT_ID"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database section, for bootstrap tooling.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

func durationOrDefault(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return def
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
