package buildCFG

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"studioBooker/internal/mailer"
	"studioBooker/internal/repo"
	"studioBooker/internal/slots"
)

type Config struct {
	Server   ServerConfig
	Studio   StudioConfig
	DB       DBConfig
	Mail     MailConfig
	Rabbit   RabbitConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	PublicBaseURL   string
	CORSOrigins     []string
	BookRatePerMin  int
	ShutdownTimeout time.Duration
}

type StudioConfig struct {
	OpenHour  int
	CloseHour int
}

type DBConfig struct {
	Driver string
	Path   string
	DSN    string
	Pool   repo.PoolOptions
}

type MailConfig struct {
	Transport  mailer.TransportConfig
	AdminEmail string
	Timeout    time.Duration
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("BOOK_RATE_PER_MIN", 0)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("OPEN_HOUR", slots.DefaultOpen)
	v.SetDefault("CLOSE_HOUR", slots.DefaultClose)

	v.SetDefault("DB_DRIVER", string(repo.DialectSQLite))
	v.SetDefault("DB_PATH", "bookings.db")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("MAIL_HOST", "")
	v.SetDefault("MAIL_PORT", 0)
	v.SetDefault("MAIL_SECURE", false)
	v.SetDefault("MAIL_SERVICE", "")
	v.SetDefault("MAIL_USER", "")
	v.SetDefault("MAIL_PASS", "")
	v.SetDefault("MAIL_FROM", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "studio.notifications")
	v.SetDefault("AMQP_QUEUE", "studio.admin_mail")

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the optional .env and config file (yaml, keys named like the
// environment variables), then the environment, which wins.
func Load(configPath string, log *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config %s: %w", configPath, err)
				}
			}
			log.Info().Str("path", configPath).Msg("no config file found, using environment only")
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server:   BuildServerConfig(v),
		Studio:   StudioConfig{OpenHour: v.GetInt("OPEN_HOUR"), CloseHour: v.GetInt("CLOSE_HOUR")},
		DB:       BuildDBConfig(v),
		Mail:     BuildMailConfig(v),
		Rabbit:   BuildRabbitConfig(v),
		LogLevel: v.GetString("LOG_LEVEL"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func BuildServerConfig(v *viper.Viper) ServerConfig {
	return ServerConfig{
		Port:            strings.TrimPrefix(strings.TrimSpace(v.GetString("PORT")), ":"),
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(v.GetString("PUBLIC_BASE_URL")), "/"),
		CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),
		BookRatePerMin:  v.GetInt("BOOK_RATE_PER_MIN"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
}

func BuildDBConfig(v *viper.Viper) DBConfig {
	return DBConfig{
		Driver: strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		Path:   v.GetString("DB_PATH"),
		DSN:    v.GetString("DB_DSN"),
		Pool: repo.PoolOptions{
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
	}
}

func BuildMailConfig(v *viper.Viper) MailConfig {
	return MailConfig{
		Transport: mailer.TransportConfig{
			Host:    v.GetString("MAIL_HOST"),
			Port:    v.GetInt("MAIL_PORT"),
			Secure:  v.GetBool("MAIL_SECURE"),
			Service: v.GetString("MAIL_SERVICE"),
			User:    v.GetString("MAIL_USER"),
			Pass:    v.GetString("MAIL_PASS"),
			From:    v.GetString("MAIL_FROM"),
		},
		AdminEmail: strings.TrimSpace(v.GetString("ADMIN_EMAIL")),
		Timeout:    v.GetDuration("NOTIFY_TIMEOUT"),
	}
}

func BuildRabbitConfig(v *viper.Viper) RabbitConfig {
	return RabbitConfig{
		Url:      strings.TrimSpace(v.GetString("AMQP_URL")),
		Exchange: v.GetString("AMQP_EXCHANGE"),
		Queue:    v.GetString("AMQP_QUEUE"),
	}
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is empty")
	}
	if c.Studio.OpenHour < 0 || c.Studio.CloseHour > 24 || c.Studio.OpenHour >= c.Studio.CloseHour {
		return fmt.Errorf("studio hours %d-%d are invalid", c.Studio.OpenHour, c.Studio.CloseHour)
	}
	switch repo.Dialect(c.DB.Driver) {
	case repo.DialectSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is empty")
		}
	case repo.DialectPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("DB_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.Rabbit.Url != "" && (c.Rabbit.Exchange == "" || c.Rabbit.Queue == "") {
		return fmt.Errorf("AMQP_EXCHANGE and AMQP_QUEUE are required with AMQP_URL")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
