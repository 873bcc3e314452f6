package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from an optional YAML file, a .env file
// and QUIZ_* environment variables.
type Config struct {
	Env      string   `mapstructure:"env"` // local, dev, production
	Server   Server   `mapstructure:"server"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
	Quiz     Quiz     `mapstructure:"quiz"`
	Session  Session  `mapstructure:"session"`
	Auth     Auth     `mapstructure:"auth"`
}

type Server struct {
	Port         string  `mapstructure:"port"`
	CookieSecret string  `mapstructure:"cookie_secret"`
	SecureCookie bool    `mapstructure:"secure_cookie"`
	LoginRate    float64 `mapstructure:"login_rate"` // login attempts per second, per client address
	LoginBurst   int     `mapstructure:"login_burst"`
}

// Redis is optional; an empty Addr keeps all shared state in process.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Postgres is optional; an empty URL serves the question bank from Quiz.QuestionsFile.
type Postgres struct {
	URL string `mapstructure:"url"`
}

type Quiz struct {
	Countdown     time.Duration `mapstructure:"countdown"`
	BankTTL       time.Duration `mapstructure:"bank_ttl"`
	QuestionsFile string        `mapstructure:"questions_file"`
}

type Session struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Auth struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
	// Admin is seeded at startup when both email and password are set.
	AdminEmail    string `mapstructure:"admin_email"`
	AdminName     string `mapstructure:"admin_name"`
	AdminPassword string `mapstructure:"admin_password"`
}

// Load reads configuration from path (missing files are fine) and the environment.
func Load(path string) (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("quiz")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("error loading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cookie_secret", "")
	v.SetDefault("server.secure_cookie", false)
	v.SetDefault("server.login_rate", 1.0)
	v.SetDefault("server.login_burst", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.url", "")
	v.SetDefault("quiz.countdown", "120s")
	v.SetDefault("quiz.bank_ttl", "10m")
	v.SetDefault("quiz.questions_file", "config/questions.yaml")
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.sweep_interval", "1s")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.admin_name", "Administrator")
	v.SetDefault("auth.admin_password", "")
}
