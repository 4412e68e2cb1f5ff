package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"livetimers/timetracker/internal/token"
)

type Config struct {
	HTTP         HTTPConfig
	DB           DBConfig
	Auth         AuthConfig
	Live         LiveConfig
	TimerFile    string
	PublicDir    string
	AuditLogFile string
	LogLevel     string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DBConfig is unused when URL is empty; the service then keeps its state in
// JSON files.
type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type AuthConfig struct {
	CookieName       string
	CookieSecure     bool
	BcryptCost       int
	TokenLength      int
	UserStateFile    string
	SessionStateFile string
}

type LiveConfig struct {
	PushInterval   time.Duration
	AllowedOrigins []string
}

// Load reads an optional .env file (ENV_FILE, default .env) and then the
// environment. Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            listenAddr(),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 3600)) * time.Second,
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Auth: AuthConfig{
			CookieName:       getEnv("AUTH_COOKIE_NAME", "sessionId"),
			CookieSecure:     getEnvBool("AUTH_COOKIE_SECURE", false),
			BcryptCost:       getEnvInt("AUTH_BCRYPT_COST", bcrypt.DefaultCost),
			TokenLength:      getEnvInt("AUTH_TOKEN_LENGTH", token.DefaultLength),
			UserStateFile:    getEnv("AUTH_USER_STATE_FILE", "./data/users.json"),
			SessionStateFile: getEnv("AUTH_SESSION_STATE_FILE", "./data/sessions.json"),
		},
		Live: LiveConfig{
			PushInterval:   time.Duration(getEnvInt("LIVE_PUSH_INTERVAL_MS", 1000)) * time.Millisecond,
			AllowedOrigins: splitList(getEnv("LIVE_ALLOWED_ORIGINS", "")),
		},
		TimerFile:    getEnv("TIMER_STATE_FILE", "./data/timers.json"),
		PublicDir:    getEnv("PUBLIC_DIR", "./public"),
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be > 0")
	}
	if c.DB.URL != "" {
		if c.DB.MaxOpenConns <= 0 {
			return fmt.Errorf("DB_MAX_OPEN_CONNS must be > 0")
		}
		if c.DB.MaxIdleConns < 0 || c.DB.MaxIdleConns > c.DB.MaxOpenConns {
			return fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
		}
		if c.DB.ConnMaxLifetime < 0 {
			return fmt.Errorf("DB_CONN_MAX_LIFETIME_SEC must be >= 0")
		}
	} else {
		if c.Auth.UserStateFile == "" {
			return fmt.Errorf("AUTH_USER_STATE_FILE must not be empty")
		}
		if c.Auth.SessionStateFile == "" {
			return fmt.Errorf("AUTH_SESSION_STATE_FILE must not be empty")
		}
		if c.TimerFile == "" {
			return fmt.Errorf("TIMER_STATE_FILE must not be empty")
		}
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("AUTH_COOKIE_NAME must not be empty")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.TokenLength < token.MinLength {
		return fmt.Errorf("AUTH_TOKEN_LENGTH must be >= %d", token.MinLength)
	}
	if c.Live.PushInterval <= 0 {
		return fmt.Errorf("LIVE_PUSH_INTERVAL_MS must be > 0")
	}
	return nil
}

func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// listenAddr prefers HTTP_ADDR and falls back to PORT.
func listenAddr() string {
	if addr := getEnv("HTTP_ADDR", ""); addr != "" {
		return addr
	}
	if port := getEnv("PORT", ""); port != "" {
		return ":" + strings.TrimPrefix(port, ":")
	}
	return ":3000"
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
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
