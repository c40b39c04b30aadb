package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Capture    CaptureConfig
	Timing     TimingConfig
	Pagination PaginationConfig
	Enrichment EnrichmentConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Retention  RetentionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	WorkerInterval  time.Duration
}

type BrowserConfig struct {
	Headless        bool
	Timeout         time.Duration
	ViewportWidth   int
	ViewportHeight  int
	AcceptLanguage  string
	TimezoneID      string
	Locale          string
	UserAgent       string
	ProxyServer     string
	NavigateRetries int
}

// CaptureConfig bounds how long a response await may poll.
type CaptureConfig struct {
	Polls        int
	PollInterval time.Duration
}

type TimingConfig struct {
	InitMin    time.Duration
	InitMax    time.Duration
	CascadeMin time.Duration
	CascadeMax time.Duration
	FillMin    time.Duration
	FillMax    time.Duration
	PageMin    time.Duration
	PageMax    time.Duration
}

type PaginationConfig struct {
	PageSize            int
	MaxItems            int
	MaxConsecutiveSkips int
}

type EnrichmentConfig struct {
	Enabled          bool
	AddressPrefixLen int
	MaxAttempts      int
	MinImageChars    int
	DetailWait       time.Duration
	ImageWait        time.Duration
	ItemDelayMin     time.Duration
	ItemDelayMax     time.Duration
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type RetentionConfig struct {
	Days int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			WorkerInterval:  getDurationOrDefault("WORKER_INTERVAL", 10*time.Second),
		},
		Browser: BrowserConfig{
			Headless:        getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:         getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:   getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:  getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage:  getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"),
			TimezoneID:      getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Seoul"),
			Locale:          getEnvOrDefault("BROWSER_LOCALE", "ko-KR"),
			UserAgent:       getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ProxyServer:     getEnvOrDefault("BROWSER_PROXY", ""),
			NavigateRetries: getIntOrDefault("BROWSER_NAVIGATE_RETRIES", 3),
		},
		Capture: CaptureConfig{
			Polls:        getIntOrDefault("CAPTURE_POLLS", 40),
			PollInterval: getDurationOrDefault("CAPTURE_POLL_INTERVAL", 500*time.Millisecond),
		},
		Timing: TimingConfig{
			InitMin:    getDurationOrDefault("TIMING_INIT_MIN", 2*time.Second),
			InitMax:    getDurationOrDefault("TIMING_INIT_MAX", 3*time.Second),
			CascadeMin: getDurationOrDefault("TIMING_CASCADE_MIN", time.Second),
			CascadeMax: getDurationOrDefault("TIMING_CASCADE_MAX", 1500*time.Millisecond),
			FillMin:    getDurationOrDefault("TIMING_FILL_MIN", 300*time.Millisecond),
			FillMax:    getDurationOrDefault("TIMING_FILL_MAX", 600*time.Millisecond),
			PageMin:    getDurationOrDefault("TIMING_PAGE_MIN", 1500*time.Millisecond),
			PageMax:    getDurationOrDefault("TIMING_PAGE_MAX", 2500*time.Millisecond),
		},
		Pagination: PaginationConfig{
			PageSize:            getIntOrDefault("PAGE_SIZE", 10),
			MaxItems:            getIntOrDefault("MAX_ITEMS", 50),
			MaxConsecutiveSkips: getIntOrDefault("MAX_CONSECUTIVE_SKIPS", 2),
		},
		Enrichment: EnrichmentConfig{
			Enabled:          getBoolOrDefault("ENRICH_ENABLED", true),
			AddressPrefixLen: getIntOrDefault("ENRICH_ADDRESS_PREFIX_LEN", 15),
			MaxAttempts:      getIntOrDefault("ENRICH_MAX_ATTEMPTS", 2),
			MinImageChars:    getIntOrDefault("ENRICH_MIN_IMAGE_CHARS", 1000),
			DetailWait:       getDurationOrDefault("ENRICH_DETAIL_WAIT", 6*time.Second),
			ImageWait:        getDurationOrDefault("ENRICH_IMAGE_WAIT", 3*time.Second),
			ItemDelayMin:     getDurationOrDefault("ENRICH_ITEM_DELAY_MIN", 2*time.Second),
			ItemDelayMax:     getDurationOrDefault("ENRICH_ITEM_DELAY_MAX", 4*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			Name:        getEnvOrDefault("DB_NAME", "court_auction"),
			MaxConns:    int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns:    int32(getIntOrDefault("DB_MIN_CONNS", 1)),
			MaxConnLife: getDurationOrDefault("DB_MAX_CONN_LIFE", time.Hour),
			MaxConnIdle: getDurationOrDefault("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:auction_records"),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Storage: StorageConfig{
			Endpoint:      getEnvOrDefault("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey:     getEnvOrDefault("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getEnvOrDefault("STORAGE_SECRET_KEY", ""),
			Bucket:        getEnvOrDefault("STORAGE_BUCKET", "auction-images"),
			UseSSL:        getBoolOrDefault("STORAGE_USE_SSL", false),
			PublicBaseURL: getEnvOrDefault("STORAGE_PUBLIC_BASE_URL", ""),
		},
		Retention: RetentionConfig{
			Days: getIntOrDefault("RETENTION_DAYS", 90),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Capture.Polls < 1 {
		return fmt.Errorf("CAPTURE_POLLS must be at least 1")
	}

	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("CAPTURE_POLL_INTERVAL must be positive")
	}

	if c.Pagination.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be at least 1")
	}

	if c.Pagination.MaxItems < 1 {
		return fmt.Errorf("MAX_ITEMS must be at least 1")
	}

	if c.Enrichment.AddressPrefixLen < 1 {
		return fmt.Errorf("ENRICH_ADDRESS_PREFIX_LEN must be at least 1")
	}

	if c.Enrichment.MaxAttempts < 1 {
		return fmt.Errorf("ENRICH_MAX_ATTEMPTS must be at least 1")
	}

	pairs := []struct {
		name     string
		min, max time.Duration
	}{
		{"TIMING_INIT", c.Timing.InitMin, c.Timing.InitMax},
		{"TIMING_CASCADE", c.Timing.CascadeMin, c.Timing.CascadeMax},
		{"TIMING_FILL", c.Timing.FillMin, c.Timing.FillMax},
		{"TIMING_PAGE", c.Timing.PageMin, c.Timing.PageMax},
		{"ENRICH_ITEM_DELAY", c.Enrichment.ItemDelayMin, c.Enrichment.ItemDelayMax},
	}
	for _, p := range pairs {
		if p.min > p.max {
			return fmt.Errorf("%s_MIN cannot be greater than %s_MAX", p.name, p.name)
		}
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
