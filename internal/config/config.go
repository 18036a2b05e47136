package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StrategyCombined = "combined"
	StrategyStaged   = "staged"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	UploaderHTTP = "http"
	UploaderS3   = "s3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Session       SessionConfig       `yaml:"session"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Submission    SubmissionConfig    `yaml:"submission"`
	CodeLab       CodeLabConfig       `yaml:"code_lab"`
	Grading       GradingConfig       `yaml:"grading"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig is the local agent's listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadMemory int64         `yaml:"max_upload_memory"`
	// AllowedOrigins are the browser origins the agent serves. Requests
	// carrying any other Origin are refused.
	AllowedOrigins  []string      `yaml:"allowed_origins" validate:"dive,url"`
}

type BackendConfig struct {
	BaseURL  string        `yaml:"base_url" validate:"required,url"`
	Email    string        `yaml:"email" validate:"omitempty,email"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Store string `yaml:"store" validate:"oneof=memory redis"`
	Key   string `yaml:"key"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type StorageConfig struct {
	Uploader string   `yaml:"uploader" validate:"oneof=http s3"`
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
	PartSize  int64  `yaml:"part_size"`
}

type SubmissionConfig struct {
	Strategy    string        `yaml:"strategy" validate:"oneof=combined staged"`
	MaxFiles    int           `yaml:"max_files" validate:"gte=1"`
	MaxFileSize int64         `yaml:"max_file_size" validate:"gte=1"`
	Concurrency int           `yaml:"concurrency" validate:"gte=1"`
	Dedup       bool          `yaml:"dedup"`
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
}

type CodeLabConfig struct {
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type GradingConfig struct {
	ImportWorkers int     `yaml:"import_workers" validate:"gte=1"`
	MaxScore      float64 `yaml:"max_score" validate:"gt=0"`
}

type NotificationsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollOnStart  bool          `yaml:"poll_on_start"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env (if present), then the YAML file at CONFIG_PATH with
// ${VAR} references expanded from the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return nil, err
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Default values mirror the backend's limits (5 attachments, 100MB) and the
// code lab's retry behaviour (2 retries, 3s apart).
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "aarambh-client",
			Version: "dev",
			Env:     "development",
		},
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadMemory: 32 << 20,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5174",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5174",
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
		},
		Session: SessionConfig{
			Store: SessionStoreMemory,
			Key:   "session",
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "aarambh:",
		},
		Storage: StorageConfig{
			Uploader: UploaderHTTP,
			S3: S3Config{
				Region:   "us-east-1",
				PartSize: 5 << 20,
			},
		},
		Submission: SubmissionConfig{
			Strategy:    StrategyCombined,
			MaxFiles:    5,
			MaxFileSize: 100 << 20,
			Concurrency: 3,
			Dedup:       true,
			DedupTTL:    2 * time.Minute,
		},
		CodeLab: CodeLabConfig{
			MaxRetries: 2,
			RetryDelay: 3 * time.Second,
		},
		Grading: GradingConfig{
			ImportWorkers: 4,
			MaxScore:      100,
		},
		Notifications: NotificationsConfig{
			PollInterval: time.Minute,
			PollOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Uploader == UploaderS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("invalid config: storage.s3.bucket is required for the s3 uploader")
	}
	return nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
