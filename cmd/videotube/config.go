package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/videotube/internal/logger"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultMongoURI       = "mongodb://localhost:27017/videotube"
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 10 * 24 * time.Hour
	defaultUploadDir      = "./public/temp"
	defaultMediaDir       = "./public/media"
	defaultMediaBaseURL   = "http://localhost:8000/media"
	defaultS3Bucket       = "videotube"
	defaultRateLimitRPS   = 5
	defaultRateLimitBurst = 10

	// Value of MONGODB_URI that selects in-memory storage
	memoryStorageURI = "memory://"
)

type S3Config struct {
	// S3 compatible endpoint. Empty means files are kept in MediaDir and served by the app
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
}

type Config struct {
	// Default logging level
	LogLevel string `yaml:"log_level"`

	// Environment
	Environment string `yaml:"environment"`

	// Address on which the videotube service will be run
	ListenAddr string `yaml:"address"`

	// Mongo connection string and database name. Database is taken from uri if empty
	MongoURI string `yaml:"mongodb_uri"`
	DBName   string `yaml:"db_name"`

	// Symmetric keys for access and refresh tokens. Must be set and differ
	AccessSecret  string `yaml:"access_token_secret"`
	RefreshSecret string `yaml:"refresh_token_secret"`

	AccessTTL  time.Duration `yaml:"access_token_expiry"`
	RefreshTTL time.Duration `yaml:"refresh_token_expiry"`

	// Directory for files received in requests before they are uploaded
	UploadDir string `yaml:"upload_dir"`

	S3 S3Config `yaml:"s3"`

	// Local media store, used when S3 endpoint is empty
	MediaDir     string `yaml:"media_dir"`
	MediaBaseURL string `yaml:"media_base_url"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		ListenAddr:     defaultListenAddr,
		MongoURI:       defaultMongoURI,
		AccessTTL:      defaultAccessTTL,
		RefreshTTL:     defaultRefreshTTL,
		UploadDir:      defaultUploadDir,
		MediaDir:       defaultMediaDir,
		MediaBaseURL:   defaultMediaBaseURL,
		S3:             S3Config{Bucket: defaultS3Bucket},
		RateLimitRPS:   defaultRateLimitRPS,
		RateLimitBurst: defaultRateLimitBurst,
	}
}

// Load options from yaml file. Keys missing in the file keep current values
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := cleanenv.ReadConfig(path, c); err != nil {
		return fmt.Errorf("can't read config file %s: %w", path, err)
	}
	return nil
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setFloat := func(o *float64) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			*o = f
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"MONGODB_URI":          setString(&c.MongoURI),
		"DB_NAME":              setString(&c.DBName),
		"ACCESS_TOKEN_SECRET":  setString(&c.AccessSecret),
		"REFRESH_TOKEN_SECRET": setString(&c.RefreshSecret),
		"ACCESS_TOKEN_EXPIRY":  setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_EXPIRY": setDuration(&c.RefreshTTL),
		"UPLOAD_DIR":           setString(&c.UploadDir),
		"S3_ENDPOINT":          setString(&c.S3.Endpoint),
		"S3_ACCESS_KEY":        setString(&c.S3.AccessKey),
		"S3_SECRET_KEY":        setString(&c.S3.SecretKey),
		"S3_BUCKET":            setString(&c.S3.Bucket),
		"S3_PUBLIC_URL":        setString(&c.S3.PublicURL),
		"MEDIA_DIR":            setString(&c.MediaDir),
		"MEDIA_BASE_URL":       setString(&c.MediaBaseURL),
		"RATE_LIMIT_RPS":       setFloat(&c.RateLimitRPS),
		"RATE_LIMIT_BURST":     setInt(&c.RateLimitBurst),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// RUN_ADDRESS wins over PORT
	if port := getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.ListenAddr = ":" + port
	}
	return setString(&c.ListenAddr)(getenv("RUN_ADDRESS"))
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("videotube", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.MongoURI, "mongodb-uri", "d", c.MongoURI, "MongoDB connection string, 'memory://' for in-memory storage")
	fs.StringVar(&c.DBName, "db-name", c.DBName, "MongoDB database name")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Access token secret")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Refresh token secret")
	fs.DurationVar(&c.AccessTTL, "access-expiry", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-expiry", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "Directory for received files")
	fs.StringVar(&c.S3.Endpoint, "s3-endpoint", c.S3.Endpoint, "S3 endpoint, local media store is used if empty")
	fs.StringVar(&c.S3.Bucket, "s3-bucket", c.S3.Bucket, "S3 bucket")
	fs.StringVar(&c.MediaDir, "media-dir", c.MediaDir, "Local media store directory")
	fs.StringVar(&c.MediaBaseURL, "media-base-url", c.MediaBaseURL, "Base url of local media store")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", c.RateLimitRPS, "Requests per second per client on auth endpoints")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", c.RateLimitBurst, "Request burst per client on auth endpoints")

	return fs.Parse(args)
}

// Later source wins: defaults, yaml file at CONFIG_PATH, .env, environment, flags
func LoadConfig(getenv func(string) string, getwd func() (string, error), args []string) (*Config, error) {
	c := NewConfig()

	if err := c.LoadFile(getenv("CONFIG_PATH")); err != nil {
		return nil, err
	}
	if err := c.LoadDotEnv(getwd); err != nil {
		return nil, fmt.Errorf("can't load .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return nil, err
	}
	if err := c.ParseFlags(args); err != nil {
		return nil, err
	}

	return c, nil
}
