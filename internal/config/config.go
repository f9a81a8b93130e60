package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	Parse struct {
		ServerURL      string
		AppID          string
		RESTKey        string
		MasterKey      string
		TimeoutSeconds int
	}
	Upload struct {
		MaxBytes int64
	}
	Storage struct {
		Backend          string
		Bucket           string
		KeyPrefix        string
		Region           string
		Endpoint         string
		PublicBaseURL    string
		URLExpiryMinutes int
	}
	AWS struct {
		Profile string
	}
	Activity struct {
		Sink   string
		Buffer int
	}
	Database struct {
		Path string
	}
	AMQP struct {
		URL      string
		Exchange string
	}
	Metrics struct {
		Enabled bool
	}
}

const (
	StorageParse = "parse"
	StorageS3    = "s3"

	SinkParse  = "parse"
	SinkSQLite = "sqlite"
	SinkAMQP   = "amqp"
	SinkNone   = "none"
)

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUTHGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("parse.serverurl", "https://parseapi.back4app.com")
	v.SetDefault("parse.appid", "")
	v.SetDefault("parse.restkey", "")
	v.SetDefault("parse.masterkey", "")
	v.SetDefault("parse.timeoutseconds", 15)

	v.SetDefault("upload.maxbytes", 5*1024*1024)

	v.SetDefault("storage.backend", StorageParse)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "profile-pictures")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.urlexpiryminutes", 7*24*60)
	v.SetDefault("aws.profile", "")

	v.SetDefault("activity.sink", SinkParse)
	v.SetDefault("activity.buffer", 256)
	v.SetDefault("database.path", "data/authgate.db")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "authgate.activity")

	v.SetDefault("metrics.enabled", true)
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Parse.AppID) == "" {
		missing = append(missing, "parse.appid")
	}
	if strings.TrimSpace(c.Parse.RESTKey) == "" {
		missing = append(missing, "parse.restkey")
	}
	if strings.TrimSpace(c.Parse.MasterKey) == "" {
		missing = append(missing, "parse.masterkey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.Storage.Backend {
	case StorageParse:
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Activity.Sink {
	case SinkParse, SinkSQLite, SinkNone:
	case SinkAMQP:
		if c.AMQP.URL == "" {
			return errors.New("amqp.url is required for the amqp activity sink")
		}
	default:
		return fmt.Errorf("unknown activity sink %q", c.Activity.Sink)
	}
	return nil
}

// ParseTimeout returns the per-call timeout for backend requests.
func (c Config) ParseTimeout() time.Duration {
	if c.Parse.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Parse.TimeoutSeconds) * time.Second
}

// URLExpiry returns how long presigned picture URLs stay valid.
func (c Config) URLExpiry() time.Duration {
	return time.Duration(c.Storage.URLExpiryMinutes) * time.Minute
}
