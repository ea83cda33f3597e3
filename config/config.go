package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Candleflow CandleflowConfig  `yaml:"candleflow"`
	Engine     EngineConfig      `yaml:"engine"`
	Storage    StorageConfig     `yaml:"storage"`
	Server     ServerConfig      `yaml:"server"`
	Timeframes []TimeframeConfig `yaml:"timeframes"`
	Logging    LoggingConfig     `yaml:"logging"`
}

type CandleflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type EngineConfig struct {
	BatchSize  int `yaml:"batch_size"`
	MaxWorkers int `yaml:"max_workers"`
}

type StorageConfig struct {
	ArchiveDir string   `yaml:"archive_dir"`
	LiveDir    string   `yaml:"live_dir"`
	MasterDir  string   `yaml:"master_dir"`
	Fsync      bool     `yaml:"fsync"`
	S3         S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool    `yaml:"enabled"`
	Bucket          string  `yaml:"bucket"`
	Region          string  `yaml:"region"`
	Endpoint        string  `yaml:"endpoint"`
	PathStyle       bool    `yaml:"path_style"`
	UploadRate      float64 `yaml:"upload_rate"`
	AccessKeyID     string  `yaml:"access_key_id"`
	SecretAccessKey string  `yaml:"secret_access_key"`
}

type ServerConfig struct {
	// Timezone is the storage reference timezone all session boundaries and
	// origins are expressed in. It must be a zone with exactly two
	// daylight-saving states.
	Timezone string `yaml:"timezone"`
}

type TimeframeConfig struct {
	Name     string        `yaml:"name"`
	Root     bool          `yaml:"root"`
	Source   string        `yaml:"source"`
	Duration time.Duration `yaml:"duration"`
	// Origin anchors resampling windows: a "HH:MM" clock in the reference
	// timezone, or the literal "epoch" to bypass session anchoring.
	Origin string       `yaml:"origin"`
	Steps  []StepConfig `yaml:"steps"`
}

type StepConfig struct {
	Kind   string        `yaml:"kind"`
	Count  int           `yaml:"count"`
	Offset time.Duration `yaml:"offset"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// OriginEpoch is the sentinel origin that anchors resampling windows at the
// Unix epoch instead of a session boundary.
const OriginEpoch = "epoch"

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Engine: EngineConfig{
			BatchSize:  50000,
			MaxWorkers: 4,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

var originRegexp = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func validateConfig(cfg *Config) error {
	if cfg.Candleflow.Name == "" {
		return fmt.Errorf("candleflow.name is required")
	}
	if cfg.Candleflow.Version == "" {
		return fmt.Errorf("candleflow.version is required")
	}

	if cfg.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be greater than 0")
	}
	if cfg.Engine.MaxWorkers <= 0 {
		return fmt.Errorf("engine.max_workers must be greater than 0")
	}

	if cfg.Storage.ArchiveDir == "" {
		return fmt.Errorf("storage.archive_dir is required")
	}
	if cfg.Storage.LiveDir == "" {
		return fmt.Errorf("storage.live_dir is required")
	}
	if cfg.Storage.MasterDir == "" {
		return fmt.Errorf("storage.master_dir is required")
	}

	if cfg.Server.Timezone == "" {
		return fmt.Errorf("server.timezone is required")
	}
	if _, err := time.LoadLocation(cfg.Server.Timezone); err != nil {
		return fmt.Errorf("server.timezone '%s' is invalid: %w", cfg.Server.Timezone, err)
	}

	if len(cfg.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	for _, tf := range cfg.Timeframes {
		if tf.Name == "" {
			return fmt.Errorf("timeframe name is required")
		}
		if tf.Root {
			continue
		}
		if tf.Source == "" {
			return fmt.Errorf("timeframe %s: source is required for derived timeframes", tf.Name)
		}
		if tf.Duration <= 0 {
			return fmt.Errorf("timeframe %s: duration must be greater than 0", tf.Name)
		}
		if tf.Origin != OriginEpoch && !originRegexp.MatchString(tf.Origin) {
			return fmt.Errorf("timeframe %s: origin must be 'epoch' or HH:MM, got '%s'", tf.Name, tf.Origin)
		}
		for _, st := range tf.Steps {
			switch st.Kind {
			case "merge":
				if st.Count < 2 {
					return fmt.Errorf("timeframe %s: merge step count must be at least 2", tf.Name)
				}
			case "shift":
				if st.Offset == 0 {
					return fmt.Errorf("timeframe %s: shift step offset must be non-zero", tf.Name)
				}
			default:
				return fmt.Errorf("timeframe %s: unknown step kind '%s'", tf.Name, st.Kind)
			}
		}
	}
	if _, err := cfg.TimeframeOrder(); err != nil {
		return err
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
