package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	BackendFile = "file"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

type S3 struct {
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"accessKey"`
	SecretKey    string `json:"secretKey"`
	BaseEndpoint string `json:"baseEndpoint"` // eg a MinIO endpoint. Empty for AWS.
}

type Config struct {
	Port                   int    `json:"port"`
	DataPath               string `json:"dataPath"`       // Root of the file backend
	StorageBackend         string `json:"storageBackend"` // file, gcs or s3
	GCSBucket              string `json:"gcsBucket"`
	S3                     S3     `json:"s3"`
	RateLimitMaxAttempts   int    `json:"rateLimitMaxAttempts"`
	RateLimitWindowMinutes int    `json:"rateLimitWindowMinutes"`
}

func Default() *Config {
	return &Config{
		Port:                   8080,
		DataPath:               "data",
		StorageBackend:         BackendFile,
		RateLimitMaxAttempts:   5,
		RateLimitWindowMinutes: 15,
	}
}

// Load reads the config file (if given), then applies environment overrides.
// The result is treated as immutable for the lifetime of the process.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.StorageBackend = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.GCSBucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.S3.SecretKey = v
	}
	if v := os.Getenv("S3_BASE_ENDPOINT"); v != "" {
		c.S3.BaseEndpoint = v
	}
	if v := os.Getenv("RATE_LIMIT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimitMaxAttempts = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimitWindowMinutes = n
		}
	}
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendFile:
	case BackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("storageBackend is gcs, but gcsBucket is empty")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("storageBackend is s3, but s3.bucket is empty")
		}
	default:
		return fmt.Errorf("Unknown storageBackend %q. Must be file, gcs or s3", c.StorageBackend)
	}
	return nil
}
