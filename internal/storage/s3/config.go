package s3

import (
	"time"

	"github.com/mpyk/mpyk/pkg/errors"
)

// Config represents S3 bucket configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// Request settings
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StorageTier is one of the Tier* constants
	StorageTier string `yaml:"storage_tier"`

	// CargoShip optimization settings
	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization"`
	Concurrency                 int  `yaml:"concurrency"`
}

// NewDefaultConfig returns a configuration targeting Backblaze B2
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-west-001",
		Endpoint:       "https://s3.us-west-001.backblazeb2.com",
		ForcePathStyle: true,
		MaxRetries:     3,
		RequestTimeout: 5 * time.Minute,
		StorageTier:    TierStandard,
		Concurrency:    4,
	}
}

// Validate checks the fields needed to reach the bucket
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "bucket name cannot be empty").
			WithComponent("s3")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.NewError(errors.ErrCodeCredentialsMissing, "access key id and secret are required").
			WithComponent("s3").WithContext("bucket", c.Bucket)
	}
	if c.Region == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "region cannot be empty").
			WithComponent("s3")
	}
	if !IsValidTier(c.StorageTier) {
		return errors.NewError(errors.ErrCodeInvalidConfig, "unknown storage tier: "+c.StorageTier).
			WithComponent("s3")
	}
	return nil
}
