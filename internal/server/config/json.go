package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/lockboxd/lockbox/internal/flagx"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Durations are given in minutes, intervals in
// seconds; zero values leave the defaults untouched.
type JsonConfig struct {
	DatabaseDSN          string `json:"database_dsn"`
	S3RootUser           string `json:"s3_root_user"`
	S3RootPassword       string `json:"s3_root_password"`
	S3Bucket             string `json:"s3_bucket"`
	S3Region             string `json:"s3_region"`
	S3BaseEndpoint       string `json:"s3_base_endpoint"`
	PresignExpiryMinutes int    `json:"presign_expiry_minutes"`
	DefaultQuotaBytes    int64  `json:"default_quota_bytes"`
	DefaultRetentionDays *int   `json:"default_retention_days"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. When no flag is given, nothing
// is loaded. Unreadable or invalid files panic: a misconfigured server must
// not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.PresignExpiryMinutes > 0 {
		config.PresignExpiry = time.Duration(c.PresignExpiryMinutes) * time.Minute
	}
	if c.DefaultQuotaBytes > 0 {
		config.DefaultQuotaBytes = c.DefaultQuotaBytes
	}
	if c.DefaultRetentionDays != nil {
		// pointer so "0 = never auto-purge" is expressible
		config.DefaultRetentionDays = *c.DefaultRetentionDays
	}
	if c.SweepIntervalSeconds > 0 {
		config.SweepInterval = time.Duration(c.SweepIntervalSeconds) * time.Second
	}
}
