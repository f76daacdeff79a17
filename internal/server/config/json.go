package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophjournal/internal/flagx"
	"github.com/dmitrijs2005/gophjournal/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent fields
// leave the current value untouched.
type JsonConfig struct {
	ListenAddr        string          `json:"listen_addr"`
	HealthAddr        string          `json:"health_addr"`
	DatabaseDSN       string          `json:"database_dsn"`
	SecretKey         string          `json:"secret_key"`
	TokenValidity     *timex.Duration `json:"token_validity"`
	BundleBackend     string          `json:"bundle_backend"`
	S3RootUser        string          `json:"s3_root_user"`
	S3RootPassword    string          `json:"s3_root_password"`
	S3Bucket          string          `json:"s3_bucket"`
	S3Region          string          `json:"s3_region"`
	S3BaseEndpoint    string          `json:"s3_base_endpoint"`
	MaxEntryBytes     *int            `json:"max_entry_bytes"`
	MaxSummaryHistory *int            `json:"max_summary_history"`
	LogLevel          string          `json:"log_level"`
}

// parseJson loads the file named by -c or -config into Config. Without such
// a flag nothing happens; read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var c JsonConfig

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, &c); err != nil {
		panic(err)
	}

	setString(&cfg.ListenAddr, c.ListenAddr)
	setString(&cfg.HealthAddr, c.HealthAddr)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.BundleBackend, c.BundleBackend)
	setString(&cfg.S3RootUser, c.S3RootUser)
	setString(&cfg.S3RootPassword, c.S3RootPassword)
	setString(&cfg.S3Bucket, c.S3Bucket)
	setString(&cfg.S3Region, c.S3Region)
	setString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&cfg.LogLevel, c.LogLevel)
	if c.TokenValidity != nil {
		cfg.TokenValidity = c.TokenValidity.Duration
	}
	if c.MaxEntryBytes != nil {
		cfg.MaxEntryBytes = *c.MaxEntryBytes
	}
	if c.MaxSummaryHistory != nil {
		cfg.MaxSummaryHistory = *c.MaxSummaryHistory
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
