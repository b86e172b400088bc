// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network
// requests. Proxy configuration is explicit here rather than read from
// process environment so its lifetime is scoped to one run.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperharvest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// ProxyURL routes requests through the given proxy when set. When
	// empty the standard environment proxy variables apply.
	ProxyURL string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty" mapstructure:"proxy_url"`

	// RequestsPerSecond caps the outbound request rate (default 3).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the rate limiter burst size (default 3).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	// RetryAttempts is the number of additional attempts after a transient
	// failure (default 2).
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts" mapstructure:"retry_attempts"`

	// RetryDelay is the fixed delay before each retry (default 1s).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

// HarvestConfig holds settings for the harvest stage.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Limit caps the total number of papers collected across all
	// databases. Zero means no limit.
	Limit int `json:"limit" yaml:"limit" mapstructure:"limit"`

	// LimitPerDatabase caps the number of papers collected from each
	// database. Zero means no limit.
	LimitPerDatabase int `json:"limit_per_database" yaml:"limit_per_database" mapstructure:"limit_per_database"`

	// PublicationTypes filters which venue types are harvested
	// (e.g. "journal", "preprint"). Empty means all.
	PublicationTypes []string `json:"publication_types,omitempty" yaml:"publication_types,omitempty" mapstructure:"publication_types"`

	// Databases selects which source databases to query. Empty means all
	// configured sources.
	Databases []string `json:"databases,omitempty" yaml:"databases,omitempty" mapstructure:"databases"`

	// NCBIAPIKey raises the E-utilities rate limit when set.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`

	// DatabaseFile is the SQLite file harvest results are written to.
	DatabaseFile string `json:"database_file" yaml:"database_file" mapstructure:"database_file"`
}

// DownloadConfig holds settings for the PDF download stage.
type DownloadConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// OutputDir is the directory downloaded PDFs are written to.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Delay is the pause between consecutive downloads (default 1s).
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// OpenAlexMailto is the contact email sent with OpenAlex API
	// requests, which puts them in the polite pool.
	OpenAlexMailto string `json:"openalex_mailto,omitempty" yaml:"openalex_mailto,omitempty" mapstructure:"openalex_mailto"`
}

// Config groups all stage configurations.
type Config struct {
	Harvest  HarvestConfig  `json:"harvest" yaml:"harvest" mapstructure:"harvest"`
	Download DownloadConfig `json:"download" yaml:"download" mapstructure:"download"`
}
