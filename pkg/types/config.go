// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litriage/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SourceConfig holds settings for the source adapter stage.
type SourceConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PageSize is the number of records requested per page (default 50).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// RequestsPerSecond paces requests to the source API (default 3).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries bounds retries on rate-limit and server errors (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// APIKey is an optional source API key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Email is sent to sources that operate polite pools (e.g. Europe PMC).
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
}

// ClassifyConfig holds settings for the relevance classifier.
type ClassifyConfig struct {
	// VocabularyPath is the YAML concept vocabulary file.
	VocabularyPath string `json:"vocabulary_path" yaml:"vocabulary_path" mapstructure:"vocabulary_path"`

	// ConfidenceFloor is the confidence below which a record is labeled
	// irrelevant (default 0.5). Records below the floor are kept for audit.
	ConfidenceFloor float64 `json:"confidence_floor" yaml:"confidence_floor" mapstructure:"confidence_floor"`

	// Saturation is the matched-weight sum at which confidence reaches 1.0
	// (default 10).
	Saturation float64 `json:"saturation" yaml:"saturation" mapstructure:"saturation"`
}

// CapMode selects how the concept scorer applies its diminishing-returns cap.
type CapMode string

const (
	// CapTotal caps each concept's contribution at CapFraction of the
	// uncapped total score.
	CapTotal CapMode = "total"

	// CapOccurrence caps the counted occurrences per concept at
	// MaxOccurrences before weighting.
	CapOccurrence CapMode = "occurrence"
)

// ScoreConfig holds settings for the concept scorer.
type ScoreConfig struct {
	// Mode selects the cap semantics (default "total").
	Mode CapMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// CapFraction bounds a single concept's share of the total score when
	// Mode is "total" (default 0.5).
	CapFraction float64 `json:"cap_fraction" yaml:"cap_fraction" mapstructure:"cap_fraction"`

	// MaxOccurrences bounds counted occurrences per concept when Mode is
	// "occurrence" (default 5).
	MaxOccurrences int `json:"max_occurrences" yaml:"max_occurrences" mapstructure:"max_occurrences"`

	// Floor is the secondary rejection floor used by triage: a record is
	// rejected only if classification confidence and concept score are
	// both below their floors (default 5).
	Floor float64 `json:"floor" yaml:"floor" mapstructure:"floor"`
}

// DedupConfig holds settings for the deduplicator.
type DedupConfig struct {
	// Threshold is the similarity above which records join a cluster
	// (default 0.85).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// TitleWeight, AuthorWeight, and YearWeight combine the similarity
	// components. They should sum to 1 (defaults 0.6, 0.25, 0.15).
	TitleWeight  float64 `json:"title_weight" yaml:"title_weight" mapstructure:"title_weight"`
	AuthorWeight float64 `json:"author_weight" yaml:"author_weight" mapstructure:"author_weight"`
	YearWeight   float64 `json:"year_weight" yaml:"year_weight" mapstructure:"year_weight"`
}

// TriageLimits bounds a triage run.
type TriageLimits struct {
	// MaxCandidates bounds the total records fetched across pages
	// (default 200).
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" mapstructure:"max_candidates"`

	// MaxCurated bounds the curated output size (default 50).
	MaxCurated int `json:"max_curated" yaml:"max_curated" mapstructure:"max_curated"`
}

// AgentConfig holds per-agent settings for the extraction orchestrator.
type AgentConfig struct {
	// ID is the agent identifier (e.g. "demographics", "genetics").
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Required marks agents whose success is needed for a complete report.
	Required bool `json:"required" yaml:"required" mapstructure:"required"`

	// Importance weights the agent's confidence in the report quality
	// score (default 1).
	Importance float64 `json:"importance" yaml:"importance" mapstructure:"importance"`

	// Timeout bounds one task attempt (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries bounds retries on transient agent errors. Zero disables
	// retries. Validation failures are never retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ExtractionConfig holds settings for the extraction orchestrator.
type ExtractionConfig struct {
	// Workers is the worker-pool size. Zero means proportional to
	// available cores.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// GlobalTimeout bounds how long AwaitReport waits for a document's
	// tasks to settle (default 5m).
	GlobalTimeout time.Duration `json:"global_timeout" yaml:"global_timeout" mapstructure:"global_timeout"`

	// Agents configures the extraction agents, keyed by position.
	Agents []AgentConfig `json:"agents" yaml:"agents" mapstructure:"agents"`
}

// StorageConfig holds settings for the report store.
type StorageConfig struct {
	// Dir is the directory holding the SQLite database and YAML exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Source     SourceConfig     `json:"source" yaml:"source" mapstructure:"source"`
	Classify   ClassifyConfig   `json:"classify" yaml:"classify" mapstructure:"classify"`
	Score      ScoreConfig      `json:"score" yaml:"score" mapstructure:"score"`
	Dedup      DedupConfig      `json:"dedup" yaml:"dedup" mapstructure:"dedup"`
	Limits     TriageLimits     `json:"limits" yaml:"limits" mapstructure:"limits"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
}

// ApplyDefaults fills zero-valued fields with pipeline defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = "litriage/0.1"
	}
	if c.Source.PageSize <= 0 {
		c.Source.PageSize = 50
	}
	if c.Source.RequestsPerSecond <= 0 {
		c.Source.RequestsPerSecond = 3
	}
	if c.Source.MaxRetries <= 0 {
		c.Source.MaxRetries = 5
	}
	if c.Classify.ConfidenceFloor <= 0 {
		c.Classify.ConfidenceFloor = 0.5
	}
	if c.Classify.Saturation <= 0 {
		c.Classify.Saturation = 10
	}
	if c.Score.Mode == "" {
		c.Score.Mode = CapTotal
	}
	if c.Score.CapFraction <= 0 {
		c.Score.CapFraction = 0.5
	}
	if c.Score.MaxOccurrences <= 0 {
		c.Score.MaxOccurrences = 5
	}
	if c.Score.Floor <= 0 {
		c.Score.Floor = 5
	}
	if c.Dedup.Threshold <= 0 {
		c.Dedup.Threshold = 0.85
	}
	if c.Dedup.TitleWeight == 0 && c.Dedup.AuthorWeight == 0 && c.Dedup.YearWeight == 0 {
		c.Dedup.TitleWeight = 0.6
		c.Dedup.AuthorWeight = 0.25
		c.Dedup.YearWeight = 0.15
	}
	if c.Limits.MaxCandidates <= 0 {
		c.Limits.MaxCandidates = 200
	}
	if c.Limits.MaxCurated <= 0 {
		c.Limits.MaxCurated = 50
	}
	if c.Extraction.GlobalTimeout <= 0 {
		c.Extraction.GlobalTimeout = 5 * time.Minute
	}
	for i := range c.Extraction.Agents {
		a := &c.Extraction.Agents[i]
		if a.Importance <= 0 {
			a.Importance = 1
		}
		if a.Timeout <= 0 {
			a.Timeout = 30 * time.Second
		}
		if a.MaxRetries < 0 {
			a.MaxRetries = 0
		}
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
}
