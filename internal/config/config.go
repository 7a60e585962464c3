package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "NARRATIVE_SCANNER_CONFIG"
	databasePathEnv = "DATABASE_PATH"
	groqAPIKeyEnv   = "GROQ_API_KEY"
	genaiAPIKeyEnv  = "GENAI_API_KEY"
	ollamaURLEnv    = "OLLAMA_ENDPOINT"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProviderConfig  `yaml:"providers"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Hybrid    HybridConfig    `yaml:"hybrid"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sites     []SiteConfig    `yaml:"sites"`
}

// SchedulerConfig controls the recurring scan cadence.
type SchedulerConfig struct {
	IntervalHours int  `yaml:"intervalHours"`
	RunOnce       bool `yaml:"runOnce"`
}

// LoggingConfig controls console log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite file backing the repository.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig groups all external capability endpoints.
type ProviderConfig struct {
	Groq   GroqConfig   `yaml:"groq"`
	GenAI  GenAIConfig  `yaml:"genai"`
	Ollama OllamaConfig `yaml:"ollama"`
}

// GroqConfig defines the OpenAI-compatible chat endpoint used first in the
// classifier chain.
type GroqConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"apiKey"`
	RateLimit int    `yaml:"rateLimit"` // requests per minute
}

// GenAIConfig defines the Google GenAI fallback for classification and the
// cloud embedding model.
type GenAIConfig struct {
	APIKey         string `yaml:"apiKey"`
	TextModel      string `yaml:"textModel"`
	EmbeddingModel string `yaml:"embeddingModel"`
	RateLimit      int    `yaml:"rateLimit"`
}

// OllamaConfig defines the local embedding server.
type OllamaConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// NarrativeConfig carries the hand-tuned lifecycle thresholds. They are
// configuration, not inferred: the dead-zone and phase thresholds came from
// manual calibration and must stay overridable.
type NarrativeConfig struct {
	BirthToGrowthVelocity   float64 `yaml:"birthToGrowthVelocity"`
	GrowthToPeakCorrelation float64 `yaml:"growthToPeakCorrelation"`
	SentimentDeclineDelta   float64 `yaml:"sentimentDeclineDelta"`
	SentimentDeadZone       float64 `yaml:"sentimentDeadZone"`
	MinStrengthForConflict  int     `yaml:"minStrengthForConflict"`
	RelevancePercentile     float64 `yaml:"relevancePercentile"`
	TopNarratives           int     `yaml:"topNarratives"`

	// Strength recompute weights (velocity / news / correlation / institutional).
	VelocityWeight      float64 `yaml:"velocityWeight"`
	NewsWeight          float64 `yaml:"newsWeight"`
	CorrelationWeight   float64 `yaml:"correlationWeight"`
	InstitutionalWeight float64 `yaml:"institutionalWeight"`
}

// ConsensusConfig controls the analyst panel protocol.
type ConsensusConfig struct {
	AgreementThreshold float64 `yaml:"agreementThreshold"`
	RoleTimeoutSeconds int     `yaml:"roleTimeoutSeconds"`
}

// HybridConfig controls blending panel output with state-machine metrics.
type HybridConfig struct {
	PanelWeight             float64 `yaml:"panelWeight"`
	MetricsWeight           float64 `yaml:"metricsWeight"`
	HighConfidenceThreshold float64 `yaml:"highConfidenceThreshold"`
	FallbackConfidence      float64 `yaml:"fallbackConfidence"`
}

// SiteConfig describes a single news site with its collector strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Collector  string            `yaml:"collector"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete index pages to crawl.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(groqAPIKeyEnv); v != "" {
		c.Providers.Groq.APIKey = v
	}

	if v := os.Getenv(genaiAPIKeyEnv); v != "" {
		c.Providers.GenAI.APIKey = v
	}

	if v := os.Getenv(ollamaURLEnv); v != "" {
		c.Providers.Ollama.Endpoint = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Providers.Groq.Endpoint != "" {
		base.Providers.Groq.Endpoint = override.Providers.Groq.Endpoint
	}
	if override.Providers.Groq.Model != "" {
		base.Providers.Groq.Model = override.Providers.Groq.Model
	}
	if override.Providers.Groq.APIKey != "" {
		base.Providers.Groq.APIKey = override.Providers.Groq.APIKey
	}
	if override.Providers.Groq.RateLimit > 0 {
		base.Providers.Groq.RateLimit = override.Providers.Groq.RateLimit
	}

	if override.Providers.GenAI.APIKey != "" {
		base.Providers.GenAI.APIKey = override.Providers.GenAI.APIKey
	}
	if override.Providers.GenAI.TextModel != "" {
		base.Providers.GenAI.TextModel = override.Providers.GenAI.TextModel
	}
	if override.Providers.GenAI.EmbeddingModel != "" {
		base.Providers.GenAI.EmbeddingModel = override.Providers.GenAI.EmbeddingModel
	}
	if override.Providers.GenAI.RateLimit > 0 {
		base.Providers.GenAI.RateLimit = override.Providers.GenAI.RateLimit
	}

	if override.Providers.Ollama.Endpoint != "" {
		base.Providers.Ollama.Endpoint = override.Providers.Ollama.Endpoint
	}
	if override.Providers.Ollama.Model != "" {
		base.Providers.Ollama.Model = override.Providers.Ollama.Model
	}

	if override.Narrative != (NarrativeConfig{}) {
		base.Narrative = fillNarrativeDefaults(override.Narrative)
	}
	if override.Consensus != (ConsensusConfig{}) {
		base.Consensus = fillConsensusDefaults(override.Consensus)
	}
	if override.Hybrid != (HybridConfig{}) {
		base.Hybrid = fillHybridDefaults(override.Hybrid)
	}

	if override.Scheduler.IntervalHours > 0 {
		base.Scheduler.IntervalHours = override.Scheduler.IntervalHours
	}
	if override.Scheduler.RunOnce {
		base.Scheduler.RunOnce = true
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func fillNarrativeDefaults(n NarrativeConfig) NarrativeConfig {
	d := defaultConfig().Narrative
	if n.BirthToGrowthVelocity == 0 {
		n.BirthToGrowthVelocity = d.BirthToGrowthVelocity
	}
	if n.GrowthToPeakCorrelation == 0 {
		n.GrowthToPeakCorrelation = d.GrowthToPeakCorrelation
	}
	if n.SentimentDeclineDelta == 0 {
		n.SentimentDeclineDelta = d.SentimentDeclineDelta
	}
	if n.SentimentDeadZone == 0 {
		n.SentimentDeadZone = d.SentimentDeadZone
	}
	if n.MinStrengthForConflict == 0 {
		n.MinStrengthForConflict = d.MinStrengthForConflict
	}
	if n.RelevancePercentile == 0 {
		n.RelevancePercentile = d.RelevancePercentile
	}
	if n.TopNarratives == 0 {
		n.TopNarratives = d.TopNarratives
	}
	if n.VelocityWeight == 0 {
		n.VelocityWeight = d.VelocityWeight
	}
	if n.NewsWeight == 0 {
		n.NewsWeight = d.NewsWeight
	}
	if n.CorrelationWeight == 0 {
		n.CorrelationWeight = d.CorrelationWeight
	}
	if n.InstitutionalWeight == 0 {
		n.InstitutionalWeight = d.InstitutionalWeight
	}
	return n
}

func fillConsensusDefaults(c ConsensusConfig) ConsensusConfig {
	d := defaultConfig().Consensus
	if c.AgreementThreshold == 0 {
		c.AgreementThreshold = d.AgreementThreshold
	}
	if c.RoleTimeoutSeconds == 0 {
		c.RoleTimeoutSeconds = d.RoleTimeoutSeconds
	}
	return c
}

func fillHybridDefaults(h HybridConfig) HybridConfig {
	d := defaultConfig().Hybrid
	if h.PanelWeight == 0 {
		h.PanelWeight = d.PanelWeight
	}
	if h.MetricsWeight == 0 {
		h.MetricsWeight = d.MetricsWeight
	}
	if h.HighConfidenceThreshold == 0 {
		h.HighConfidenceThreshold = d.HighConfidenceThreshold
	}
	if h.FallbackConfidence == 0 {
		h.FallbackConfidence = d.FallbackConfidence
	}
	return h
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "narratives.db"},
		Providers: ProviderConfig{
			Groq: GroqConfig{
				Endpoint:  "https://api.groq.com/openai/v1/chat/completions",
				Model:     "llama-3.3-70b-versatile",
				RateLimit: 30,
			},
			GenAI: GenAIConfig{
				TextModel:      "gemini-2.0-flash",
				EmbeddingModel: "gemini-embedding-001",
				RateLimit:      15,
			},
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "embeddinggemma",
			},
		},
		Narrative: NarrativeConfig{
			BirthToGrowthVelocity:   0.5,
			GrowthToPeakCorrelation: 0.8,
			SentimentDeclineDelta:   0.1,
			SentimentDeadZone:       0.1,
			MinStrengthForConflict:  40,
			RelevancePercentile:     20,
			TopNarratives:           5,
			VelocityWeight:          0.3,
			NewsWeight:              0.25,
			CorrelationWeight:       0.25,
			InstitutionalWeight:     0.2,
		},
		Consensus: ConsensusConfig{
			AgreementThreshold: 0.6,
			RoleTimeoutSeconds: 60,
		},
		Hybrid: HybridConfig{
			PanelWeight:             0.6,
			MetricsWeight:           0.4,
			HighConfidenceThreshold: 0.75,
			FallbackConfidence:      0.65,
		},
		Scheduler: SchedulerConfig{IntervalHours: 24},
		Sites: []SiteConfig{
			{
				Name:      "kitco-news",
				Collector: "headline",
				Categories: []CategoryConfig{
					{Name: "silver", URL: "https://www.kitco.com/news/silver"},
				},
			},
		},
	}
}
