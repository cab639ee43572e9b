package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Server    ServerConfig     `json:"server"`
	Database  DatabaseConfig   `json:"database"`
	Chunking  ChunkingConfig   `json:"chunking"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Search    SearchConfig     `json:"search"`
	Session   SessionConfig    `json:"session"`
	Source    SourceConfig     `json:"source"`
	Schedule  ScheduleConfig   `json:"schedule"`
	// AIProvider holds named provider instances, referenced by name from
	// Embedding.Provider and Chunking.Generators.
	AIProvider []AIProviderConfig `json:"ai_provider"`
}

type ServerConfig struct {
	AllowOrigins []string `json:"allow_origins"`
	// IngestCooldown is the minimum number of seconds between two ingest
	// requests from the same client. Zero disables the limit.
	IngestCooldown int `json:"ingest_cooldown"`
}

type DatabaseConfig struct {
	DSN          string `json:"dsn"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"dbname"`
	SSLMode      string `json:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type AIProviderConfig struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Model overrides chunking.model when this provider generates text.
	Model string      `json:"model"`
	Data  interface{} `json:"data"`
}

type ChunkingConfig struct {
	ChunkSize            int      `json:"chunk_size"`
	ChunkOverlap         int      `json:"chunk_overlap"`
	MaxChunkSize         int      `json:"max_chunk_size"`
	MinChunkSize         int      `json:"min_chunk_size"`
	UseSemanticSplitting *bool    `json:"use_semantic_splitting"`
	PreserveStructure    *bool    `json:"preserve_structure"`
	Generators           []string `json:"generators"`
	Model                string   `json:"model"`
	LLMTimeout           int      `json:"llm_timeout"`
	Tokenizer            string   `json:"tokenizer"`
}

type EmbeddingConfig struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	Dimension       int    `json:"dimension"`
	MaxTokens       int    `json:"max_tokens"`
	BatchSize       int    `json:"batch_size"`
	MaxRetries      int    `json:"max_retries"`
	RetryDelayMs    int    `json:"retry_delay_ms"`
	IndividualDelay int    `json:"individual_delay_ms"`
	LRUCacheSize    int    `json:"lru_cache_size"`
	LRUCacheTTL     int    `json:"lru_cache_ttl"`
	EnableDBCache   bool   `json:"enable_db_cache"`
}

type SearchConfig struct {
	DefaultMatchCount int `json:"default_match_count"`
	MaxMatchCount     int `json:"max_match_count"`
	// DefaultTextWeight is nil when unset; an explicit 0 ranks by vectors only.
	DefaultTextWeight *float64 `json:"default_text_weight"`
}

type SessionConfig struct {
	MaxSessions int `json:"max_sessions"`
	IdleTTL     int `json:"idle_ttl"`
}

type SourceConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ScheduleConfig struct {
	IngestCron       string `json:"ingest_cron"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
	CacheMaxAgeDays  int    `json:"cache_max_age_days"`
}

func (c ChunkingConfig) SemanticEnabled() bool {
	return c.UseSemanticSplitting == nil || *c.UseSemanticSplitting
}

func (c ChunkingConfig) StructurePreserved() bool {
	return c.PreserveStructure == nil || *c.PreserveStructure
}

// Load reads the json config at path. A .env file next to the working
// directory is loaded first so DATABASE_URL and provider keys can come from it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		c.Database.DSN = dsn
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	ch := &c.Chunking
	if ch.ChunkSize == 0 {
		ch.ChunkSize = 1000
	}
	if ch.ChunkOverlap == 0 {
		ch.ChunkOverlap = 200
	}
	if ch.MaxChunkSize == 0 {
		ch.MaxChunkSize = 2000
	}
	if ch.MinChunkSize == 0 {
		ch.MinChunkSize = 100
	}
	if ch.LLMTimeout == 0 {
		ch.LLMTimeout = 30
	}

	em := &c.Embedding
	if em.Provider == "" {
		return fmt.Errorf("embedding.provider is required")
	}
	if em.Model == "" {
		em.Model = "text-embedding-3-small"
	}
	if em.BatchSize == 0 {
		em.BatchSize = 100
	}
	if em.MaxRetries == 0 {
		em.MaxRetries = 3
	}
	if em.RetryDelayMs == 0 {
		em.RetryDelayMs = 1000
	}
	if em.IndividualDelay == 0 {
		em.IndividualDelay = 100
	}
	if em.LRUCacheSize == 0 {
		em.LRUCacheSize = 1000
	}

	s := &c.Search
	if s.DefaultMatchCount == 0 {
		s.DefaultMatchCount = 10
	}
	if s.MaxMatchCount == 0 {
		s.MaxMatchCount = 50
	}
	if s.DefaultTextWeight == nil {
		w := 0.3
		s.DefaultTextWeight = &w
	}
	if *s.DefaultTextWeight < 0 || *s.DefaultTextWeight > 1 {
		return fmt.Errorf("search.default_text_weight must be within [0,1]")
	}

	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 1024
	}
	if c.Session.IdleTTL == 0 {
		c.Session.IdleTTL = 3600
	}
	if c.Schedule.CacheMaxAgeDays == 0 {
		c.Schedule.CacheMaxAgeDays = 30
	}

	names := make(map[string]bool, len(c.AIProvider))
	for _, p := range c.AIProvider {
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("ai_provider entries require name and type")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate ai_provider name: %s", p.Name)
		}
		names[p.Name] = true
	}
	if !names[em.Provider] {
		return fmt.Errorf("embedding.provider %q not found in ai_provider", em.Provider)
	}
	for _, g := range ch.Generators {
		if !names[g] {
			return fmt.Errorf("chunking.generators entry %q not found in ai_provider", g)
		}
	}
	return nil
}

func (c *Config) FindProvider(name string) (AIProviderConfig, bool) {
	for _, p := range c.AIProvider {
		if p.Name == name {
			return p, true
		}
	}
	return AIProviderConfig{}, false
}
