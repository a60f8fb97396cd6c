package daemon

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the daemon's full configuration, loaded from JSON with an
// optional private overlay merged on top. String fields support $ENV
// indirection.
type Config struct {
	Name     string         `json:"name"`
	HTTPAddr string         `json:"http_addr,omitempty"`
	Inferrix InferrixConfig `json:"inferrix"`
	LLM      LLMConfig      `json:"llm,omitempty"`
	History  HistoryConfig  `json:"history,omitempty"`
	Cache    CacheConfig    `json:"cache,omitempty"`
	Matrix   MatrixConfig   `json:"matrix,omitempty"`
	Auth     AuthConfig     `json:"auth,omitempty"`
}

// InferrixConfig holds the vendor API connection settings.
type InferrixConfig struct {
	BaseURL           string  `json:"base_url"`
	Token             string  `json:"token"`
	PageSize          int     `json:"page_size,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// LLMConfig selects and configures the fallback chat provider.
type LLMConfig struct {
	Provider    string  `json:"provider,omitempty"` // anthropic, openai
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"` // openai-compatible backends
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// HistoryConfig selects the conversation transcript store.
type HistoryConfig struct {
	Backend     string `json:"backend,omitempty"` // sqlite, postgres
	Path        string `json:"path,omitempty"`
	PostgresURL string `json:"postgres_url,omitempty"`
	// MaxTurns bounds the history window handed to the LLM fallback.
	MaxTurns int `json:"max_turns,omitempty"`
}

// CacheConfig selects the telemetry-key cache backend and eviction policy.
type CacheConfig struct {
	Backend       string `json:"backend,omitempty"` // memory, redis, none
	TTL           string `json:"ttl,omitempty"`
	MaxEntries    int    `json:"max_entries,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

// MatrixConfig configures the optional Matrix channel.
type MatrixConfig struct {
	Enabled      bool     `json:"enabled,omitempty"`
	Homeserver   string   `json:"homeserver,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Password     string   `json:"password,omitempty"`
	ServerName   string   `json:"server_name,omitempty"`
	AllowedUsers []string `json:"allowed_users,omitempty"`
	DataDir      string   `json:"data_dir,omitempty"`
}

// AuthConfig secures the HTTP API. An empty secret leaves it open.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret,omitempty"`
}

// LoadConfig loads configuration: defaults, then the config file, then an
// optional private overlay named by ATRIUM_PRIVATE_CONFIG, deep-merged in
// that order.
func LoadConfig(path string) (*Config, error) {
	base := defaultConfig()
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}

	merged := baseJSON
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		merged, err = deepMergeJSON(merged, fileData)
		if err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	if overlay := os.Getenv("ATRIUM_PRIVATE_CONFIG"); overlay != "" {
		overlayData, err := os.ReadFile(overlay)
		if err != nil {
			return nil, fmt.Errorf("read private config %s: %w", overlay, err)
		}
		merged, err = deepMergeJSON(merged, overlayData)
		if err != nil {
			return nil, fmt.Errorf("merge private config %s: %w", overlay, err)
		}
	}

	var cfg Config
	if err := json.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Name = resolveEnv(cfg.Name)
	cfg.HTTPAddr = resolveEnv(cfg.HTTPAddr)
	cfg.Inferrix.BaseURL = resolveEnv(cfg.Inferrix.BaseURL)
	cfg.Inferrix.Token = resolveEnv(cfg.Inferrix.Token)
	cfg.LLM.APIKey = resolveEnv(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = resolveEnv(cfg.LLM.BaseURL)
	cfg.History.Path = resolveEnv(cfg.History.Path)
	cfg.History.PostgresURL = resolveEnv(cfg.History.PostgresURL)
	cfg.Cache.RedisAddr = resolveEnv(cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = resolveEnv(cfg.Cache.RedisPassword)
	cfg.Matrix.Homeserver = resolveEnv(cfg.Matrix.Homeserver)
	cfg.Matrix.Password = resolveEnv(cfg.Matrix.Password)
	cfg.Auth.JWTSecret = resolveEnv(cfg.Auth.JWTSecret)

	if cfg.Name == "" {
		cfg.Name = "atrium"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.History.MaxTurns <= 0 {
		cfg.History.MaxTurns = 20
	}

	return &cfg, nil
}

func deepMergeJSON(base, overlay []byte) ([]byte, error) {
	var baseMap map[string]interface{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, err
		}
	}
	if baseMap == nil {
		baseMap = map[string]interface{}{}
	}

	var overlayMap map[string]interface{}
	if len(overlay) > 0 {
		if err := json.Unmarshal(overlay, &overlayMap); err != nil {
			return nil, err
		}
	}
	mergeMap(baseMap, overlayMap)
	return json.Marshal(baseMap)
}

func mergeMap(dst, src map[string]interface{}) {
	for k, v := range src {
		dstObj, dstIsObj := dst[k].(map[string]interface{})
		srcObj, srcIsObj := v.(map[string]interface{})
		if dstIsObj && srcIsObj {
			mergeMap(dstObj, srcObj)
			dst[k] = dstObj
			continue
		}
		dst[k] = v
	}
}

func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

func defaultConfig() *Config {
	return &Config{
		Name:     "atrium",
		HTTPAddr: envOr("ATRIUM_HTTP_ADDR", ":8080"),
		Inferrix: InferrixConfig{
			BaseURL:           envOr("ATRIUM_INFERRIX_URL", ""),
			Token:             envOr("ATRIUM_INFERRIX_TOKEN", ""),
			PageSize:          100,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		LLM: LLMConfig{
			Provider: envOr("ATRIUM_LLM_PROVIDER", ""),
			APIKey:   envOr("ATRIUM_LLM_API_KEY", ""),
		},
		History: HistoryConfig{
			Backend:  envOr("ATRIUM_HISTORY_BACKEND", "sqlite"),
			Path:     envOr("ATRIUM_HISTORY_PATH", "atrium.db"),
			MaxTurns: 20,
		},
		Cache: CacheConfig{
			Backend:    envOr("ATRIUM_CACHE_BACKEND", "memory"),
			TTL:        "5m",
			MaxEntries: 512,
		},
		Matrix: MatrixConfig{
			DataDir: envOr("ATRIUM_MATRIX_DATA_DIR", "data"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
