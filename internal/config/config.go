package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agriwise-backend/internal/services"
)

type Config struct {
	// Server
	Port        string
	Env         string
	FrontendURL string
	LogLevel    string

	// Gemini AI
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	LLMBackend    string // "rest" or "sdk"
	Generation    services.GenerationConfig

	// Chat session
	ChatWindowSize     int
	ChatRequestTimeout time.Duration
	ChatSystemPrompt   string
	ChatGreeting       string
	ChatRateLimit      int // requests per minute per IP on the HTTP surface, 0 disables

	// Redis (optional notification fan-out)
	RedisURL string
}

// Load reads configuration from the environment (and .env if present), then
// applies the optional YAML policy file at policyPath.
func Load(policyPath string) (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	defaults := services.DefaultGenerationConfig()

	cfg := &Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		Env:           getEnvOrDefault("ENV", "development"),
		FrontendURL:   getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", services.DefaultGeminiModel),
		GeminiBaseURL: getEnvOrDefault("GEMINI_BASE_URL", services.DefaultGeminiBaseURL),
		LLMBackend:    strings.ToLower(getEnvOrDefault("LLM_BACKEND", "rest")),
		Generation: services.GenerationConfig{
			Temperature:     getEnvAsFloatOrDefault("GEMINI_TEMPERATURE", defaults.Temperature),
			TopK:            int32(getEnvAsIntOrDefault("GEMINI_TOP_K", int(defaults.TopK))),
			TopP:            getEnvAsFloatOrDefault("GEMINI_TOP_P", defaults.TopP),
			MaxOutputTokens: int32(getEnvAsIntOrDefault("GEMINI_MAX_OUTPUT_TOKENS", int(defaults.MaxOutputTokens))),
			SafetySettings:  getEnvAsBoolOrDefault("GEMINI_SAFETY_SETTINGS", defaults.SafetySettings),
		},
		ChatWindowSize:     getEnvAsIntOrDefault("CHAT_CONTEXT_WINDOW", 3),
		ChatRequestTimeout: getEnvAsDurationOrDefault("CHAT_REQUEST_TIMEOUT", 30*time.Second),
		ChatSystemPrompt:   getEnvOrDefault("CHAT_SYSTEM_PROMPT", services.DefaultSystemPrompt),
		ChatGreeting:       os.Getenv("CHAT_GREETING"),
		ChatRateLimit:      getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 30),
		RedisURL:           os.Getenv("REDIS_URL"),
	}

	if policyPath == "" {
		policyPath = os.Getenv("AGRIWISE_CONFIG")
	}
	if policyPath != "" {
		policy, err := LoadPolicy(policyPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(policy)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required values are set and policy values are in range.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is not set"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.LLMBackend != "rest" && c.LLMBackend != "sdk" {
		errs = append(errs, fmt.Errorf("LLM_BACKEND must be rest or sdk, got %q", c.LLMBackend))
	}
	if c.ChatWindowSize < 0 {
		errs = append(errs, errors.New("CHAT_CONTEXT_WINDOW must be >= 0"))
	}
	if c.ChatRateLimit < 0 {
		errs = append(errs, errors.New("CHAT_RATE_LIMIT must be >= 0"))
	}
	if c.ChatRequestTimeout <= 0 {
		errs = append(errs, errors.New("CHAT_REQUEST_TIMEOUT must be > 0"))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, errors.New("GEMINI_TEMPERATURE must be between 0 and 2"))
	}
	if c.Generation.TopP < 0 || c.Generation.TopP > 1 {
		errs = append(errs, errors.New("GEMINI_TOP_P must be between 0 and 1"))
	}
	if c.Generation.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("GEMINI_MAX_OUTPUT_TOKENS must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Policy is the optional YAML file overriding generation and chat policy.
// Unset fields leave the environment values untouched.
type Policy struct {
	Gemini struct {
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		Backend string `yaml:"backend"`
	} `yaml:"gemini"`
	Generation struct {
		Temperature     *float32 `yaml:"temperature"`
		TopK            *int32   `yaml:"top_k"`
		TopP            *float32 `yaml:"top_p"`
		MaxOutputTokens *int32   `yaml:"max_output_tokens"`
		SafetySettings  *bool    `yaml:"safety_settings"`
	} `yaml:"generation"`
	Chat struct {
		WindowSize     *int          `yaml:"window_size"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		SystemPrompt   string        `yaml:"system_prompt"`
		Greeting       string        `yaml:"greeting"`
		RateLimit      *int          `yaml:"rate_limit"`
	} `yaml:"chat"`
}

func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return &p, nil
}

// Merge applies the set fields of p over c.
func (c *Config) Merge(p *Policy) {
	if p.Gemini.Model != "" {
		c.GeminiModel = p.Gemini.Model
	}
	if p.Gemini.BaseURL != "" {
		c.GeminiBaseURL = p.Gemini.BaseURL
	}
	if p.Gemini.Backend != "" {
		c.LLMBackend = strings.ToLower(p.Gemini.Backend)
	}

	g := p.Generation
	if g.Temperature != nil {
		c.Generation.Temperature = *g.Temperature
	}
	if g.TopK != nil {
		c.Generation.TopK = *g.TopK
	}
	if g.TopP != nil {
		c.Generation.TopP = *g.TopP
	}
	if g.MaxOutputTokens != nil {
		c.Generation.MaxOutputTokens = *g.MaxOutputTokens
	}
	if g.SafetySettings != nil {
		c.Generation.SafetySettings = *g.SafetySettings
	}

	if p.Chat.WindowSize != nil {
		c.ChatWindowSize = *p.Chat.WindowSize
	}
	if p.Chat.RequestTimeout > 0 {
		c.ChatRequestTimeout = p.Chat.RequestTimeout
	}
	if p.Chat.SystemPrompt != "" {
		c.ChatSystemPrompt = p.Chat.SystemPrompt
	}
	if p.Chat.Greeting != "" {
		c.ChatGreeting = p.Chat.Greeting
	}
	if p.Chat.RateLimit != nil {
		c.ChatRateLimit = *p.Chat.RateLimit
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float32) float32 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
