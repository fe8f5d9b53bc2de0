package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Responder modes.
const (
	ResponderKeyword = "keyword"
	ResponderLLM     = "llm"
)

// Completion providers.
const (
	ProviderGroq = "groq"
	ProviderArk  = "ark"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultArkBaseURL  = "https://ark.cn-beijing.volces.com/api/v3"
	defaultArkRegion   = "cn-beijing"
)

// Config aggregates every setting of the backend.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Responder ResponderConfig
	AI        AIConfig
	Ticket    TicketConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	responder, err := loadResponderConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		Responder: responder,
		AI:        ai,
		Ticket:    loadTicketConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
	// PublicWSURL is the externally reachable ws(s) base used in channel addresses.
	// Empty means derive it from the request host.
	PublicWSURL string
	CORSOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	publicURL := strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_WS_URL")), "/")
	if publicURL != "" && !strings.HasPrefix(publicURL, "ws://") && !strings.HasPrefix(publicURL, "wss://") {
		return ServerConfig{}, fmt.Errorf("invalid PUBLIC_WS_URL value %q: must start with ws:// or wss://", publicURL)
	}

	cfg := ServerConfig{
		PublicWSURL: publicURL,
		CORSOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as is.
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

// ResponderConfig picks how utterances are answered.
type ResponderConfig struct {
	Mode string
}

func loadResponderConfig() (ResponderConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("RESPONDER", ResponderKeyword))
	switch mode {
	case ResponderKeyword, ResponderLLM:
		return ResponderConfig{Mode: mode}, nil
	default:
		return ResponderConfig{}, fmt.Errorf("invalid RESPONDER value %q: want %s or %s", mode, ResponderKeyword, ResponderLLM)
	}
}

// AIConfig describes the completion service.
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
	PromptFile  string
}

// Enabled reports whether credentials and a model are configured.
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// NewChatModel builds the chat model for the configured provider.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	if c.Provider == ProviderArk {
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Timeout:     c.Timeout,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGroq))
	if provider != ProviderGroq && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q: want %s or %s", provider, ProviderGroq, ProviderArk)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		temperature = floatPtr(0.7)
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	if topP == nil {
		topP = floatPtr(1)
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		limit := 150
		maxTokens = &limit
	} else if *maxTokens < 1 {
		return AIConfig{}, fmt.Errorf("invalid AI_MAX_TOKENS value %d: must be positive", *maxTokens)
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 5*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:    provider,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
		PromptFile:  strings.TrimSpace(os.Getenv("AI_PROMPT_FILE")),
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("ARK_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", defaultArkBaseURL)
		cfg.Region = getEnvOrDefault("ARK_REGION", defaultArkRegion)
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
		cfg.Model = getEnvOrDefault("GROQ_MODEL", defaultGroqModel)
		cfg.BaseURL = getEnvOrDefault("GROQ_BASE_URL", defaultGroqBaseURL)
	}

	return cfg, nil
}

// TicketConfig configures where submitted tickets go.
type TicketConfig struct {
	RedisURL string
	Channel  string
}

func loadTicketConfig() TicketConfig {
	return TicketConfig{
		RedisURL: strings.TrimSpace(os.Getenv("TICKET_REDIS_URL")),
		Channel:  strings.TrimSpace(os.Getenv("TICKET_CHANNEL")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
