package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// 支持的模型后端。
const (
	ProviderOllama = "ollama"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Ollama  OllamaConfig
	Ark     ArkConfig
	Persona PersonaConfig
	Log     LogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 是除同源外允许调用 API 与 WebSocket 的浏览器来源，"*" 表示全部。
	AllowedOrigins []string
}

// LLMConfig 选择对话所用的后端。
type LLMConfig struct {
	Provider string
}

// OllamaConfig 描述本地 Ollama 服务的连接参数。
type OllamaConfig struct {
	Host        string
	Timeout     time.Duration
	ListTimeout time.Duration
}

// PersonaConfig 描述角色提示词文件的位置。
type PersonaConfig struct {
	Pattern string
}

// LogConfig 控制日志级别与格式。
type LogConfig struct {
	Level  string
	Format string
}

// ArkConfig 描述方舟大模型相关配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// New 返回带默认值并绑定环境变量的 viper 实例。键中的 "." 对应环境变量中的 "_"，
// 例如 ollama.host -> OLLAMA_HOST。
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("llm.provider", ProviderOllama)
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.timeout", "5m")
	v.SetDefault("ollama.list_timeout", "10s")
	v.SetDefault("persona.pattern", "*.prompt")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ark.region", "cn-beijing")

	// AutomaticEnv only answers for keys viper already knows about.
	for _, key := range []string{"ark.api_key", "ark.access_key", "ark.secret_key", "ark.model", "ark.temperature", "ark.top_p", "ark.max_tokens"} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadFrom(New())
}

// LoadFrom 从给定的 viper 实例读取配置，命令行参数可以事先绑定进去。
func LoadFrom(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ollama, err := loadOllamaConfig(v)
	if err != nil {
		return nil, err
	}

	ark, err := loadArkConfig(v)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(v.GetString("llm.provider")))
	switch provider {
	case ProviderOllama, ProviderArk:
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER value: %q", provider)
	}
	if provider == ProviderArk && !ark.Enabled() {
		return nil, fmt.Errorf("LLM_PROVIDER=ark requires ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	pattern := strings.TrimSpace(v.GetString("persona.pattern"))
	if pattern == "" {
		pattern = "*.prompt"
	}

	return &Config{
		Server:  server,
		LLM:     LLMConfig{Provider: provider},
		Ollama:  ollama,
		Ark:     ark,
		Persona: PersonaConfig{Pattern: pattern},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		},
	}, nil
}

// loadServerConfig 解析服务器监听地址与允许的跨域来源。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	addr, err := loadServerAddr(v)
	if err != nil {
		return ServerConfig{}, err
	}

	var origins []string
	for _, item := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		if item = strings.TrimSpace(item); item != "" {
			origins = append(origins, item)
		}
	}
	return ServerConfig{Addr: addr, AllowedOrigins: origins}, nil
}

func loadServerAddr(v *viper.Viper) (string, error) {
	port := strings.TrimSpace(v.GetString("port"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func loadOllamaConfig(v *viper.Viper) (OllamaConfig, error) {
	host := strings.TrimRight(strings.TrimSpace(v.GetString("ollama.host")), "/")
	if host == "" {
		return OllamaConfig{}, fmt.Errorf("OLLAMA_HOST must not be empty")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	timeout, err := parseDuration(v, "ollama.timeout")
	if err != nil {
		return OllamaConfig{}, err
	}
	listTimeout, err := parseDuration(v, "ollama.list_timeout")
	if err != nil {
		return OllamaConfig{}, err
	}

	return OllamaConfig{Host: host, Timeout: timeout, ListTimeout: listTimeout}, nil
}

func loadArkConfig(v *viper.Viper) (ArkConfig, error) {
	temperature, err := parseOptionalFloat(v, "ark.temperature")
	if err != nil {
		return ArkConfig{}, err
	}

	topP, err := parseOptionalFloat(v, "ark.top_p")
	if err != nil {
		return ArkConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "ark.max_tokens")
	if err != nil {
		return ArkConfig{}, err
	}

	return ArkConfig{
		APIKey:      strings.TrimSpace(v.GetString("ark.api_key")),
		AccessKey:   strings.TrimSpace(v.GetString("ark.access_key")),
		SecretKey:   strings.TrimSpace(v.GetString("ark.secret_key")),
		Model:       strings.TrimSpace(v.GetString("ark.model")),
		BaseURL:     strings.TrimSpace(v.GetString("ark.base_url")),
		Region:      strings.TrimSpace(v.GetString("ark.region")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例；modelID 为空时使用 ARK_MODEL。
func (c ArkConfig) NewChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}
	if modelID == "" {
		modelID = c.Model
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelID,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", envName(key), raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", envName(key), raw)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", envName(key), value, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", envName(key), value, err)
	}
	return &val, nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
