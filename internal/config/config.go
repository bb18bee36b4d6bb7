package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// Config 聚合后端与 widget 宿主共用的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  SpeechConfig
	Storage StorageConfig
	Log     LogConfig
	Coach   CoachConfig
}

// Load 从环境变量加载配置。调用方负责提前加载 .env。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	coachCfg, err := loadCoachConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Speech:  speech,
		Storage: StorageConfig{DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		Coach: coachCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述回复生成所用的大模型配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	MaxTokens    *int
	SystemPrompt string
	HistoryLimit int
	// ToneLLM 为 true 时由大模型判断回复语气，否则只用关键词规则。
	ToneLLM bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("COACH_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 0)
	}

	toneLLM, err := parseBoolEnv("COACH_TONE_LLM", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		SystemPrompt: getEnvOrDefault("COACH_SYSTEM_PROMPT", defaultSystemPrompt),
		HistoryLimit: historyLimit,
		ToneLLM:      toneLLM,
	}, nil
}

const defaultSystemPrompt = "You are Coach, a concise and friendly assistant embedded in a file-processing dashboard. Answer in two or three short sentences suitable for being read aloud."

// SpeechConfig 描述 TTS 服务配置。
type SpeechConfig struct {
	AppID       string
	AccessToken string
	Endpoint    string
	Voice       string
	Speed       float32
	Language    string
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		Endpoint:    getEnvOrDefault("SPEECH_TTS_ENDPOINT", "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"),
		Voice:       getEnvOrDefault("SPEECH_TTS_VOICE", "en_female_amy_jupiter_bigtts"),
		Speed:       ttsSpeed,
		Language:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// StorageConfig 描述会话持久化配置。DatabaseURL 为空时使用内存存储。
type StorageConfig struct {
	DatabaseURL string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

// CoachConfig 描述 widget 宿主（cmd/coach）的配置。
type CoachConfig struct {
	Endpoint      string
	UserID        string
	Greeting      string
	Timeout       time.Duration
	RecognizerURL string
	FFPlayPath    string
	Mute          bool
}

func loadCoachConfig() (CoachConfig, error) {
	timeout, err := parseOptionalIntEnv("COACH_TIMEOUT")
	if err != nil {
		return CoachConfig{}, err
	}
	// 0 表示不设超时，与浏览器端行为一致：请求卡住时 thinking 会一直保持。
	var requestTimeout time.Duration
	if timeout != nil && *timeout > 0 {
		requestTimeout = time.Duration(*timeout) * time.Second
	}

	mute, err := parseBoolEnv("COACH_MUTE", false)
	if err != nil {
		return CoachConfig{}, err
	}

	return CoachConfig{
		Endpoint:      getEnvOrDefault("COACH_ENDPOINT", "http://localhost:8080/api/coach"),
		UserID:        getEnvOrDefault("COACH_USER_ID", "anonymous"),
		Greeting:      getEnvOrDefault("COACH_GREETING", coach.Greeting),
		Timeout:       requestTimeout,
		RecognizerURL: strings.TrimSpace(os.Getenv("COACH_RECOGNIZER_URL")),
		FFPlayPath:    getEnvOrDefault("COACH_FFPLAY_PATH", "ffplay"),
		Mute:          mute,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func lookupTrimmed(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
