package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 聚合控制台客户端与本地后端的配置项。
type Config struct {
	Server  ServerConfig
	Client  ClientConfig
	Storage StorageConfig
	Auth    AuthConfig
	Gate    GateConfig
	Log     LogConfig
	Speech  SpeechConfig
	Metrics MetricsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	metricsEnabled, err := parseBoolEnv("METRICS_ENABLED", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Client:  client,
		Storage: storage,
		Auth:    auth,
		Gate:    loadGateConfig(),
		Log: LogConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
		},
		Speech:  speech,
		Metrics: MetricsConfig{Enabled: metricsEnabled},
	}, nil
}

// ServerConfig 描述本地后端的 HTTP 监听配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// TrainingAPI 选择训练状态接口。
type TrainingAPI string

const (
	TrainingOnline TrainingAPI = "online"
	TrainingLegacy TrainingAPI = "legacy"
)

// ClientConfig 描述客户端访问后端的参数。
type ClientConfig struct {
	BaseURL             string
	WSURL               string
	HTTPTimeout         time.Duration
	ReconnectDelay      time.Duration
	HeartbeatInterval   time.Duration
	PollInterval        time.Duration
	ExpiryRedirectDelay time.Duration
	TrainingAPI         TrainingAPI
}

func loadClientConfig() (ClientConfig, error) {
	baseURL := strings.TrimRight(getEnvOrDefault("MRI_BASE_URL", "http://localhost:8080"), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return ClientConfig{}, fmt.Errorf("invalid MRI_BASE_URL value %q: %w", baseURL, err)
	}

	wsURL := strings.TrimRight(getEnvOrDefault("MRI_WS_URL", ""), "/")
	if wsURL == "" {
		wsURL = DeriveWSURL(baseURL)
	}

	httpTimeout, err := parseDurationEnv("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	reconnect, err := parseDurationEnv("RECONNECT_DELAY", 3*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	heartbeat, err := parseDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	poll, err := parseDurationEnv("POLL_INTERVAL", time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	expiry, err := parseDurationEnv("EXPIRY_REDIRECT_DELAY", 2*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	training := TrainingAPI(strings.ToLower(getEnvOrDefault("TRAINING_API", string(TrainingOnline))))
	if training != TrainingOnline && training != TrainingLegacy {
		return ClientConfig{}, fmt.Errorf("invalid TRAINING_API value %q: want online or legacy", training)
	}

	return ClientConfig{
		BaseURL:             baseURL,
		WSURL:               wsURL,
		HTTPTimeout:         httpTimeout,
		ReconnectDelay:      reconnect,
		HeartbeatInterval:   heartbeat,
		PollInterval:        poll,
		ExpiryRedirectDelay: expiry,
		TrainingAPI:         training,
	}, nil
}

// DeriveWSURL 将 http(s) 地址换成对应的 ws(s) 协议。
func DeriveWSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

// StorageConfig 描述本地会话存储。
type StorageConfig struct {
	Driver string
	Path   string
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", "file"))
	path := getEnvOrDefault("STORAGE_PATH", "")
	if path == "" && driver != "memory" {
		home, err := os.UserHomeDir()
		if err != nil {
			return StorageConfig{}, fmt.Errorf("resolve home directory: %w", err)
		}
		name := "session.json"
		if driver == "sqlite" {
			name = "session.db"
		}
		path = filepath.Join(home, ".mri-console", name)
	}
	return StorageConfig{Driver: driver, Path: path}, nil
}

// AuthConfig 描述本地后端的令牌签发参数。
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	AdminKey  string
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		TokenTTL:  ttl,
		AdminKey:  getEnvOrDefault("ADMIN_REGISTER_KEY", "admin123"),
	}, nil
}

// GateConfig 描述受保护页面与管理员页面的前缀。
type GateConfig struct {
	ProtectedPaths []string
	AdminPaths     []string
}

func loadGateConfig() GateConfig {
	return GateConfig{
		ProtectedPaths: parseListEnv("GATE_PROTECTED_PATHS", []string{"/dashboard", "/reconstruction", "/medical-qa"}),
		AdminPaths:     parseListEnv("GATE_ADMIN_PATHS", []string{"/admin"}),
	}
}

// LogConfig 日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

// SpeechConfig 语音相关配置。Player 是客户端播放命令，例如 "mpg123 -q"；
// 其余字段是后端调用火山引擎 TTS 的凭证，缺失时返回静音音频。
type SpeechConfig struct {
	Player      string
	AppID       string
	AccessToken string
	Voice       string
	ResourceID  string
	URL         string
	Speed       float64
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	speed := 1.0
	if raw := strings.TrimSpace(os.Getenv("SPEECH_TTS_SPEED")); raw != "" {
		speed, err = strconv.ParseFloat(raw, 64)
		if err != nil || speed <= 0 {
			return SpeechConfig{}, fmt.Errorf("invalid SPEECH_TTS_SPEED value %q", raw)
		}
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		Player:      getEnvOrDefault("SPEECH_PLAYER", ""),
		AppID:       appID,
		AccessToken: accessToken,
		Voice:       getEnvOrDefault("SPEECH_TTS_VOICE", "zh_female_vv_uranus_bigtts"),
		ResourceID:  getEnvOrDefault("SPEECH_TTS_RESOURCE_ID", ""),
		URL:         getEnvOrDefault("SPEECH_TTS_URL", ""),
		Speed:       speed,
		Timeout:     timeout,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

type MetricsConfig struct {
	Enabled bool
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

// parseDurationEnv 接受 Go 时长格式 ("3s") 或纯数字毫秒 ("3000")。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := parseOptionalIntEnv(key); err == nil && ms != nil {
		if *ms <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(*ms) * time.Millisecond, nil
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

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, strings.TrimRight(part, "/"))
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
