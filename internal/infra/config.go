package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DefaultLocale string
	GeoIPDBPath   string
	CORSOrigins   []string

	ScriptProvider string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OpenAIOrg      string
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsModel   string
	ElevenLabsVoiceID string

	VideoProvider       string
	RunwayAPIKey        string
	RunwayBaseURL       string
	RunwayModel         string
	RunwayAPIVersion    string
	DashScopeAPIKey     string
	DashScopeBaseURL    string
	DashScopeVideoModel string
	VeoModel            string
	VideoPollInterval   time.Duration
	VideoPollAttempts   int
	VideoAwaitDeadline  time.Duration

	ImageSourceAllowlist []string
	ImageMaxBytes        int64

	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	AuthRedirectURL   string
	RequireAuth       bool

	RateLimitPerMin int

	ProviderTimeout  time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),

		ScriptProvider: strings.ToLower(getEnv("SCRIPT_PROVIDER", "openai")),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsModel:   getEnv("ELEVENLABS_MODEL", "eleven_monolingual_v1"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),

		VideoProvider:       strings.ToLower(getEnv("VIDEO_PROVIDER", "runway")),
		RunwayAPIKey:        os.Getenv("RUNWAY_API_KEY"),
		RunwayBaseURL:       getEnv("RUNWAY_BASE_URL", "https://api.runwayml.com"),
		RunwayModel:         getEnv("RUNWAY_MODEL", "gen3a_turbo"),
		RunwayAPIVersion:    getEnv("RUNWAY_API_VERSION", "2024-11-06"),
		DashScopeAPIKey:     os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL:    getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		DashScopeVideoModel: getEnv("DASHSCOPE_VIDEO_MODEL", "wan2.1-i2v-turbo"),
		VeoModel:            getEnv("VEO_MODEL", "veo-2.0-generate-001"),
		VideoPollInterval:   getEnvSeconds("VIDEO_POLL_INTERVAL_SECONDS", 5),
		VideoPollAttempts:   getEnvInt("VIDEO_POLL_MAX_ATTEMPTS", 24),
		VideoAwaitDeadline:  getEnvSeconds("VIDEO_AWAIT_DEADLINE_SECONDS", 120),

		ImageMaxBytes: int64(getEnvInt("IMAGE_MAX_BYTES", 10<<20)),

		SupabaseURL:       strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:   os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
		AuthRedirectURL:   os.Getenv("AUTH_REDIRECT_URL"),
		RequireAuth:       getEnvBool("REQUIRE_AUTH", false),

		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 0),

		ProviderTimeout:  getEnvSeconds("PROVIDER_TIMEOUT_SECONDS", 60),
		HTTPReadTimeout:  getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout: getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 150),
		HTTPIdleTimeout:  getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
	}
	cfg.ImageSourceAllowlist = normalizeHosts(getEnvList("IMAGE_SOURCE_HOST_ALLOWLIST"))

	if cfg.VideoPollInterval <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL_SECONDS must be positive")
	}
	if cfg.VideoPollAttempts <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_MAX_ATTEMPTS must be positive")
	}
	switch cfg.ScriptProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("SCRIPT_PROVIDER %q is not supported", cfg.ScriptProvider)
	}
	if cfg.SupabaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.SupabaseURL); err != nil {
			return nil, fmt.Errorf("SUPABASE_URL is invalid: %w", err)
		}
	}
	if cfg.RequireAuth && cfg.SupabaseJWTSecret == "" && cfg.SupabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_JWT_SECRET or SUPABASE_URL is required when REQUIRE_AUTH is enabled")
	}

	return cfg, nil
}

// awaitMargin is kept between the end of a blocking generate call and the
// server's write timeout.
const awaitMargin = 10 * time.Second

// AwaitBudget is how long a blocking generate request may run so its answer
// still fits in the HTTP write timeout. Zero means the server sets no limit.
func (c *Config) AwaitBudget() time.Duration {
	if c.HTTPWriteTimeout <= 0 {
		return 0
	}
	budget := c.HTTPWriteTimeout - awaitMargin
	if budget < c.HTTPWriteTimeout/2 {
		budget = c.HTTPWriteTimeout / 2
	}
	return budget
}

// Redacted returns a loggable summary that reports which credentials are
// present without exposing them.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"app_env":         c.AppEnv,
		"port":            c.Port,
		"script_provider": c.ScriptProvider,
		"video_provider":  c.VideoProvider,
		"openai":          c.OpenAIAPIKey != "",
		"gemini":          c.GeminiAPIKey != "",
		"elevenlabs":      c.ElevenLabsAPIKey != "",
		"runway":          c.RunwayAPIKey != "",
		"dashscope":       c.DashScopeAPIKey != "",
		"supabase":        c.SupabaseURL != "" && c.SupabaseAnonKey != "",
		"require_auth":    c.RequireAuth,
		"rate_limit":      c.RateLimitPerMin,
		"geoip":           c.GeoIPDBPath != "",
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeHosts(hosts []string) []string {
	seen := make(map[string]struct{}, len(hosts))
	var out []string
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
