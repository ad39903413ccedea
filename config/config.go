package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort   string
	JWTSecret string
	GinMode   string
	GinPath   string

	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	RateLimitPerMinute int
	AllowedOrigins     []string

	// Plant identification providers
	PlantIDAPIKey         string
	PlantIDEndpoint       string
	PlantIDTimeoutSec     int
	PlantNetAPIKey        string
	PlantNetEndpoint      string
	PlantNetTimeoutSec    int
	IdentifySchemaVersion string
	IdentifyCacheTTLHours int
	IdentifyQuota         int
	IdentifyWindowSec     int
	BreakerFailures       int
	BreakerOpenSec        int
	MaxImageBytes         int64
	UploadDir             string
	ImageRetentionDays    int

	// OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string

	// SMTP for email verification
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Registration security
	RegisterCaptchaEnabled        bool
	RegisterMaxPerIPPerDay        int
	RegisterAttemptCooldownSec    int
	RegisterFailedMaxPerIPPerHour int
	RegisterTempBanMinutes        int

	// Admins
	AdminUsernames []string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Optional .env file; a missing file is fine.
	_ = godotenv.Load()

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// SetForTesting replaces the cached configuration. Test helper only.
func SetForTesting(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

type jsonSection map[string]any

func (m jsonSection) str(key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (m jsonSection) num(key string) int {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case json.Number:
			i, _ := t.Int64()
			return int(i)
		}
	}
	return 0
}

func (m jsonSection) boolean(key string) (bool, bool) {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}

func (m jsonSection) list(key string) []string {
	if v, ok := m[key]; ok {
		if arr, ok := v.([]any); ok {
			res := make([]string, 0, len(arr))
			for _, it := range arr {
				if s, ok := it.(string); ok {
					res = append(res, s)
				}
			}
			return res
		}
	}
	return nil
}

func section(raw map[string]any, name string) jsonSection {
	if s, ok := raw[name].(map[string]any); ok {
		return jsonSection(s)
	}
	return jsonSection{}
}

// loadJSONConfig reads the grouped JSON config file into cfg if present.
// Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	app := section(raw, "app")
	out.AppPort = app.str("AppPort")
	out.JWTSecret = app.str("JWTSecret")
	if v := app.num("RateLimitPerMinute"); v != 0 {
		out.RateLimitPerMinute = v
	}
	if list := app.list("AllowedOrigins"); len(list) > 0 {
		out.AllowedOrigins = list
	}
	if v := app.str("OAuthRedirectBase"); v != "" {
		out.OAuthRedirectBase = v
	}
	if list := app.list("AdminUsernames"); len(list) > 0 {
		out.AdminUsernames = list
	}

	dbs := section(raw, "database")
	out.DatabaseURI = dbs.str("DatabaseURI")
	out.DBHost = dbs.str("DBHost")
	out.DBPort = dbs.str("DBPort")
	out.DBUser = dbs.str("DBUser")
	out.DBPassword = dbs.str("DBPassword")
	out.DBName = dbs.str("DBName")
	out.DBSSLMode = dbs.str("DBSSLMode")

	rds := section(raw, "redis")
	out.RedisHost = rds.str("RedisHost")
	if v := rds.num("RedisPort"); v != 0 {
		out.RedisPort = v
	}
	if v := rds.num("RedisDB"); v != 0 {
		out.RedisDB = v
	}
	out.RedisPassword = rds.str("RedisPassword")

	id := section(raw, "identify")
	out.PlantIDAPIKey = id.str("PlantIDAPIKey")
	out.PlantIDEndpoint = id.str("PlantIDEndpoint")
	out.PlantNetAPIKey = id.str("PlantNetAPIKey")
	out.PlantNetEndpoint = id.str("PlantNetEndpoint")
	if v := id.num("PlantIDTimeoutSec"); v != 0 {
		out.PlantIDTimeoutSec = v
	}
	if v := id.num("PlantNetTimeoutSec"); v != 0 {
		out.PlantNetTimeoutSec = v
	}
	if v := id.str("SchemaVersion"); v != "" {
		out.IdentifySchemaVersion = v
	}
	if v := id.num("CacheTTLHours"); v != 0 {
		out.IdentifyCacheTTLHours = v
	}
	if v := id.num("Quota"); v != 0 {
		out.IdentifyQuota = v
	}
	if v := id.num("WindowSec"); v != 0 {
		out.IdentifyWindowSec = v
	}
	if v := id.num("BreakerFailures"); v != 0 {
		out.BreakerFailures = v
	}
	if v := id.num("BreakerOpenSec"); v != 0 {
		out.BreakerOpenSec = v
	}
	if v := id.num("MaxImageMB"); v != 0 {
		out.MaxImageBytes = int64(v) * 1024 * 1024
	}
	if v := id.str("UploadDir"); v != "" {
		out.UploadDir = v
	}
	if v := id.num("ImageRetentionDays"); v != 0 {
		out.ImageRetentionDays = v
	}

	oa := section(raw, "oauth")
	out.GitHubClientID = oa.str("GitHubClientID")
	out.GitHubClientSecret = oa.str("GitHubClientSecret")
	out.GoogleClientID = oa.str("GoogleClientID")
	out.GoogleClientSecret = oa.str("GoogleClientSecret")

	sm := section(raw, "smtp")
	out.SMTPHost = sm.str("SMTPHost")
	if v := sm.num("SMTPPort"); v != 0 {
		out.SMTPPort = v
	}
	out.SMTPUsername = sm.str("SMTPUsername")
	out.SMTPPassword = sm.str("SMTPPassword")
	out.SMTPFrom = sm.str("SMTPFrom")
	out.SMTPFromName = sm.str("SMTPFromName")
	if b, ok := sm.boolean("SMTPTLS"); ok {
		out.SMTPTLS = b
	}

	lg := section(raw, "log")
	if v := lg.str("Level"); v != "" {
		out.LogLevel = v
	}
	if v := lg.str("Path"); v != "" {
		out.LogPath = v
	}
	if v := lg.str("GinMode"); v != "" {
		out.GinMode = v
	}
	if v := lg.str("GinPath"); v != "" {
		out.GinPath = v
	}
	if v := lg.num("MaxSizeMB"); v != 0 {
		out.LogMaxSizeMB = v
	}
	if v := lg.num("MaxBackups"); v != 0 {
		out.LogMaxBackups = v
	}
	if v := lg.num("MaxAgeDays"); v != 0 {
		out.LogMaxAgeDays = v
	}
	if b, ok := lg.boolean("Compress"); ok {
		out.LogCompress = b
	}

	rg := section(raw, "register")
	if b, ok := rg.boolean("CaptchaEnabled"); ok {
		out.RegisterCaptchaEnabled = b
	}
	if v := rg.num("MaxPerIPPerDay"); v != 0 {
		out.RegisterMaxPerIPPerDay = v
	}
	if v := rg.num("AttemptCooldownSec"); v != 0 {
		out.RegisterAttemptCooldownSec = v
	}
	if v := rg.num("FailedMaxPerIPPerHour"); v != 0 {
		out.RegisterFailedMaxPerIPPerHour = v
	}
	if v := rg.num("TempBanMinutes"); v != 0 {
		out.RegisterTempBanMinutes = v
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:8080"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "5432"
	}
	if c.DBUser == "" {
		c.DBUser = "postgres"
	}
	if c.DBName == "" {
		c.DBName = "plantid_community"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.PlantIDEndpoint == "" {
		c.PlantIDEndpoint = "https://plant.id/api/v3/identification"
	}
	if c.PlantNetEndpoint == "" {
		c.PlantNetEndpoint = "https://my-api.plantnet.org/v2/identify/all"
	}
	if c.PlantIDTimeoutSec == 0 {
		c.PlantIDTimeoutSec = 35
	}
	if c.PlantNetTimeoutSec == 0 {
		c.PlantNetTimeoutSec = 20
	}
	if c.IdentifySchemaVersion == "" {
		c.IdentifySchemaVersion = "v3"
	}
	if c.IdentifyCacheTTLHours == 0 {
		c.IdentifyCacheTTLHours = 24
	}
	if c.IdentifyQuota == 0 {
		c.IdentifyQuota = 5
	}
	if c.IdentifyWindowSec == 0 {
		c.IdentifyWindowSec = 60
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpenSec == 0 {
		c.BreakerOpenSec = 60
	}
	if c.MaxImageBytes == 0 {
		c.MaxImageBytes = 10 * 1024 * 1024
	}
	if c.UploadDir == "" {
		c.UploadDir = "static/uploads"
	}
	if c.ImageRetentionDays == 0 {
		c.ImageRetentionDays = 30
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.RegisterFailedMaxPerIPPerHour == 0 {
		c.RegisterFailedMaxPerIPPerHour = 20
	}
	if c.RegisterTempBanMinutes == 0 {
		c.RegisterTempBanMinutes = 60
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			*dst = mustParseInt(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true"
		}
	}

	setStr("APP_PORT", &c.AppPort)
	setStr("JWT_SECRET", &c.JWTSecret)
	setStr("GIN_MODE", &c.GinMode)
	setStr("GIN_PATH", &c.GinPath)
	setStr("DATABASE_URI", &c.DatabaseURI)
	setStr("DB_HOST", &c.DBHost)
	setStr("DB_PORT", &c.DBPort)
	setStr("DB_USER", &c.DBUser)
	setStr("DB_PASSWORD", &c.DBPassword)
	setStr("DB_NAME", &c.DBName)
	setStr("DB_SSLMODE", &c.DBSSLMode)
	setStr("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setStr("REDIS_PASSWORD", &c.RedisPassword)
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)

	setStr("PLANT_ID_API_KEY", &c.PlantIDAPIKey)
	setStr("PLANT_ID_ENDPOINT", &c.PlantIDEndpoint)
	setInt("PLANT_ID_TIMEOUT_SEC", &c.PlantIDTimeoutSec)
	setStr("PLANTNET_API_KEY", &c.PlantNetAPIKey)
	setStr("PLANTNET_ENDPOINT", &c.PlantNetEndpoint)
	setInt("PLANTNET_TIMEOUT_SEC", &c.PlantNetTimeoutSec)
	setStr("IDENTIFY_SCHEMA_VERSION", &c.IdentifySchemaVersion)
	setInt("IDENTIFY_CACHE_TTL_HOURS", &c.IdentifyCacheTTLHours)
	setInt("IDENTIFY_QUOTA", &c.IdentifyQuota)
	setInt("IDENTIFY_WINDOW_SEC", &c.IdentifyWindowSec)
	setInt("BREAKER_FAILURES", &c.BreakerFailures)
	setInt("BREAKER_OPEN_SEC", &c.BreakerOpenSec)
	setStr("UPLOAD_DIR", &c.UploadDir)
	setInt("IMAGE_RETENTION_DAYS", &c.ImageRetentionDays)
	if v := os.Getenv("MAX_IMAGE_MB"); v != "" {
		c.MaxImageBytes = int64(mustParseInt(v)) * 1024 * 1024
	}

	setStr("GITHUB_CLIENT_ID", &c.GitHubClientID)
	setStr("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	setStr("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	setStr("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	setStr("OAUTH_REDIRECT_BASE_URL", &c.OAuthRedirectBase)

	setStr("SMTP_HOST", &c.SMTPHost)
	setInt("SMTP_PORT", &c.SMTPPort)
	setStr("SMTP_USERNAME", &c.SMTPUsername)
	setStr("SMTP_PASSWORD", &c.SMTPPassword)
	setStr("SMTP_FROM", &c.SMTPFrom)
	setStr("SMTP_FROM_NAME", &c.SMTPFromName)
	setBool("SMTP_TLS", &c.SMTPTLS)

	setStr("LOG_LEVEL", &c.LogLevel)
	setStr("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	setBool("LOG_COMPRESS", &c.LogCompress)

	setBool("REGISTER_CAPTCHA_ENABLED", &c.RegisterCaptchaEnabled)
	setInt("REGISTER_MAX_PER_IP_PER_DAY", &c.RegisterMaxPerIPPerDay)
	setInt("REGISTER_ATTEMPT_COOLDOWN_SEC", &c.RegisterAttemptCooldownSec)
	setInt("REGISTER_FAILED_MAX_PER_IP_PER_HOUR", &c.RegisterFailedMaxPerIPPerHour)
	setInt("REGISTER_TEMP_BAN_MINUTES", &c.RegisterTempBanMinutes)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("ADMIN_USERNAMES"); v != "" {
		c.AdminUsernames = splitAndTrim(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
