// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreCookie = "cookie"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabaseDSN string // SQLite の DSN

	// トークン設定
	JWTSecret    string        // トークン署名用の共有鍵
	JWTExpiresIn time.Duration // トークンの既定有効期間
	JWTIssuer    string        // iss クレーム

	// セッション設定
	SessionSecret string        // セッションCookie署名用の秘密鍵
	SessionTTL    time.Duration // 作成時点からのセッション寿命
	SessionStore  string        // memory または cookie

	// ログイン試行制限
	LoginRedisURL     string // 設定時は Redis で試行回数を共有する
	LoginMaxAttempts  int
	LoginWindow       time.Duration
	LoginLockDuration time.Duration

	// パスワードハッシュ
	BcryptCost int

	// ログ設定
	LogLevel  string
	LogFormat string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DatabaseDSN: getEnv("DATABASE_DSN", "file:blog.db?cache=shared"),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnvAsDuration("JWT_EXPIRES_IN", 24*time.Hour),
		JWTIssuer:    getEnv("JWT_ISSUER", "prueba-backend"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),

		LoginRedisURL:     getEnv("LOGIN_REDIS_URL", ""),
		LoginMaxAttempts:  getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:       getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
		LoginLockDuration: getEnvAsDuration("LOGIN_LOCK_DURATION", 10*time.Minute),

		BcryptCost: getEnvAsInt("BCRYPT_COST", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_WINDOW must be positive")
	}
	if c.LoginLockDuration <= 0 {
		return fmt.Errorf("LOGIN_LOCK_DURATION must be positive")
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreCookie:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreCookie, c.SessionStore)
	}

	// ローカル開発では秘密鍵は任意（起動時に一時鍵を生成する）
	if c.GinMode == "release" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required in release mode")
		}
	}

	return nil
}

// IsRelease は release モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を期間として取得します。
// "90" のような整数は秒、"7d" は日数、それ以外は time.ParseDuration の書式として扱います。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := parseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
