// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 管理者ログイン設定
	AppUsername     string // 管理画面ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DBDriver string // sqlite または mysql
	DBDSN    string // 接続文字列（sqlite の場合はファイルパス）

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq用Redis接続URL
	WorkerConcurrency int    // ワーカーの同時実行数
	WorkersInProcess  bool   // APIプロセス内でワーカーも起動するか
	RetentionDays     int    // 成果物の保持日数
	RetentionCron     string // 保持期限切れ掃除の実行スケジュール（cron形式）

	// キャッシュ設定
	CacheBackend  string // redis または memory
	CacheRedisURL string // 地図キャッシュ用Redis接続URL

	// ストレージ設定
	StorageBackend string // local または s3
	StorageRoot    string // ローカル保存先のルートディレクトリ
	WorkDir        string // CSV生成用の作業ディレクトリ
	S3Endpoint     string
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string

	// メール設定
	SMTPURL       string // shoutrrr 形式の SMTP URL（宛先は含めない）
	MailFrom      string // 送信元アドレス
	PublicBaseURL string // ダウンロードリンクに使う公開URL

	// 申請の流量制限
	SubmitRatePerMinute int

	// 外部データ取り込み設定
	CKANBaseURL string // CKAN action API のベースURL
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "eco-portal.db"),

		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		WorkersInProcess:  getEnvAsBool("WORKERS_IN_PROCESS", false),
		RetentionDays:     getEnvAsInt("RETENTION_DAYS", 7),
		RetentionCron:     getEnv("RETENTION_CRON", "0 3 * * *"), // 毎日 03:00

		CacheBackend:  getEnv("CACHE_BACKEND", "redis"),
		CacheRedisURL: getEnv("CACHE_REDIS_URL", "redis://127.0.0.1:6379/1"),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		StorageRoot:    getEnv("STORAGE_ROOT", "data/artifacts"),
		WorkDir:        getEnv("WORK_DIR", filepath.Join(os.TempDir(), "eco-portal")),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "auto"),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),

		SMTPURL:       getEnv("SMTP_URL", ""),
		MailFrom:      getEnv("MAIL_FROM", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		SubmitRatePerMinute: getEnvAsInt("SUBMIT_RATE_PER_MINUTE", 10),

		CKANBaseURL: getEnv("CKAN_BASE_URL", "https://data.depositar.io/api/3/action"),
	}

	// 必須設定のバリデーション
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
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql (got %q)", c.DBDriver)
	}
	switch c.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be redis or memory (got %q)", c.CacheBackend)
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3 (got %q)", c.StorageBackend)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.SMTPURL == "" {
			return fmt.Errorf("SMTP_URL is required in release mode")
		}
	}

	return nil
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

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
