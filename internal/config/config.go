package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 決済の確定方式
type CheckoutFlow string

const (
	// 決済成功のwebhookで注文を作る
	FlowPaymentFirst CheckoutFlow = "payment_first"
	// 先にPENDING注文を作り、webhookでPAIDにする
	FlowOrderFirst CheckoutFlow = "order_first"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // 管理者APIのJWT検証用

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string        // usd
	CheckoutFlow        CheckoutFlow  // payment_first / order_first
	GatewayTimeout      time.Duration // ゲートウェイ呼び出しの上限（10s）

	// 署名なしの手動確定を許すか（既定false）
	ManualConfirmEnabled bool

	RedisAddr       string        // 空ならキャッシュなし
	CatalogCacheTTL time.Duration // 1m（価格変更がカート表示に出るまでの上限）

	OrderEventsTopicARN string        // 空ならログ出力のみ
	AWSEndpoint         string        // localstackなど
	OutboxPollInterval  time.Duration // 5s
	OutboxMaxAttempts   int           // これ以上失敗した行は配信しない（10、0で無制限）

	CheckoutRateLimit int // 1分あたり/IP
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiOr("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	gatewayTimeout, err := durationOr("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := durationOr("CATALOG_CACHE_TTL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := durationOr("OUTBOX_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxAttempts, err := atoiOr("OUTBOX_MAX_ATTEMPTS", 10)
	if err != nil {
		return Config{}, err
	}
	rateLimit, err := atoiOr("CHECKOUT_RATE_LIMIT", 20)
	if err != nil {
		return Config{}, err
	}
	manualConfirm, err := boolOr("MANUAL_CONFIRM_ENABLED", false)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: getenv("GO_ENV", "dev"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:      strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
		CheckoutFlow:         CheckoutFlow(getenv("CHECKOUT_FLOW", string(FlowPaymentFirst))),
		GatewayTimeout:       gatewayTimeout,
		ManualConfirmEnabled: manualConfirm,

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		CatalogCacheTTL: cacheTTL,

		OrderEventsTopicARN: os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		AWSEndpoint:         os.Getenv("AWS_ENDPOINT"),
		OutboxPollInterval:  pollInterval,
		OutboxMaxAttempts:   maxAttempts,

		CheckoutRateLimit: rateLimit,
	}

	//必須チェック
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StripeSecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return Config{}, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	switch cfg.CheckoutFlow {
	case FlowPaymentFirst, FlowOrderFirst:
	default:
		return Config{}, fmt.Errorf("CHECKOUT_FLOW must be %q or %q", FlowPaymentFirst, FlowOrderFirst)
	}
	if len(cfg.PaymentCurrency) != 3 {
		return Config{}, fmt.Errorf("PAYMENT_CURRENCY must be a 3-letter code")
	}

	return cfg, nil
}

// DB接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod" || c.GoEnv == "production"
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func boolOr(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be bool: %w", key, err)
	}
	return b, nil
}
