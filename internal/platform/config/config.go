package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	IdentityJWTKey string
	// IdentityIssuer, when set, must match the token iss claim.
	IdentityIssuer string
	CatalogSeed    string
	// BootstrapAdmins are external ids granted the admin role on profile completion.
	BootstrapAdmins []string

	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Cart     CartConfig
	Team     TeamConfig
	Payment  PaymentTarget
	Proof    ProofConfig
}

// HTTPConfig holds the listener timeouts.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig configures the cart store. An empty URL selects the in-memory cart store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification sink. No brokers selects log delivery.
type KafkaConfig struct {
	Brokers     []string
	NotifyTopic string
}

// CartConfig bounds cart lifetime.
type CartConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// TeamConfig holds the per-track member limits.
type TeamConfig struct {
	MaxStandard int
	MaxOpen     int
}

// PaymentTarget describes where participants send money. It is shown on the
// checkout summary and never interpreted.
type PaymentTarget struct {
	Payee        string `json:"payee"`
	Account      string `json:"account"`
	Instructions string `json:"instructions,omitempty"`
}

// ProofConfig configures presigned proof-of-payment links. An empty bucket
// disables them.
type ProofConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	URLTTL          time.Duration
}

// IsProduction reports whether the process runs in production.
func (s *Server) IsProduction() bool {
	return s.Environment == "production"
}

// devIdentityKey is only accepted outside production.
const devIdentityKey = "dev-identity-key-change-in-production"

// FromEnv builds a Server config from environment variables, after loading an
// optional .env file, so main stays lean.
func FromEnv() (*Server, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var errs []error
	p := parser{errs: &errs}

	cfg := &Server{
		Addr:            getEnv("REGDESK_ADDR", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		IdentityJWTKey:  getEnv("IDENTITY_JWT_KEY", ""),
		IdentityIssuer:  getEnv("IDENTITY_ISSUER", ""),
		CatalogSeed:     getEnv("CATALOG_SEED", ""),
		BootstrapAdmins: splitList(getEnv("REGDESK_BOOTSTRAP_ADMINS", "")),
		HTTP: HTTPConfig{
			ReadHeaderTimeout: p.duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       p.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      p.duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       p.duration("HTTP_IDLE_TIMEOUT", time.Minute),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    p.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       p.duration("DB_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "")),
			NotifyTopic: getEnv("NOTIFY_TOPIC", "regdesk.notifications"),
		},
		Cart: CartConfig{
			TTL:           p.duration("CART_TTL", 24*time.Hour),
			SweepInterval: p.duration("CART_SWEEP_INTERVAL", time.Minute),
		},
		Team: TeamConfig{
			MaxStandard: p.integer("TEAM_MAX_STANDARD", 4),
			MaxOpen:     p.integer("TEAM_MAX_OPEN", 6),
		},
		Payment: PaymentTarget{
			Payee:        getEnv("PAYMENT_PAYEE", ""),
			Account:      getEnv("PAYMENT_ACCOUNT", ""),
			Instructions: getEnv("PAYMENT_INSTRUCTIONS", ""),
		},
		Proof: ProofConfig{
			Bucket:          getEnv("PROOF_BUCKET", ""),
			Endpoint:        getEnv("PROOF_ENDPOINT", ""),
			Region:          getEnv("PROOF_REGION", "auto"),
			AccessKeyID:     getEnv("PROOF_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("PROOF_SECRET_ACCESS_KEY", ""),
			URLTTL:          p.duration("PROOF_URL_TTL", 15*time.Minute),
		},
	}

	if cfg.IdentityJWTKey == "" {
		if cfg.IsProduction() {
			errs = append(errs, errors.New("IDENTITY_JWT_KEY is required in production"))
		}
		cfg.IdentityJWTKey = devIdentityKey
	}
	if cfg.Team.MaxStandard < 1 || cfg.Team.MaxOpen < 1 {
		errs = append(errs, errors.New("team size limits must be positive"))
	}
	if cfg.Cart.TTL <= 0 {
		errs = append(errs, errors.New("CART_TTL must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser accumulates parse failures so every bad key is reported at once.
type parser struct {
	errs *[]error
}

func (p parser) integer(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
