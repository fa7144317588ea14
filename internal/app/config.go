package app

import (
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the application configuration, loaded from SOURCEMART_
// environment variables, flags or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SOURCEMART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile    string `usage:"Catalog fixture loaded into memory storage instead of the embedded one" flag:"seed-file"`
	Checkout    CheckoutConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CheckoutConfig tunes the order flow.
type CheckoutConfig struct {
	StepTimeout          time.Duration `default:"3s" usage:"Timeout of each checkout store call"`
	CompensationAttempts int           `default:"3" usage:"Attempts to delete an orphaned order header"`
	CompensationBackoff  time.Duration `default:"50ms" usage:"Linear backoff between compensation attempts"`
	PaymentURLBase       string        `default:"/checkout/payment" usage:"Prefix of nextSteps.paymentUrl"`
	RedirectURLBase      string        `default:"/orders" usage:"Prefix of nextSteps.redirectUrl"`
	PaymentMethods       []string      `usage:"Accepted payment methods, all when empty"`
}

// RedisConfig enables the shared idempotency store when Addr is set.
type RedisConfig struct {
	Addr           string        `usage:"Redis address host:port (SOURCEMART_REDIS_ADDR or REDIS_URL)"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"Lifetime of idempotency keys"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"orders.events" usage:"Order events topic"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS            float64  `default:"20" usage:"Sustained requests per second per client, 0 disables"`
	Burst          int      `default:"40" usage:"Bucket size"`
	TrustedProxies []string `usage:"Reverse proxy IPs or CIDRs whose X-Forwarded-For is honored" flag:"trusted-proxies"`
}

func (c RateLimitConfig) trustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "trusted proxy %q", raw)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "trusted proxy %q", raw)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SOURCEMART",
		Files:     []string{"config.yaml", "/etc/sourcemart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps DATABASE_URL, REDIS_URL and PORT, as set by
// hosting platforms, onto unset fields.
func (c *Config) applyPlatformDefaults(getenv func(string) string) error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		if raw := getenv("REDIS_URL"); raw != "" {
			u, err := url.Parse(raw)
			if err != nil {
				return errors.Wrap(err, "parse REDIS_URL")
			}
			c.Redis.Addr = u.Host
			if p, ok := u.User.Password(); ok && c.Redis.Password == "" {
				c.Redis.Password = p
			}
			if db := strings.TrimPrefix(u.Path, "/"); db != "" {
				n, err := strconv.Atoi(db)
				if err != nil {
					return errors.Wrapf(err, "REDIS_URL database %q", db)
				}
				c.Redis.DB = n
			}
		}
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SOURCEMART_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if _, err := c.paymentMethods(); err != nil {
		return err
	}
	if _, err := c.RateLimit.trustedProxies(); err != nil {
		return err
	}
	if c.Checkout.CompensationAttempts < 1 {
		return errors.New("checkout.compensationAttempts must be at least 1")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

func (c *Config) paymentMethods() ([]order.PaymentMethod, error) {
	var out []order.PaymentMethod
	for _, raw := range c.Checkout.PaymentMethods {
		m, ok := order.ParsePaymentMethod(strings.TrimSpace(raw))
		if !ok {
			return nil, errors.Errorf("unknown payment method %q", raw)
		}
		out = append(out, m)
	}
	return out, nil
}

// checkoutConfig converts the validated configuration for checkout.NewService.
func (c *Config) checkoutConfig() checkout.Config {
	methods, _ := c.paymentMethods()
	return checkout.Config{
		StepTimeout:          c.Checkout.StepTimeout,
		CompensationAttempts: c.Checkout.CompensationAttempts,
		CompensationBackoff:  c.Checkout.CompensationBackoff,
		PaymentURLBase:       c.Checkout.PaymentURLBase,
		RedirectURLBase:      c.Checkout.RedirectURLBase,
		PaymentMethods:       methods,
	}
}
