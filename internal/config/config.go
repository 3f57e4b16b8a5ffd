package config // package config loads application configuration from environment variables

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; see Load for the names.
type Config struct {
    Env      string // application environment (e.g. "dev", "prod")
    Port     string // HTTP port to listen on
    LogLevel string // debug | info | warn | error

    DBUser    string
    DBPass    string // may be empty
    DBHost    string
    DBPort    string
    DBName    string
    DBMigrate bool // apply the embedded schema at startup

    JWTSecret      string // secret used to sign admin JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for admin password hashing
    AdminEmail     string // seed admin, created on boot when both are set
    AdminPassword  string

    KonfHub KonfHubConfig
    Clerk   ClerkConfig

    RabbitURL         string
    PassEventsEnabled bool

    Currency         string        // currency assumed for orders
    ClaimTTL         time.Duration // lifetime of a pending pass claim
    ClaimAutoApprove bool          // approve claims on submission
    CORSOrigins      []string
}

// KonfHubConfig configures the ticketing gateway client.
type KonfHubConfig struct {
    APIURL         string
    APIKey         string
    WebhookSecret  string
    AllowUnsigned  bool // accept unsigned webhooks when no secret is set
    RequestTimeout time.Duration
}

// ClerkConfig configures the identity provider client.
type ClerkConfig struct {
    APIURL        string
    SecretKey     string
    WebhookSecret string
}

// Load reads configuration values from environment variables.  Every
// missing or malformed required variable is reported in the returned error.
func Load() (Config, error) {
    var e envErrors
    cfg := Config{
        Env:      e.must("APP_ENV"),
        Port:     e.must("APP_PORT"),
        LogLevel: getenv("LOG_LEVEL", "info"),

        DBUser:    e.must("DB_USER"),
        DBPass:    os.Getenv("DB_PASS"),
        DBHost:    e.must("DB_HOST"),
        DBPort:    e.must("DB_PORT"),
        DBName:    e.must("DB_NAME"),
        DBMigrate: envBool("DB_MIGRATE", false),

        JWTSecret:      e.must("JWT_SECRET"),
        AccessTTLMin:   e.mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: e.mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     envInt("BCRYPT_COST", 12),
        AdminEmail:     os.Getenv("ADMIN_EMAIL"),
        AdminPassword:  os.Getenv("ADMIN_PASSWORD"),

        KonfHub: KonfHubConfig{
            APIURL:         getenv("KONFHUB_API_URL", "https://api.konfhub.com"),
            APIKey:         os.Getenv("KONFHUB_API_KEY"),
            WebhookSecret:  os.Getenv("KONFHUB_WEBHOOK_SECRET"),
            AllowUnsigned:  envBool("KONFHUB_ALLOW_UNSIGNED_WEBHOOKS", false),
            RequestTimeout: envDur("KONFHUB_TIMEOUT", 15*time.Second),
        },
        Clerk: ClerkConfig{
            APIURL:        getenv("CLERK_API_URL", "https://api.clerk.com"),
            SecretKey:     os.Getenv("CLERK_SECRET_KEY"),
            WebhookSecret: os.Getenv("CLERK_WEBHOOK_SECRET"),
        },

        RabbitURL:         getenv("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        PassEventsEnabled: envBool("PASS_EVENTS_ENABLED", true),

        Currency:         strings.ToUpper(getenv("CURRENCY", "INR")),
        ClaimTTL:         envDur("CLAIM_TTL", 48*time.Hour),
        ClaimAutoApprove: envBool("CLAIM_AUTO_APPROVE", true),
        CORSOrigins:      splitList(getenv("CORS_ORIGINS", "*")),
    }
    if cfg.KonfHub.AllowUnsigned && cfg.Env == "prod" {
        e = append(e, "KONFHUB_ALLOW_UNSIGNED_WEBHOOKS must not be set in prod")
    }
    return cfg, e.err()
}

type envErrors []string

func (e *envErrors) must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        *e = append(*e, "missing required env var: "+key)
    }
    return v
}

func (e *envErrors) mustInt(key string) int {
    s := e.must(key)
    if s == "" {
        return 0
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        *e = append(*e, fmt.Sprintf("invalid int for %s: %q", key, s))
    }
    return n
}

func (e envErrors) err() error {
    if len(e) == 0 {
        return nil
    }
    return fmt.Errorf("config: %s", strings.Join(e, "; "))
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
