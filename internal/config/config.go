package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Local persistent store
	DatabaseURL string

	// Firebase (Firestore, Auth, Messaging)
	FirebaseCredentialsPath string
	FirebaseProjectID       string
	RemoteBackend           string // "firestore" or "memory"

	// Google/Gemini
	GoogleAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// openFDA drug labels
	OpenFDABaseURL string
	OpenFDAAPIKey  string

	// Timeouts
	RemoteTimeout  time.Duration
	BookingTimeout time.Duration
	LookupTimeout  time.Duration
	AITimeout      time.Duration

	// Scheduler and workers
	SchedulerInterval   time.Duration
	DoctorCacheTTL      time.Duration
	ConsultationSyncInt time.Duration
	Timezone            string

	// Booking events
	KafkaBrokers []string
	KafkaTopic   string

	// SMTP Configuration
	EnableEmail   bool
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string
}

// Load reads .env (when present) and the process environment.
func Load(log logrus.FieldLogger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("ℹ️  .env file not found, reading system environment")
	}

	cfg := &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		RemoteBackend:           getEnvWithDefault("REMOTE_BACKEND", "firestore"),

		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:   getEnvWithDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnvWithDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1"),

		OpenFDABaseURL: getEnvWithDefault("OPENFDA_BASE_URL", "https://api.fda.gov"),
		OpenFDAAPIKey:  os.Getenv("OPENFDA_API_KEY"),

		RemoteTimeout:  getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),
		BookingTimeout: getEnvDuration("BOOKING_TIMEOUT", 30*time.Second),
		LookupTimeout:  getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second),
		AITimeout:      getEnvDuration("AI_TIMEOUT", 30*time.Second),

		SchedulerInterval:   getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second),
		DoctorCacheTTL:      getEnvDuration("DOCTOR_CACHE_TTL", time.Hour),
		ConsultationSyncInt: getEnvDuration("CONSULTATION_SYNC_INTERVAL", 5*time.Minute),
		Timezone:            getEnvWithDefault("TZ_NAME", "Local"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnvWithDefault("KAFKA_TOPIC", "consultation_events"),

		EnableEmail:   getEnvBool("ENABLE_EMAIL", false),
		SMTPHost:      getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFromName:  getEnvWithDefault("SMTP_FROM_NAME", "MediFind"),
		SMTPFromEmail: getEnvWithDefault("SMTP_FROM_EMAIL", "no-reply@medifind.app"),
	}

	return cfg, nil
}

// Location resolves Timezone. An unknown zone yields time.Local along with the error.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the required settings are present and logs the optional ones
// that are missing.
func (c *Config) Validate(log logrus.FieldLogger) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.RemoteBackend {
	case "firestore":
		if c.FirebaseCredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required")
		}
	case "memory":
	default:
		return fmt.Errorf("REMOTE_BACKEND must be firestore or memory, got %q", c.RemoteBackend)
	}

	for name, d := range map[string]time.Duration{
		"REMOTE_TIMEOUT":             c.RemoteTimeout,
		"BOOKING_TIMEOUT":            c.BookingTimeout,
		"LOOKUP_TIMEOUT":             c.LookupTimeout,
		"AI_TIMEOUT":                 c.AITimeout,
		"SCHEDULER_INTERVAL":         c.SchedulerInterval,
		"DOCTOR_CACHE_TTL":           c.DoctorCacheTTL,
		"CONSULTATION_SYNC_INTERVAL": c.ConsultationSyncInt,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.GoogleAPIKey == "" {
		log.Warn("⚠️  GOOGLE_API_KEY not configured, AI answers are disabled")
	}

	if c.EnableEmail && (c.SMTPUsername == "" || c.SMTPPassword == "") {
		log.Warn("⚠️  Email enabled but SMTP credentials are not configured")
	}

	return nil
}
