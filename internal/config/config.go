package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr             string
	FirestoreProject string
	TokenSecret      string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	JournalDir       string
	CORSOrigin       string
	DashboardURL     string
	PageSize         int
	MeiliURL         string
	MeiliMasterKey   string
	// Blob storage (S3-compatible)
	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobUseSSL    bool
	ContentURLTTL time.Duration
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	OfficeEmail  string
	// Redis Configuration
	RedisURL string
	// Seed admin account, created on first boot when no staff exist
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func Load() Config {
	return Config{
		Addr:             getenv("API_ADDR", ":8787"),
		FirestoreProject: getenv("FIRESTORE_PROJECT", "foreman-local"),
		TokenSecret:      getenv("FOREMAN_TOKEN_SECRET", "foreman-dev-secret"),
		AccessTTL:        time.Duration(getenvInt("FOREMAN_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:       time.Duration(getenvInt("FOREMAN_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		JournalDir:       getenv("FOREMAN_JOURNAL_DIR", "./data/journal"),
		CORSOrigin:       getenv("FOREMAN_CORS_ORIGIN", "*"),
		DashboardURL:     getenv("FOREMAN_DASHBOARD_URL", "http://localhost:3000"),
		PageSize:         getenvInt("FOREMAN_PAGE_SIZE", 25),
		MeiliURL:         getenv("MEILI_URL", "http://localhost:7700"),
		MeiliMasterKey:   getenv("MEILI_MASTER_KEY", "foreman-meili-key"),
		BlobEndpoint:     getenv("BLOB_ENDPOINT", "localhost:9000"),
		BlobAccessKey:    getenv("BLOB_ACCESS_KEY", "minioadmin"),
		BlobSecretKey:    getenv("BLOB_SECRET_KEY", "minioadmin"),
		BlobBucket:       getenv("BLOB_BUCKET", "foreman-files"),
		BlobUseSSL:       getenvBool("BLOB_USE_SSL", false),
		ContentURLTTL:    time.Duration(getenvInt("BLOB_URL_TTL_SECONDS", 3600)) * time.Second,
		// SMTP - empty by default, email disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Foreman"),
		OfficeEmail:  getenv("FOREMAN_OFFICE_EMAIL", ""),
		// Redis - preferred refresh token store; store falls back to Firestore
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		AdminEmail:    getenv("FOREMAN_ADMIN_EMAIL", "admin@foreman.local"),
		AdminPassword: getenv("FOREMAN_ADMIN_PASSWORD", "foreman-admin"),
		AdminName:     getenv("FOREMAN_ADMIN_NAME", "Administrator"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
