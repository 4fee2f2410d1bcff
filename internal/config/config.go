package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendLocal    = "local"
	BackendMinIO    = "minio"

	defaultMaxUploadSize = "100MB"
	defaultIDPrefix      = "iemap"
)

// Generated ids become stored filenames.
var idPrefixPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects the blob backend and the limits applied to uploads.
type StorageConfig struct {
	Backend       string
	ContentRoot   string
	MaxUploadSize string
	// MaxUploadBytes is MaxUploadSize parsed with go-units.
	MaxUploadBytes int64
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost         string
	Port            string
	Timezone        string
	LogLevel        string
	DocumentBackend string
	IDPrefix        string
	ProbeTimeout    time.Duration
	Database        DatabaseConfig
	Mongo           MongoConfig
	MinIO           MinIOConfig
	Storage         StorageConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	maxUpload := getEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize)
	maxUploadBytes, err := units.FromHumanSize(maxUpload)
	if err != nil || maxUploadBytes <= 0 {
		maxUpload = defaultMaxUploadSize
		maxUploadBytes, _ = units.FromHumanSize(defaultMaxUploadSize)
	}

	idPrefix := getEnv("ID_PREFIX", defaultIDPrefix)
	if !idPrefixPattern.MatchString(idPrefix) {
		idPrefix = defaultIDPrefix
	}

	return &AppConfig{
		AppHost:         getEnv("APP_HOST", "localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		Timezone:        getEnv("APP_TIMEZONE", "UTC"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DocumentBackend: getEnv("DOCUMENT_BACKEND", BackendMongo),
		IDPrefix:        idPrefix,
		ProbeTimeout:    time.Duration(getEnvInt("PROBE_TIMEOUT_MS", 3000)) * time.Millisecond,
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Mongo: MongoConfig{
			// "uri" is the key older deployments put in their .env files.
			URI:        getEnv("MONGO_URI", getEnv("uri", "")),
			Database:   getEnv("MONGO_DATABASE", "test_db"),
			Collection: getEnv("MONGO_COLLECTION", "iemap_data"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Storage: StorageConfig{
			Backend:        getEnv("BLOB_BACKEND", BackendLocal),
			ContentRoot:    getEnv("CONTENT_ROOT", "uploaded_data"),
			MaxUploadSize:  maxUpload,
			MaxUploadBytes: maxUploadBytes,
		},
	}
}

// Location resolves Timezone, falling back to UTC for unknown zone names.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
