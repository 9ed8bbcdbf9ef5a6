package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

type Config struct {
	ServerAddress string
	JWTSecret     string
	JWTExpiration time.Duration
	DataDir       string

	// Backend selects the remote document store.
	Backend                 string
	FirebaseProjectID       string
	FirebaseCredentialsJSON string
	MongoURI                string
	MongoDB                 string

	RegistryPath  string
	AdminCodeHash string
	WriteTimeout  time.Duration
	VerifyDelay   time.Duration

	AvatarBucket    string
	MaxUploadSizeMB int64

	RecaptchaSecret  string
	SendGridAPIKey   string
	AlertFromEmail   string
	AlertToEmail     string
	AllowedOrigins   []string
	VerifyRatePerMin int
	VerifyRateBurst  int
}

// Load reads .env (when present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiration: getDuration("JWT_EXPIRATION", 7*24*time.Hour),
		DataDir:       getEnv("DATA_DIR", "./data"),

		Backend:                 strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDB:                 getEnv("MONGO_DB", "strategia"),

		RegistryPath:  getEnv("REGISTRY_PATH", "./event.yaml"),
		AdminCodeHash: getEnv("ADMIN_CODE_HASH", ""),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 10*time.Second),
		VerifyDelay:   getDuration("VERIFY_DELAY", 800*time.Millisecond),

		AvatarBucket:    getEnv("AVATAR_BUCKET", ""),
		MaxUploadSizeMB: int64(getInt("MAX_UPLOAD_SIZE_MB", 5)),

		RecaptchaSecret:  getEnv("RECAPTCHA_SECRET", ""),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		AlertFromEmail:   getEnv("ALERT_FROM_EMAIL", ""),
		AlertToEmail:     getEnv("ALERT_TO_EMAIL", ""),
		AllowedOrigins:   getList("ALLOWED_ORIGINS", []string{"*"}),
		VerifyRatePerMin: getInt("VERIFY_RATE_PER_MIN", 10),
		VerifyRateBurst:  getInt("VERIFY_RATE_BURST", 5),
	}
}

// BindFlags lets command-line flags override the loaded values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ServerAddress, "addr", "a", c.ServerAddress, "listen address")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory for session caches")
	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, "document store: memory, firestore or mongo")
	fs.StringVarP(&c.RegistryPath, "registry", "r", c.RegistryPath, "event registry YAML")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "timeout for each remote write")
	fs.DurationVar(&c.VerifyDelay, "verify-delay", c.VerifyDelay, "artificial delay on identity checks")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
