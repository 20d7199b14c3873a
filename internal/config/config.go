package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr          string
	MongoURI          string
	MongoDB           string
	RedisAddr         string
	KafkaBrokers      []string
	ServiceName       string
	StreamingDisabled bool

	// client side (orderctl)
	APIBaseURL   string
	ClientDBPath string
}

func Load() Config {
	return Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8081"),
		MongoURI:          getenv("MONGO_URI", "mongodb://mongo:27017"),
		MongoDB:           getenv("MONGO_DB", "menuorders"),
		RedisAddr:         getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers:      splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ServiceName:       getenv("SERVICE_NAME", "order-api"),
		StreamingDisabled: isTrue(os.Getenv("STREAMING_DISABLED")),
		APIBaseURL:        getenv("API_BASE_URL", "http://localhost:8081"),
		ClientDBPath:      getenv("CLIENT_DB_PATH", "orderctl.db"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// STREAMING_DISABLED=1 on platforms that cannot hold long-lived connections
// (serverless); the stream endpoint then answers 501 and clients poll.
func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
