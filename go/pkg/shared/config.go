package shared

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// KafkaConfig holds broker and topic details.
type KafkaConfig struct {
	Brokers      string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`
	GroupID      string `envconfig:"KAFKA_GROUP" default:"breakout-default-group"`
	ProducerAcks string `envconfig:"KAFKA_ACKS" default:"all"`
	LingerMS     int    `envconfig:"KAFKA_LINGER_MS" default:"5"`
	BatchBytes   int    `envconfig:"KAFKA_BATCH_BYTES" default:"1048576"` // 1MB
}

func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"localhost:9092"}
	}
	return out
}

// PostgresConfig holds DB connection details for the journal.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Database string `envconfig:"POSTGRES_DB" default:"trading"`
	User     string `envconfig:"POSTGRES_USER" default:"trader"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"trader"`
	PoolMax  int    `envconfig:"PG_POOL_MAX" default:"8"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Port int `envconfig:"METRICS_PORT" default:"9000"`
}

// KiteConfig holds brokerage credentials and venue selection.
type KiteConfig struct {
	APIKey      string `envconfig:"KITE_API_KEY"`
	AccessToken string `envconfig:"KITE_ACCESS_TOKEN"`
	Exchange    string `envconfig:"KITE_EXCHANGE" default:"NSE"`
	FutExchange string `envconfig:"KITE_FUT_EXCHANGE" default:"NFO"`
	Product     string `envconfig:"KITE_PRODUCT" default:"MIS"`
}

// SessionConfig carries the trading-day bounds. Futures extend the
// equity window by FutureOffsetMin on each side.
type SessionConfig struct {
	StartHHMM       int `envconfig:"SESSION_START_HHMM" default:"915"`
	EndHHMM         int `envconfig:"SESSION_END_HHMM" default:"1530"`
	FutureOffsetMin int `envconfig:"SESSION_FUTURE_OFFSET_MIN" default:"15"`
}

// Load fills the given struct from environment.
func Load[T any](prefix string) (T, error) {
	var cfg T
	err := envconfig.Process(prefix, &cfg)
	return cfg, err
}
