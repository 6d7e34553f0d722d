// Package config loads ledgerd settings from the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/sealedauction/core"
)

type Config struct {
	// VsockPort is used inside an enclave. TCPAddr takes precedence when set.
	VsockPort  uint32
	TCPAddr    string
	MaxWorkers int

	// HTTPAddr enables the HTTP surface when non-empty.
	HTTPAddr    string
	DatabaseURL string
	// GatewaySealKey seals the gateway's persisted ciphertext table. It is
	// required with DatabaseURL.
	GatewaySealKey []byte

	AuctionFee       decimal.Decimal
	AllowCreatorBids bool

	KafkaBrokers []string
	KafkaTopic   string

	ArchiveBucket string
	ArchivePrefix string

	JWTHMACSecret    string
	JWTPublicKeyFile string
}

const (
	defaultVsockPort  = 5000
	defaultKafkaTopic = "sealedauction.events"
	sealKeySize       = 32
)

func Load() (Config, error) {
	maxWorkers, err := getRequiredInt("LEDGERD_MAX_WORKERS")
	if err != nil {
		return Config{}, fmt.Errorf("failed to get max workers config: %w", err)
	}
	if maxWorkers <= 0 {
		return Config{}, fmt.Errorf("LEDGERD_MAX_WORKERS must be positive, got %d", maxWorkers)
	}

	fee, err := getDecimal("AUCTION_FEE", core.DefaultAuctionFee)
	if err != nil {
		return Config{}, err
	}

	sealKey, err := getKey("GATEWAY_SEAL_KEY")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		VsockPort:        uint32(getInt("LEDGERD_VSOCK_PORT", defaultVsockPort)),
		TCPAddr:          os.Getenv("LEDGERD_TCP_ADDR"),
		MaxWorkers:       maxWorkers,
		HTTPAddr:         os.Getenv("LEDGERD_HTTP_ADDR"),
		DatabaseURL:      firstNonEmpty(os.Getenv("LEDGERD_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		GatewaySealKey:   sealKey,
		AuctionFee:       fee,
		AllowCreatorBids: getBool("ALLOW_CREATOR_BIDS", false),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:    os.Getenv("ARCHIVE_PREFIX"),
		JWTHMACSecret:    os.Getenv("JWT_HMAC_SECRET"),
		JWTPublicKeyFile: os.Getenv("JWT_PUBLIC_KEY_FILE"),
	}

	if cfg.HTTPAddr != "" && cfg.JWTHMACSecret == "" && cfg.JWTPublicKeyFile == "" {
		return Config{}, fmt.Errorf("JWT_HMAC_SECRET or JWT_PUBLIC_KEY_FILE required when LEDGERD_HTTP_ADDR is set")
	}
	if cfg.DatabaseURL != "" && cfg.GatewaySealKey == nil {
		return Config{}, fmt.Errorf("GATEWAY_SEAL_KEY required when a database URL is set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := core.ParseFee(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s: %s (must be a non-negative decimal)", key, v)
	}
	return d, nil
}

func getRequiredInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getKey reads a base64 encoded 32-byte key. An unset variable yields nil.
func getKey(key string) ([]byte, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: must be base64", key)
	}
	if len(b) != sealKeySize {
		return nil, fmt.Errorf("invalid value for %s: must decode to %d bytes, got %d", key, sealKeySize, len(b))
	}
	return b, nil
}
