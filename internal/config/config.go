package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"opennow/client/internal/domain"
)

// Config holds the application configuration.
type Config struct {
	Token         string
	Server        string
	Codec         domain.Codec
	DecodeTimeout time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables.
// Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	token := os.Getenv("OPENNOW_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("OPENNOW_TOKEN environment variable is required")
	}

	server := os.Getenv("OPENNOW_SERVER")
	if server == "" {
		return nil, fmt.Errorf("OPENNOW_SERVER environment variable is required")
	}

	codec := domain.CodecH265
	switch os.Getenv("OPENNOW_CODEC") {
	case "", "h265", "hevc":
		codec = domain.CodecH265
	case "h264":
		codec = domain.CodecH264
	default:
		return nil, fmt.Errorf("OPENNOW_CODEC must be h264 or h265, got %q", os.Getenv("OPENNOW_CODEC"))
	}

	timeout := 2000 * time.Millisecond
	if v := os.Getenv("OPENNOW_DECODE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("OPENNOW_DECODE_TIMEOUT_MS must be a positive integer, got %q", v)
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &Config{
		Token:         token,
		Server:        server,
		Codec:         codec,
		DecodeTimeout: timeout,
	}, nil
}
