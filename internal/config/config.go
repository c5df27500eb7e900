// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultGreeting seeds an empty conversation history. Deployments override it
// via GREETING_TEXT to match the persona's voice.
const DefaultGreeting = "Hi, I'm the interview agent for this persona. " +
	"Ask me about their work, process, or experience and I'll answer in context. " +
	"What brings you here today?"

// DefaultOutOfScopeNotice is shown when the API blocks a question without
// supplying a reason of its own.
const DefaultOutOfScopeNotice = "This service only answers questions about the persona's career and work. " +
	"Please rephrase your question in that context."

// DefaultRetryNotice is appended to the conversation when the answer call fails.
const DefaultRetryNotice = "Something went wrong while fetching the answer. Please try again in a moment."

// Config holds all application configuration.
type Config struct {
	Port            string
	APIBaseURL      string
	DBPath          string
	FrontendURL     string
	QuotaTotal      int
	RevealInterval  time.Duration
	RequestTimeout  time.Duration
	GreetingText    string
	OutOfScopeText  string
	RetryNoticeText string
	// QuotaResetOnVisitorEdit controls whether editing visitor info within an
	// existing session resets the question quota. Deployments disagree on this,
	// so it is an explicit switch rather than a guess.
	QuotaResetOnVisitorEdit bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		APIBaseURL:              getEnv("API_BASE_URL", "http://localhost:8000/api"),
		DBPath:                  getEnv("DB_PATH", "./data/console.db"),
		FrontendURL:             getEnv("FRONTEND_URL", ""),
		QuotaTotal:              getEnvInt("QUOTA_TOTAL", 3),
		RevealInterval:          getEnvDuration("REVEAL_INTERVAL", 55*time.Millisecond),
		RequestTimeout:          getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		GreetingText:            getEnv("GREETING_TEXT", DefaultGreeting),
		OutOfScopeText:          getEnv("OUT_OF_SCOPE_TEXT", DefaultOutOfScopeNotice),
		RetryNoticeText:         getEnv("RETRY_NOTICE_TEXT", DefaultRetryNotice),
		QuotaResetOnVisitorEdit: getEnvBool("QUOTA_RESET_ON_VISITOR_EDIT", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.QuotaTotal <= 0 {
		return fmt.Errorf("QUOTA_TOTAL must be > 0")
	}
	if c.RevealInterval <= 0 {
		return fmt.Errorf("REVEAL_INTERVAL must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
