package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Settings holds all configuration for the prediction publishing pipeline
type Settings struct {
	// Core Identity
	ServiceID string

	// Ethereum RPC Configuration
	NetworkURL     string // JSON-RPC endpoint for the ledger network
	ChainID        int64
	ContractAddr   string         // SuperPage prediction ledger contract address
	LedgerContract common.Address // Parsed contract address
	PrivateKey     string         // Hex-encoded signing key (no 0x prefix)

	// Transaction Submission
	GasBufferPercent    int           // Buffer added to gas estimates
	MaxBroadcastRetries int           // Same-nonce send retries before giving up
	BroadcastRetryDelay time.Duration // Delay between send retries
	BalanceCheckEnabled bool          // Skip balance pre-check for testing

	// Confirmation Tracking
	ConfirmationDepth   uint64        // Blocks after inclusion before confirmed
	ConfirmationTimeout time.Duration // Hard deadline before a tx is dropped
	PollInterval        time.Duration // Initial receipt poll interval
	MaxPollInterval     time.Duration // Backoff cap for receipt polling

	// Redis Configuration (transaction handle store)
	RedisHost     string
	RedisPort     string
	RedisDB       int
	RedisPassword string
	HandleTTL     time.Duration // How long terminal handles remain queryable

	// API Configuration
	APIHost string
	APIPort int

	// Monitoring & Debugging
	MetricsEnabled bool
	LogLevel       string
	DebugMode      bool

	// Performance Tuning
	ContractQueryTimeout time.Duration
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	SettingsObj = &Settings{
		// Core Identity
		ServiceID: getEnv("SERVICE_ID", "superpage-publisher-1"),

		// Ethereum RPC Configuration
		NetworkURL:   getEnv("BLOCKCHAIN_NETWORK_URL", "http://localhost:8545"),
		ChainID:      int64(getEnvAsInt("CHAIN_ID", 11155111)),
		ContractAddr: getEnv("SUPERPAGE_CONTRACT_ADDRESS", ""),
		PrivateKey:   getEnv("BLOCKCHAIN_PRIVATE_KEY", ""),

		// Transaction Submission
		GasBufferPercent:    getEnvAsInt("GAS_BUFFER_PERCENT", 20),
		MaxBroadcastRetries: getEnvAsInt("MAX_BROADCAST_RETRIES", 3),
		BroadcastRetryDelay: time.Duration(getEnvAsInt("BROADCAST_RETRY_DELAY_MS", 500)) * time.Millisecond,
		BalanceCheckEnabled: getBoolEnv("BALANCE_CHECK_ENABLED", true),

		// Confirmation Tracking
		ConfirmationDepth:   uint64(getEnvAsInt("CONFIRMATION_DEPTH", 3)),
		ConfirmationTimeout: time.Duration(getEnvAsInt("CONFIRMATION_TIMEOUT_SECONDS", 300)) * time.Second,
		PollInterval:        time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 2)) * time.Second,
		MaxPollInterval:     time.Duration(getEnvAsInt("MAX_POLL_INTERVAL_SECONDS", 15)) * time.Second,

		// Redis Configuration - Read directly from env
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		HandleTTL:     time.Duration(getEnvAsInt("HANDLE_TTL_SECONDS", 3600)) * time.Second,

		// API Configuration
		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvAsInt("API_PORT", 8003),

		// Monitoring & Debugging
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getBoolEnv("DEBUG_MODE", false),

		// Performance Tuning
		ContractQueryTimeout: time.Duration(getEnvAsInt("CONTRACT_QUERY_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	// Configure logging
	configureLogging()

	// Validate configuration
	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	SettingsObj.LedgerContract = common.HexToAddress(SettingsObj.ContractAddr)

	// Log configuration summary
	logConfigSummary()

	return nil
}

// configureLogging sets up the logger based on configuration
func configureLogging() {
	// Set log level
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	// Override with debug mode
	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	// Set formatter
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

// validateConfig validates the loaded configuration
func validateConfig() error {
	if SettingsObj.ContractAddr == "" {
		return fmt.Errorf("SUPERPAGE_CONTRACT_ADDRESS is required")
	}
	if !common.IsHexAddress(SettingsObj.ContractAddr) {
		return fmt.Errorf("invalid contract address: %s", SettingsObj.ContractAddr)
	}

	if SettingsObj.PrivateKey == "" {
		return fmt.Errorf("BLOCKCHAIN_PRIVATE_KEY is required")
	}

	if SettingsObj.NetworkURL == "" {
		return fmt.Errorf("BLOCKCHAIN_NETWORK_URL is required")
	}

	if SettingsObj.ConfirmationDepth == 0 {
		return fmt.Errorf("CONFIRMATION_DEPTH must be at least 1")
	}

	if SettingsObj.PollInterval > SettingsObj.MaxPollInterval {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must not exceed MAX_POLL_INTERVAL_SECONDS")
	}

	if SettingsObj.RedisHost == "" {
		log.Warn("No Redis configured - transaction handles will be held in memory only")
	}

	return nil
}

// logConfigSummary logs a summary of the configuration
func logConfigSummary() {
	log.Info("=== Configuration Loaded ===")
	log.Infof("Service ID: %s", SettingsObj.ServiceID)
	log.Infof("Network: %s (chain %d)", SettingsObj.NetworkURL, SettingsObj.ChainID)
	log.Infof("Ledger Contract: %s", SettingsObj.ContractAddr)
	log.Infof("Confirmation: depth=%d, timeout=%v, poll=%v..%v",
		SettingsObj.ConfirmationDepth, SettingsObj.ConfirmationTimeout,
		SettingsObj.PollInterval, SettingsObj.MaxPollInterval)
	log.Infof("Submission: gas buffer=%d%%, broadcast retries=%d",
		SettingsObj.GasBufferPercent, SettingsObj.MaxBroadcastRetries)

	if SettingsObj.RedisHost != "" {
		log.Infof("Redis: %s:%s (DB %d), handle TTL %v",
			SettingsObj.RedisHost, SettingsObj.RedisPort, SettingsObj.RedisDB, SettingsObj.HandleTTL)
	}

	log.Infof("API: %s:%d (metrics=%v)", SettingsObj.APIHost, SettingsObj.APIPort, SettingsObj.MetricsEnabled)
	log.Info("============================")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
