package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chain   ChainConfig   `yaml:"chain"`
	NATS    NATSConfig    `yaml:"nats"`
	CORS    CORSConfig    `yaml:"cors"`
	Auth    AuthConfig    `yaml:"auth"`
	Trading TradingConfig `yaml:"trading"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ChainConfig target chain and pool contract configuration
type ChainConfig struct {
	ChainID int64  `yaml:"chainId"`
	Name    string `yaml:"name"`

	// RPCEndpoints[0] is the primary transport, RPCEndpoints[1] the fallback.
	// The ledger client sticks to the fallback for the rest of the session
	// once the primary fails.
	RPCEndpoints []string `yaml:"rpcEndpoints"`

	PoolContract    string `yaml:"poolContract"`
	StableToken     string `yaml:"stableToken"`
	GovernanceToken string `yaml:"governanceToken"`

	// Operator key used to sign and submit approvals and pool transactions
	// (hex format, without 0x prefix).
	PrivateKey string `yaml:"privateKey"`

	GasLimit              uint64 `yaml:"gasLimit"`              // 0 = estimate per call
	ReceiptTimeoutSeconds int    `yaml:"receiptTimeoutSeconds"` // wait-for-mined budget
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AuthConfig bearer-token protection for the transaction endpoints
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwtSecret"`
}

// TradingConfig quote and execution tuning
type TradingConfig struct {
	SlippageBps             int64 `yaml:"slippageBps"`             // default 50 (0.5%)
	StatePollIntervalSecond int   `yaml:"statePollIntervalSecond"` // protocol state ticker
}

// AppConfig global configuration instance
var AppConfig *Config

// LoadConfig loads configuration from a YAML file with environment overrides.
// An empty path falls back to config.yaml, preferring config.local.yaml when
// one exists next to it.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv overrides configuration from environment variables
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if primary := os.Getenv("RPC_PRIMARY"); primary != "" {
		if len(config.Chain.RPCEndpoints) == 0 {
			config.Chain.RPCEndpoints = []string{primary}
		} else {
			config.Chain.RPCEndpoints[0] = primary
		}
	}
	if fallback := os.Getenv("RPC_FALLBACK"); fallback != "" {
		if len(config.Chain.RPCEndpoints) < 2 {
			config.Chain.RPCEndpoints = append(config.Chain.RPCEndpoints, fallback)
		} else {
			config.Chain.RPCEndpoints[1] = fallback
		}
	}
	if key := os.Getenv("OPERATOR_PRIVATE_KEY"); key != "" {
		config.Chain.PrivateKey = key
	}
	if pool := os.Getenv("POOL_CONTRACT"); pool != "" {
		config.Chain.PoolContract = pool
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
		config.Auth.Enabled = true
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		config.CORS.AllowedOrigins = config.CORS.AllowedOrigins[:0]
		for _, o := range parts {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Trading.SlippageBps == 0 {
		config.Trading.SlippageBps = 50
	}
	if config.Trading.StatePollIntervalSecond == 0 {
		config.Trading.StatePollIntervalSecond = 60
	}
	if config.Chain.ReceiptTimeoutSeconds == 0 {
		config.Chain.ReceiptTimeoutSeconds = 180
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "stablemint"
	}
}

func validate(config *Config) error {
	if len(config.Chain.RPCEndpoints) == 0 {
		return fmt.Errorf("chain.rpcEndpoints must contain at least a primary endpoint")
	}
	if config.Chain.PoolContract == "" {
		return fmt.Errorf("chain.poolContract is required")
	}
	if !isHexAddress(config.Chain.PoolContract) {
		return fmt.Errorf("chain.poolContract is not a valid address: %s", config.Chain.PoolContract)
	}
	if config.Chain.StableToken != "" && !isHexAddress(config.Chain.StableToken) {
		return fmt.Errorf("chain.stableToken is not a valid address: %s", config.Chain.StableToken)
	}
	if config.Chain.GovernanceToken != "" && !isHexAddress(config.Chain.GovernanceToken) {
		return fmt.Errorf("chain.governanceToken is not a valid address: %s", config.Chain.GovernanceToken)
	}
	if config.Auth.Enabled && config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required when auth is enabled")
	}
	if config.Trading.SlippageBps < 0 || config.Trading.SlippageBps >= 10000 {
		return fmt.Errorf("trading.slippageBps out of range: %d", config.Trading.SlippageBps)
	}
	return nil
}

// isHexAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
// Kept local so the config package stays free of go-ethereum imports.
func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	s = s[2:]
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// PrimaryEndpoint returns the primary RPC endpoint.
func (c *ChainConfig) PrimaryEndpoint() string {
	return c.RPCEndpoints[0]
}

// FallbackEndpoint returns the fallback RPC endpoint, or "" when none is
// configured.
func (c *ChainConfig) FallbackEndpoint() string {
	if len(c.RPCEndpoints) < 2 {
		return ""
	}
	return c.RPCEndpoints[1]
}
