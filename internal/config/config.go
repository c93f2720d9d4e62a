// Package config loads keyring settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/yolodolo42/scwkeyring/internal/bundler"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/retry"
	"github.com/yolodolo42/scwkeyring/internal/server"
	"github.com/yolodolo42/scwkeyring/internal/state"
	"github.com/yolodolo42/scwkeyring/internal/userop"
	"github.com/yolodolo42/scwkeyring/internal/wallet"
)

const (
	EnvPrefix      = "SCWKEYRING"
	configName     = "config"
	dataDirName    = ".scwkeyring"
	DefaultChainID = "0x14a33"
)

// Config is the full keyring configuration.
type Config struct {
	DataDir          string          `mapstructure:"data_dir"`
	Chain            string          `mapstructure:"chain"`
	ChainCallTimeout time.Duration   `mapstructure:"chain_call_timeout"`
	Log              LogConfig       `mapstructure:"log"`
	Signer           SignerConfig    `mapstructure:"signer"`
	State            StateConfig     `mapstructure:"state"`
	Bundler          BundlerConfig   `mapstructure:"bundler"`
	Retry            RetryConfig     `mapstructure:"retry"`
	Server           ServerConfig    `mapstructure:"server"`
	Journal          JournalConfig   `mapstructure:"journal"`
	Chains           []ChainOverride `mapstructure:"chains"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type SignerConfig struct {
	Passphrase  string `mapstructure:"passphrase"`
	LightScrypt bool   `mapstructure:"light_scrypt"`
}

type StateConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

type BundlerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	APIKey  string `mapstructure:"api_key"`
}

type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ChainOverride replaces fields of a default chain or adds a new one.
type ChainOverride struct {
	ChainID          uint64 `mapstructure:"chain_id"`
	Name             string `mapstructure:"name"`
	RPCURL           string `mapstructure:"rpc_url"`
	AccountFactory   string `mapstructure:"account_factory"`
	EntryPoint       string `mapstructure:"entry_point"`
	BundlerNamespace string `mapstructure:"bundler_namespace"`
	IsTestnet        bool   `mapstructure:"is_testnet"`
}

// DefaultDataDir is $HOME/.scwkeyring.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dataDirName), nil
}

// SetDefaults registers every key so that env overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = dataDirName
	}
	policy := retry.DefaultPolicy()

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("chain", DefaultChainID)
	v.SetDefault("chain_call_timeout", userop.DefaultCallTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("signer.passphrase", "")
	v.SetDefault("signer.light_scrypt", false)
	v.SetDefault("state.backend", state.BackendFile)
	v.SetDefault("state.path", "")
	v.SetDefault("state.redis_addr", "127.0.0.1:6379")
	v.SetDefault("state.redis_key", state.DefaultRedisKey)
	v.SetDefault("bundler.base_url", bundler.DefaultBaseURL)
	v.SetDefault("bundler.api_key", "")
	v.SetDefault("bundler.timeout", bundler.DefaultTimeout)
	v.SetDefault("bundler.submit_timeout", bundler.DefaultSubmitTimeout)
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.initial_interval", policy.InitialInterval)
	v.SetDefault("retry.max_interval", policy.MaxInterval)
	v.SetDefault("server.address", server.DefaultAddress)
	v.SetDefault("server.api_key", "")
	v.SetDefault("journal.enabled", true)
}

// Init points v at cfgFile, or at config.yaml in the data dir or the
// working directory, and enables SCWKEYRING_* env overrides. A missing
// config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir, err := DefaultDataDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(configName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the keyring cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if _, err := chain.ParseChainID(c.Chain); err != nil {
		return fmt.Errorf("chain: %w", err)
	}

	switch c.State.Backend {
	case state.BackendFile, state.BackendSQLite, state.BackendMemory:
	case state.BackendRedis:
		if c.State.RedisAddr == "" {
			return errors.New("state.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("state.backend: unknown backend %q", c.State.Backend)
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}

	for key, d := range map[string]time.Duration{
		"chain_call_timeout":     c.ChainCallTimeout,
		"bundler.timeout":        c.Bundler.Timeout,
		"bundler.submit_timeout": c.Bundler.SubmitTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialInterval < 0 || c.Retry.MaxInterval < 0 {
		return errors.New("retry intervals must not be negative")
	}
	if strings.TrimSpace(c.Bundler.BaseURL) == "" {
		return errors.New("bundler.base_url is required")
	}

	if _, err := c.ChainOverrides(); err != nil {
		return err
	}
	return nil
}

// ActiveChainID is the parsed "chain" setting.
func (c *Config) ActiveChainID() uint64 {
	id, _ := chain.ParseChainID(c.Chain)
	return id
}

// ChainOverrides converts the "chains" list for chain.NewRegistry.
func (c *Config) ChainOverrides() ([]chain.ChainConfig, error) {
	out := make([]chain.ChainConfig, 0, len(c.Chains))
	for i, o := range c.Chains {
		if o.ChainID == 0 {
			return nil, fmt.Errorf("chains[%d]: chain_id is required", i)
		}
		cc := chain.ChainConfig{
			ChainID:          o.ChainID,
			Name:             o.Name,
			RPCURL:           o.RPCURL,
			BundlerNamespace: o.BundlerNamespace,
			IsTestnet:        o.IsTestnet,
		}
		var err error
		if cc.AccountFactory, err = parseAddress(o.AccountFactory); err != nil {
			return nil, fmt.Errorf("chains[%d].account_factory: %w", i, err)
		}
		if cc.EntryPoint, err = parseAddress(o.EntryPoint); err != nil {
			return nil, fmt.Errorf("chains[%d].entry_point: %w", i, err)
		}
		out = append(out, cc)
	}
	return out, nil
}

// parseAddress maps "" to the zero address, which the registry treats as unset.
func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// StatePath is state.path, or the backend's file under data_dir.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	switch c.State.Backend {
	case state.BackendSQLite:
		return filepath.Join(c.DataDir, "state.db")
	default:
		return filepath.Join(c.DataDir, state.StateFileName)
	}
}

func (c *Config) StateOptions() state.Options {
	return state.Options{
		Backend:   c.State.Backend,
		Path:      c.StatePath(),
		RedisAddr: c.State.RedisAddr,
		RedisKey:  c.State.RedisKey,
	}
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
	}
}

func (c *Config) BundlerConfig() bundler.Config {
	return bundler.Config{
		BaseURL:       c.Bundler.BaseURL,
		APIKey:        c.Bundler.APIKey,
		Timeout:       c.Bundler.Timeout,
		SubmitTimeout: c.Bundler.SubmitTimeout,
		Retry:         c.RetryPolicy(),
	}
}

func (c *Config) ServerConfig() server.Config {
	return server.Config{Address: c.Server.Address, APIKey: c.Server.APIKey}
}

func (c *Config) ScryptParams() wallet.ScryptParams {
	if c.Signer.LightScrypt {
		return wallet.LightScrypt()
	}
	return wallet.StandardScrypt()
}
