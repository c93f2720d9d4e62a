package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/state"
	"github.com/yolodolo42/scwkeyring/internal/testutil"
)

func loadFile(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := testutil.WriteFile(t, "config.yaml", yaml)

	v := viper.New()
	require.NoError(t, Init(v, path))
	return Load(v)
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		cfg, err := Load(v)
		require.NoError(t, err)

		assert.Equal(t, uint64(0x14a33), cfg.ActiveChainID())
		assert.Equal(t, state.BackendFile, cfg.State.Backend)
		assert.Equal(t, "https://api.pimlico.io/v1", cfg.Bundler.BaseURL)
		assert.Equal(t, 15*time.Second, cfg.Bundler.Timeout)
		assert.Equal(t, 30*time.Second, cfg.Bundler.SubmitTimeout)
		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.True(t, cfg.Journal.Enabled)
		assert.Equal(t, filepath.Join(cfg.DataDir, "state.json"), cfg.StatePath())
		assert.Equal(t, 1<<18, cfg.ScryptParams().N, "standard scrypt")
	})

	t.Run("file values", func(t *testing.T) {
		cfg, err := loadFile(t, `
data_dir: /tmp/kr
chain: 84532
log:
  level: debug
  format: json
signer:
  light_scrypt: true
state:
  backend: sqlite
bundler:
  api_key: pim-key
  timeout: 5s
  submit_timeout: 1m
retry:
  max_attempts: 5
  initial_interval: 100ms
chains:
  - chain_id: 31337
    name: Anvil
    rpc_url: http://127.0.0.1:8545
    bundler_namespace: anvil
    entry_point: "0x0000000000000000000000000000000000000007"
`)
		require.NoError(t, err)

		assert.Equal(t, uint64(84532), cfg.ActiveChainID())
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "/tmp/kr/state.db", cfg.StatePath())
		assert.Equal(t, "pim-key", cfg.BundlerConfig().APIKey)
		assert.Equal(t, 5*time.Second, cfg.BundlerConfig().Timeout)
		assert.Equal(t, time.Minute, cfg.BundlerConfig().SubmitTimeout)
		assert.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
		assert.Equal(t, 100*time.Millisecond, cfg.RetryPolicy().InitialInterval)
		assert.Equal(t, 1<<12, cfg.ScryptParams().N)

		overrides, err := cfg.ChainOverrides()
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.Equal(t, common.HexToAddress("0x07"), overrides[0].EntryPoint)
		assert.Equal(t, common.Address{}, overrides[0].AccountFactory)

		reg, err := chain.NewRegistry(overrides...)
		require.NoError(t, err)
		anvil, err := reg.Lookup(31337)
		require.NoError(t, err)
		assert.Equal(t, chain.DefaultAccountFactory, anvil.AccountFactory)
	})

	t.Run("env overrides", func(t *testing.T) {
		testutil.SetEnv(t, "SCWKEYRING_BUNDLER_API_KEY", "from-env")
		testutil.SetEnv(t, "SCWKEYRING_STATE_BACKEND", "memory")
		testutil.SetEnv(t, "SCWKEYRING_CHAIN", "eip155:11155111")

		cfg, err := loadFile(t, "bundler:\n  api_key: from-file\n")
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Bundler.APIKey)
		assert.Equal(t, state.BackendMemory, cfg.State.Backend)
		assert.Equal(t, uint64(11155111), cfg.ActiveChainID())
	})

	t.Run("unset env falls back to file", func(t *testing.T) {
		testutil.UnsetEnv(t, "SCWKEYRING_BUNDLER_API_KEY")
		testutil.UnsetEnv(t, "SCWKEYRING_CHAIN")

		cfg, err := loadFile(t, "chain: 84532\nbundler:\n  api_key: from-file\n")
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Bundler.APIKey)
		assert.Equal(t, uint64(84532), cfg.ActiveChainID())
	})

	t.Run("missing default file is fine", func(t *testing.T) {
		testutil.SetEnv(t, "HOME", testutil.TempDir(t))
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(testutil.TempDir(t)))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		v := viper.New()
		require.NoError(t, Init(v, ""))
		_, err = Load(v)
		require.NoError(t, err)
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		v := viper.New()
		assert.Error(t, Init(v, filepath.Join(testutil.TempDir(t), "nope.yaml")))
	})
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := Load(v)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.State.Backend = "etcd" }, "unknown backend"},
		{"redis without addr", func(c *Config) { c.State.Backend = "redis"; c.State.RedisAddr = "" }, "redis_addr"},
		{"zero bundler timeout", func(c *Config) { c.Bundler.Timeout = 0 }, "bundler.timeout"},
		{"negative submit timeout", func(c *Config) { c.Bundler.SubmitTimeout = -time.Second }, "bundler.submit_timeout"},
		{"zero call timeout", func(c *Config) { c.ChainCallTimeout = 0 }, "chain_call_timeout"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"bad chain", func(c *Config) { c.Chain = "solana:mainnet" }, "chain"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"override without id", func(c *Config) { c.Chains = []ChainOverride{{Name: "x"}} }, "chain_id"},
		{"override bad address", func(c *Config) {
			c.Chains = []ChainOverride{{ChainID: 5, AccountFactory: "0xnope"}}
		}, "account_factory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
