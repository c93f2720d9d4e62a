package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/scwkeyring/internal/bundler/bundlertest"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/config"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/state"
	"github.com/yolodolo42/scwkeyring/internal/testutil"
	"github.com/yolodolo42/scwkeyring/internal/userop/useroptest"
)

type testEnv struct {
	app       *App
	cfg       *config.Config
	bundler   *bundlertest.Server
	contracts *useroptest.Contracts
}

func testConfig(t *testing.T, bundlerURL string) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	cfg.DataDir = testutil.TempDir(t)
	cfg.State.Backend = state.BackendMemory
	cfg.Signer.Passphrase = "test-passphrase"
	cfg.Signer.LightScrypt = true
	cfg.Bundler.BaseURL = bundlerURL
	cfg.Bundler.APIKey = "test"
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = time.Millisecond
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	srv := bundlertest.NewServer(t)
	cfg := testConfig(t, srv.URL)
	for _, m := range mutate {
		m(cfg)
	}

	registry, err := chain.NewRegistry()
	require.NoError(t, err)
	goerli, err := registry.Lookup(84531)
	require.NoError(t, err)
	fc := testutil.NewFakeChain()
	contracts := useroptest.Install(fc, goerli)

	app, err := NewApp(context.Background(), cfg, AppOptions{Reader: fc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return &testEnv{app: app, cfg: cfg, bundler: srv, contracts: contracts}
}

func TestNewApp(t *testing.T) {
	t.Run("wires journal and router", func(t *testing.T) {
		env := newTestEnv(t)
		assert.NotNil(t, env.app.Journal)
		assert.NotNil(t, env.app.Router)
		assert.Equal(t, uint64(84531), env.app.Keyring.DefaultChainID())
	})

	t.Run("journal disabled", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Journal.Enabled = false })
		assert.Nil(t, env.app.Journal)

		var out bytes.Buffer
		assert.Error(t, runHistory(context.Background(), env.app, &out, "", 10))
	})

	t.Run("asks for the passphrase when unset", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Signer.Passphrase = ""

		asked := 0
		app, err := NewApp(context.Background(), cfg, AppOptions{
			Reader: testutil.NewFakeChain(),
			Passphrase: func() (string, error) {
				asked++
				return "from-prompt", nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, asked)
		require.NoError(t, app.Close())
	})

	t.Run("passphrase failure aborts", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Signer.Passphrase = ""

		_, err := NewApp(context.Background(), cfg, AppOptions{
			Reader:     testutil.NewFakeChain(),
			Passphrase: func() (string, error) { return "", errNoPassphrase },
		})
		assert.ErrorIs(t, err, errNoPassphrase)
	})

	t.Run("sqlite state survives reopen", func(t *testing.T) {
		srv := bundlertest.NewServer(t)
		cfg := testConfig(t, srv.URL)
		cfg.State.Backend = state.BackendSQLite

		registry, err := chain.NewRegistry()
		require.NoError(t, err)
		goerli, err := registry.Lookup(84531)
		require.NoError(t, err)
		fc := testutil.NewFakeChain()
		useroptest.Install(fc, goerli)

		app, err := NewApp(context.Background(), cfg, AppOptions{Reader: fc})
		require.NoError(t, err)
		var out bytes.Buffer
		require.NoError(t, runAccountCreate(context.Background(), app, &out, "alice", ""))
		require.NoError(t, app.Close())

		app, err = NewApp(context.Background(), cfg, AppOptions{Reader: fc})
		require.NoError(t, err)
		defer app.Close()
		accounts := app.Keyring.ListAccounts()
		require.Len(t, accounts, 1)
		assert.Equal(t, "alice", accounts[0].Name)
	})
}

func TestAccountCommands(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var out bytes.Buffer
	require.NoError(t, runAccountList(ctx, env.app, &out))
	assert.Contains(t, out.String(), "No accounts")

	out.Reset()
	require.NoError(t, runAccountCreate(ctx, env.app, &out, "alice", ""))
	assert.Contains(t, out.String(), "Created alice")

	accounts := env.app.Keyring.ListAccounts()
	require.Len(t, accounts, 1)
	alice := accounts[0]

	t.Run("list shows accounts", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runAccountCreate(ctx, env.app, &out, "bob", "eip155:84532"))

		out.Reset()
		require.NoError(t, runAccountList(ctx, env.app, &out))
		assert.Contains(t, out.String(), "alice")
		assert.Contains(t, out.String(), alice.Address)
		assert.Contains(t, out.String(), "bob")
		assert.Contains(t, out.String(), "eip155:84532")
	})

	t.Run("duplicate name", func(t *testing.T) {
		err := runAccountCreate(ctx, env.app, &out, "alice", "")
		assert.ErrorIs(t, err, errs.DuplicateName)
	})

	t.Run("resolve by id address or name", func(t *testing.T) {
		for _, ref := range []string{alice.ID, alice.Address, "alice"} {
			got, err := resolveAccount(env.app, ref)
			require.NoError(t, err, ref)
			assert.Equal(t, alice.ID, got.ID)
		}
		_, err := resolveAccount(env.app, "carol")
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("rename", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runAccountRename(ctx, env.app, &out, "alice", "alice-2"))
		got, err := env.app.Keyring.GetAccount(alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice-2", got.Name)
		assert.Equal(t, alice.Address, got.Address)
	})

	t.Run("delete", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runAccountDelete(ctx, env.app, &out, "bob"))
		assert.Contains(t, out.String(), "Deleted bob")
		assert.Len(t, env.app.Keyring.ListAccounts(), 1)

		assert.ErrorIs(t, runAccountDelete(ctx, env.app, &out, "bob"), errs.NotFound)
	})

	t.Run("journal records events", func(t *testing.T) {
		events, err := env.app.Journal.Events(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)

		out.Reset()
		require.NoError(t, runHistory(ctx, env.app, &out, alice.ID, 10))
		assert.Contains(t, out.String(), "alice-2")
	})
}

func TestSignerCommand(t *testing.T) {
	env := newTestEnv(t)

	var out bytes.Buffer
	require.NoError(t, runSigner(env.app, &out))
	assert.Contains(t, out.String(), "No root signer")

	require.NoError(t, runAccountCreate(context.Background(), env.app, &out, "alice", ""))
	info, ok := env.app.Keyring.Signer()
	require.True(t, ok)

	out.Reset()
	require.NoError(t, runSigner(env.app, &out))
	assert.Contains(t, out.String(), info.Address)
	assert.Contains(t, out.String(), "eth_sendTransaction")
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var out bytes.Buffer
	require.NoError(t, runAccountCreate(ctx, env.app, &out, "alice", ""))
	alice := env.app.Keyring.ListAccounts()[0]
	to := "0x000000000000000000000000000000000000dEaD"

	t.Run("submits and journals", func(t *testing.T) {
		out.Reset()
		err := runSend(ctx, env.app, &out, sendOptions{From: "alice", To: to, Value: "0x10"})
		require.NoError(t, err)
		assert.Contains(t, out.String(), bundlertest.OpHash.Hex())
		assert.Equal(t, 1, env.bundler.Calls("eth_sendUserOperation"))

		op, err := env.app.Journal.Operation(ctx, 84531, bundlertest.OpHash.Hex())
		require.NoError(t, err)
		assert.Equal(t, alice.Address, op.Sender)
		assert.Equal(t, "eth_sendTransaction", op.Method)

		out.Reset()
		require.NoError(t, runHistory(ctx, env.app, &out, "", 10))
		assert.Contains(t, out.String(), bundlertest.OpHash.Hex())
	})

	t.Run("bad recipient sends nothing", func(t *testing.T) {
		before := env.bundler.Calls("eth_sendUserOperation")
		err := runSend(ctx, env.app, &out, sendOptions{From: "alice", To: "nope"})
		assert.ErrorIs(t, err, errs.InvalidParams)
		assert.Equal(t, before, env.bundler.Calls("eth_sendUserOperation"))
	})

	t.Run("unknown sender", func(t *testing.T) {
		err := runSend(ctx, env.app, &out, sendOptions{From: "carol", To: to})
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("unregistered chain", func(t *testing.T) {
		err := runSend(ctx, env.app, &out, sendOptions{From: "alice", To: to, Chain: "999"})
		assert.ErrorIs(t, err, errs.UnsupportedChain)
	})

	t.Run("paymaster refusal", func(t *testing.T) {
		env.bundler.Handle("pm_sponsorUserOperation", bundlertest.Fail(-32500, "not sponsored"))
		before := env.bundler.Calls("eth_sendUserOperation")
		err := runSend(ctx, env.app, &out, sendOptions{From: "alice", To: to})
		assert.ErrorIs(t, err, errs.SponsorshipFailed)
		assert.Equal(t, before, env.bundler.Calls("eth_sendUserOperation"))
	})
}

func TestSendChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, runAccountCreate(ctx, env.app, &out, "alice", ""))
	require.NoError(t, runAccountCreate(ctx, env.app, &out, "bob", "0x14a34"))
	alice, err := resolveAccount(env.app, "alice")
	require.NoError(t, err)
	bob, err := resolveAccount(env.app, "bob")
	require.NoError(t, err)

	tests := []struct {
		name     string
		acct     string
		explicit string
		want     uint64
	}{
		{"active chain", "alice", "", 84531},
		{"account option", "bob", "", 84532},
		{"explicit wins", "bob", "eip155:11155111", 11155111},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := alice
			if tt.acct == "bob" {
				acct = bob
			}
			got, err := sendChain(env.app, acct, tt.explicit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = sendChain(env.app, alice, "solana:mainnet")
	assert.ErrorIs(t, err, errs.InvalidParams)
}

func TestChains(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Chains = []config.ChainOverride{{
		ChainID:          31337,
		Name:             "Anvil",
		RPCURL:           "http://127.0.0.1:8545",
		BundlerNamespace: "anvil",
	}}

	var out bytes.Buffer
	require.NoError(t, runChains(&out, cfg))
	assert.Contains(t, out.String(), "Base Goerli Testnet")
	assert.Contains(t, out.String(), "84531")
	assert.Contains(t, out.String(), "Anvil")

	t.Run("new chain without rpc_url is rejected", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Chains = []config.ChainOverride{{ChainID: 31337, Name: "Anvil", BundlerNamespace: "anvil"}}

		var out bytes.Buffer
		err := runChains(&out, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rpc_url")
		assert.Empty(t, out.String())
	})
}

func TestServe(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, env.app) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCall(t *testing.T) {
	env := newTestEnv(t)
	_, err := call(context.Background(), env.app, "eth_accounts", nil)
	assert.True(t, errors.Is(err, errs.MethodNotSupported))
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"account", "chains", "history", "send", "serve", "signer"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("chain"))
	assert.NotNil(t, sendCmd.Flags().Lookup("chain-id"))
}

func TestSignerImport(t *testing.T) {
	const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	ctx := context.Background()
	env := newTestEnv(t)

	key, err := readImportKey(strings.NewReader(devKey + "\n"))
	require.NoError(t, err)
	assert.Equal(t, devKey, key)

	var out bytes.Buffer
	require.NoError(t, runSignerImport(ctx, env.app, &out, key))
	assert.Contains(t, out.String(), "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	require.NoError(t, runAccountCreate(ctx, env.app, &out, "alice", ""))
	assert.ErrorIs(t, runSignerImport(ctx, env.app, &out, devKey), errs.Unsupported)

	_, err = readImportKey(strings.NewReader(""))
	assert.Error(t, err)
}
