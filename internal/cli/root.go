package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/scwkeyring/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "scwkeyring",
		Short: "ERC-4337 smart account signing keyring",
		Long: `scwkeyring manages one root signer and the ERC-4337 smart contract
accounts it owns across EVM chains.

Transactions are turned into user operations, priced and sponsored by the
bundler's paymaster, signed by the root key and submitted to the bundler.`,
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scwkeyring/config.yaml)")
	rootCmd.PersistentFlags().String("chain", config.DefaultChainID, "Active chain id (hex, decimal or eip155:<id>)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag("chain", rootCmd.PersistentFlags().Lookup("chain"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if dir, err := config.DefaultDataDir(); err == nil && cfgFile == "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}
	}
	cobra.CheckErr(config.Init(viper.GetViper(), cfgFile))
}
