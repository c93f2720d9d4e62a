package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/config"
	"github.com/yolodolo42/scwkeyring/internal/ui"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List supported chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runChains(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}

func runChains(w io.Writer, cfg *config.Config) error {
	overrides, err := cfg.ChainOverrides()
	if err != nil {
		return err
	}
	registry, err := chain.NewRegistry(overrides...)
	if err != nil {
		return err
	}

	active := cfg.ActiveChainID()
	rows := [][]string{}
	for _, c := range registry.List() {
		marker := ""
		if c.ChainID == active {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			fmt.Sprintf("%d", c.ChainID),
			c.Name,
			c.BundlerNamespace,
			c.EntryPoint.Hex(),
		})
	}
	fmt.Fprintln(w, ui.Table([]string{"", "Chain ID", "Name", "Bundler", "EntryPoint"}, rows))
	return nil
}
