package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
	"github.com/yolodolo42/scwkeyring/internal/ui"
)

var accountChainID string

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage smart contract accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Derive a new smart contract account for the root signer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runAccountCreate(ctx, app, cmd.OutOrStdout(), args[0], accountChainID)
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runAccountList(ctx, app, cmd.OutOrStdout())
		})
	},
}

var accountRenameCmd = &cobra.Command{
	Use:   "rename <account> <name>",
	Short: "Rename an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runAccountRename(ctx, app, cmd.OutOrStdout(), args[0], args[1])
		})
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <account>",
	Short: "Remove an account from the keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runAccountDelete(ctx, app, cmd.OutOrStdout(), args[0])
		})
	},
}

func init() {
	accountCreateCmd.Flags().StringVar(&accountChainID, "chain-id", "", "Chain to derive the account on (defaults to the active chain)")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRenameCmd)
	accountCmd.AddCommand(accountDeleteCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountCreate(ctx context.Context, app *App, w io.Writer, name, chainID string) error {
	options := map[string]any{}
	if chainID != "" {
		options["chainId"] = chainID
	}
	result, err := call(ctx, app, "keyring_createAccount", map[string]any{"name": name, "options": options})
	if err != nil {
		return err
	}
	acct := result.(keyring.Account)
	fmt.Fprintln(w, ui.Success(fmt.Sprintf("Created %s", acct.Name)))
	fmt.Fprintf(w, "  ID:      %s\n", acct.ID)
	fmt.Fprintf(w, "  Address: %s\n", acct.Address)
	return nil
}

func runAccountList(ctx context.Context, app *App, w io.Writer) error {
	result, err := call(ctx, app, "keyring_listAccounts", nil)
	if err != nil {
		return err
	}
	accounts := result.([]keyring.Account)
	if len(accounts) == 0 {
		fmt.Fprintln(w, ui.DimStyle.Render("No accounts. Create one with: scwkeyring account create <name>"))
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		chainID := ""
		if v, ok := a.Options["chainId"]; ok {
			chainID = fmt.Sprint(v)
		}
		rows = append(rows, []string{a.Name, a.Address, chainID, a.ID})
	}
	fmt.Fprintln(w, ui.Table([]string{"Name", "Address", "Chain", "ID"}, rows))
	return nil
}

func runAccountRename(ctx context.Context, app *App, w io.Writer, ref, name string) error {
	acct, err := resolveAccount(app, ref)
	if err != nil {
		return err
	}
	acct.Name = name
	if _, err := call(ctx, app, "keyring_updateAccount", map[string]any{"account": acct}); err != nil {
		return err
	}
	fmt.Fprintln(w, ui.Success(fmt.Sprintf("Renamed %s to %s", acct.ID, name)))
	return nil
}

func runAccountDelete(ctx context.Context, app *App, w io.Writer, ref string) error {
	acct, err := resolveAccount(app, ref)
	if err != nil {
		return err
	}
	if _, err := call(ctx, app, "keyring_deleteAccount", map[string]any{"id": acct.ID}); err != nil {
		return err
	}
	fmt.Fprintln(w, ui.Success(fmt.Sprintf("Deleted %s (%s)", acct.Name, acct.Address)))
	return nil
}

// resolveAccount finds an account by id, address or name, in that order.
func resolveAccount(app *App, ref string) (keyring.Account, error) {
	if acct, err := app.Keyring.GetAccount(ref); err == nil {
		return acct, nil
	}
	accounts := app.Keyring.ListAccounts()
	if common.IsHexAddress(ref) {
		for _, a := range accounts {
			if strings.EqualFold(a.Address, ref) {
				return a, nil
			}
		}
	}
	for _, a := range accounts {
		if a.Name == ref {
			return a, nil
		}
	}
	return keyring.Account{}, errs.New(errs.KindNotFound, "account %q not found", ref)
}
