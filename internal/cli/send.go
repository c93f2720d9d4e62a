package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
	"github.com/yolodolo42/scwkeyring/internal/ui"
)

type sendOptions struct {
	From  string
	To    string
	Value string
	Data  string
	Chain string
}

var sendOpts sendOptions

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a sponsored transaction from a smart contract account",
	Long: `Send builds a user operation for the transaction, has it priced and
sponsored by the bundler's paymaster, signs it with the root key and submits
it. The printed hash is the user operation hash, not a transaction hash.`,
	Example: `  scwkeyring send --from alice --to 0x000000000000000000000000000000000000dEaD --value 0x0`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runSend(ctx, app, cmd.OutOrStdout(), sendOpts)
		})
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendOpts.From, "from", "", "Sending account (name, id or address)")
	sendCmd.Flags().StringVar(&sendOpts.To, "to", "", "Recipient address")
	sendCmd.Flags().StringVar(&sendOpts.Value, "value", "0x0", "Value in wei (decimal or hex)")
	sendCmd.Flags().StringVar(&sendOpts.Data, "data", "", "Call data (hex)")
	sendCmd.Flags().StringVar(&sendOpts.Chain, "chain-id", "", "Chain to send on (defaults to the account's chain, then the active chain)")
	_ = sendCmd.MarkFlagRequired("from")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}

func runSend(ctx context.Context, app *App, w io.Writer, opts sendOptions) error {
	acct, err := resolveAccount(app, opts.From)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(opts.To) {
		return errs.New(errs.KindInvalidParams, "invalid recipient address %q", opts.To)
	}

	chainID, err := sendChain(app, acct, opts.Chain)
	if err != nil {
		return err
	}

	tx := map[string]string{"to": opts.To, "value": opts.Value}
	if opts.Data != "" {
		tx["data"] = opts.Data
	}
	params, err := json.Marshal([]any{acct.Address, tx})
	if err != nil {
		return err
	}

	result, err := call(ctx, app, "keyring_submitRequest", keyring.Request{
		ID:      uuid.NewString(),
		Scope:   fmt.Sprintf("eip155:%d", chainID),
		Account: acct.ID,
		Request: keyring.RPCRequest{Method: "eth_sendTransaction", Params: params},
	})
	if err != nil {
		return err
	}
	resp := result.(keyring.SubmitResponse)
	fmt.Fprintln(w, ui.Success("User operation submitted"))
	fmt.Fprintf(w, "  Chain:      %d\n", chainID)
	fmt.Fprintf(w, "  Sender:     %s\n", acct.Address)
	fmt.Fprintf(w, "  UserOpHash: %s\n", resp.Result)
	return nil
}

// sendChain picks the explicit chain, then the account's chainId option,
// then the active chain.
func sendChain(app *App, acct keyring.Account, explicit string) (uint64, error) {
	if explicit != "" {
		id, err := chain.ParseChainID(explicit)
		if err != nil {
			return 0, errs.Wrap(errs.KindInvalidParams, err, "invalid chain")
		}
		return id, nil
	}
	if v, ok := acct.Options["chainId"]; ok {
		switch t := v.(type) {
		case string:
			if id, err := chain.ParseChainID(t); err == nil {
				return id, nil
			}
		case float64:
			if t > 0 {
				return uint64(t), nil
			}
		}
	}
	return app.Keyring.DefaultChainID(), nil
}
