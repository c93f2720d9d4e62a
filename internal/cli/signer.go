package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"github.com/yolodolo42/scwkeyring/internal/ui"
)

var signerCmd = &cobra.Command{
	Use:   "signer",
	Short: "Show the root signer that owns every account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, app *App) error {
			return runSigner(app, cmd.OutOrStdout())
		})
	},
}

var signerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Use an existing private key as the root signer",
	Long: `Import installs an existing private key as the root signer. It only works
before the first account is created. The key is read from the terminal, or
from the first line of stdin when it is piped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readImportKey(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runSignerImport(ctx, app, cmd.OutOrStdout(), key)
		})
	},
}

func init() {
	signerCmd.AddCommand(signerImportCmd)
	rootCmd.AddCommand(signerCmd)
}

func runSigner(app *App, w io.Writer) error {
	info, ok := app.Keyring.Signer()
	if !ok {
		fmt.Fprintln(w, ui.DimStyle.Render("No root signer yet. It is generated with the first account."))
		return nil
	}
	fmt.Fprintln(w, ui.TitleStyle.Render(info.Name))
	fmt.Fprintf(w, "  ID:      %s\n", info.ID)
	fmt.Fprintf(w, "  Address: %s\n", info.Address)
	fmt.Fprintf(w, "  Methods: %s\n", strings.Join(info.Methods, ", "))
	return nil
}

func runSignerImport(ctx context.Context, app *App, w io.Writer, privateKeyHex string) error {
	info, err := app.Keyring.ImportSigner(ctx, privateKeyHex)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ui.Success(fmt.Sprintf("Imported root signer %s", info.Address)))
	return nil
}

func readImportKey(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return readPassword("Root private key (hex): ")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("no private key on stdin")
	}
	return key, nil
}
