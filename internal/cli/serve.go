package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/scwkeyring/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the keyring JSON-RPC API",
	Long: `Serve the keyring_* methods over JSON-RPC on POST /rpc.

Set server.api_key (or SCWKEYRING_SERVER_API_KEY) to require an X-API-Key
header on every call.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app)
		})
	},
}

func init() {
	serveCmd.Flags().String("address", server.DefaultAddress, "Listen address")
	_ = viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
	rootCmd.AddCommand(serveCmd)
}

// runServe blocks until ctx is done, then drains the server.
func runServe(ctx context.Context, app *App) error {
	srv := server.New(app.Router, app.Config.ServerConfig())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", app.Config.Server.Address).Msg("keyring server listening")
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
