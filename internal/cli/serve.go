package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/server"
	"github.com/halyard-dev/halyard/internal/ui"
)

var serveListenFlag string

// serveCmd starts the HTTP/WebSocket API for the web UI.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the halyard API server",
	Long: `Start the HTTP and WebSocket API that the web UI talks to.

The server keeps SSH sessions open across commands, streams live output
over websockets, and records execution history in a local SQLite database.

Examples:
  halyard serve
  halyard serve --listen 0.0.0.0:8787`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand()
	},
}

func serveCommand() error {
	// Local .env is convenient for tokens in development; missing is fine.
	_ = godotenv.Load()

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveListenFlag != "" {
		a.cfg.Listen = serveListenFlag
	}

	cat, err := a.openCatalog()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cat != nil {
		catalogStop := make(chan struct{})
		defer close(catalogStop)
		go func() {
			if err := cat.Watch(catalogStop); err != nil {
				a.log.Warn().Err(err).Msg("catalog watcher stopped")
			}
		}()
	}

	if ui.IsTerminal() {
		fmt.Print(ui.RenderHeader(ui.HeaderInfo{
			Version: formatVersion(version),
			Tagline: "Remote command runner",
			Listen:  a.cfg.Listen,
		}))
	}

	srv := server.New(a.cfg.Listen, a.coord, a.store, a.bcast, a.oracleClient(), cat, a.log)
	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListenFlag, "listen", "", "listen address (overrides config)")
}
