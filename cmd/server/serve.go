package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/freecasterhq/freecaster-grid/pkg/announce"
	"github.com/freecasterhq/freecaster-grid/pkg/api"
	"github.com/freecasterhq/freecaster-grid/pkg/grid"
	"github.com/freecasterhq/freecaster-grid/pkg/gridclient"
	"github.com/freecasterhq/freecaster-grid/pkg/poller"
	"github.com/freecasterhq/freecaster-grid/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve [--name|-n <string>] [--secret <string>] [--addr|-a <string>] [--poll-interval <duration>] [--announcer <telegram|log>]",
	Short: "Run the grid node: poller and HTTP endpoint surface",
	Long: `Start one freecaster-grid node.

This command:

- Probes every peer of the configured roster on a fixed interval
- Exchanges obituaries with peers to confirm deaths and elect one announcer
- Serves the grid HTTP API for peers and operators
- Gossips operator silences through the grid

Configuration is provided via config file, flags and environment variables (see --help).`,
	Example: `# Start a node with defaults from config and environment
freecaster-grid serve

# Override the node name and bind address
freecaster-grid serve --name okarthel --addr :8440

# Log announcements locally instead of sending them to Telegram
freecaster-grid serve --announcer log`,
	Args:      cobra.ExactArgs(0),
	ValidArgs: []string{},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runE(cmd, args); err != nil {
			otelzap.L().WithError(err).Fatal("Exiting")
		}

		otelzap.L().Info("Exiting")
	},
}

func loadRegistry() (*grid.Registry, humane.Error) {
	name := viper.GetString("name")
	if name == "" {
		return nil, humane.New("name is required",
			"set the node name in the config file or via the --name flag")
	}

	var roster []grid.Node
	if err := viper.UnmarshalKey("nodes", &roster); err != nil {
		return nil, humane.Wrap(err, "failed to parse node roster",
			"nodes must be a list of {name, address, telegramHandle} entries")
	}

	registry := grid.NewRegistry(name, roster)
	if len(registry.Peers()) == 0 {
		return nil, humane.New("node roster has no peers",
			"list every grid member under the nodes key, including this node")
	}

	return registry, nil
}

func newClient(me string, secret string) (*gridclient.Client, humane.Error) {
	opts := []gridclient.Option{
		gridclient.WithServerVerification(!viper.GetBool("client.insecureSkipVerify")),
	}

	if rootCA := viper.GetString("client.rootCA"); rootCA != "" {
		pem, err := os.ReadFile(rootCA)
		if err != nil {
			return nil, humane.Wrap(err, "failed to read client root CA",
				"client.rootCA must point to a readable PEM file")
		}
		opts = append(opts, gridclient.WithRootCA(pem))
	}

	return gridclient.New(me, secret, opts...)
}

func newAnnouncer(me string) (announce.Announcer, humane.Error) {
	switch mode := viper.GetString("announcer.mode"); mode {
	case "log":
		return announce.NewLogAnnouncer(me), nil

	case "telegram":
		token := viper.GetString("telegram.token")
		chatID := viper.GetInt64("telegram.chatID")
		if token == "" || chatID == 0 {
			return nil, humane.New("telegram announcer is not configured",
				"set telegram.token and telegram.chatID, or switch announcer.mode to log")
		}
		return announce.NewTelegramAnnouncer(me, token, chatID), nil

	default:
		return nil, humane.New("unknown announcer.mode "+mode,
			"announcer.mode must be telegram or log")
	}
}

func runE(cmd *cobra.Command, _ []string) humane.Error {
	debug := viper.GetBool("debug")

	ctx, cancelFn := context.WithCancelCause(cmd.Context())
	utils.InterruptHandler(ctx, cancelFn)

	secret := viper.GetString("secret")
	if secret == "" {
		err := humane.New("secret is required",
			"set the shared grid secret in the config file or via the --secret flag")
		cancelFn(err)
		return err
	}

	registry, err := loadRegistry()
	if err != nil {
		cancelFn(err)
		return err
	}
	me := registry.Self().Name

	state := grid.NewState(registry.Peers())

	client, err := newClient(me, secret)
	if err != nil {
		cancelFn(err)
		return err
	}

	announcer, err := newAnnouncer(me)
	if err != nil {
		cancelFn(err)
		return err
	}

	gridPoller := poller.New(registry, state, client, announcer,
		poller.WithInterval(viper.GetDuration("poll.interval")),
	)

	// Create shared Prometheus instance for all servers
	sharedPrometheus := ginprometheus.NewPrometheus("freecaster_grid")

	apiServer := api.NewGridServer(registry, state, secret,
		api.WithDebug(debug),
		api.WithAddr(viper.GetString("server.addr")),
		api.WithTLS(viper.GetString("server.tls.cert"), viper.GetString("server.tls.key")),
		api.WithPrometheus(sharedPrometheus),
	)

	// Start the poller
	go gridPoller.Start(ctx)

	// Start the grid HTTP server
	go func() {
		if err := apiServer.Serve(ctx); err != nil {
			if err.Cause() != nil {
				cancelFn(err.Cause())
			} else {
				cancelFn(err)
			}
			otelzap.L().WithError(err).FatalContext(ctx, "Failed to serve grid API")
		}
	}()

	// Wait for context done
	<-ctx.Done()
	// No more logging to ctx from here onwards

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	otelzap.L().Info("Shutting down servers...")

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		otelzap.L().WithError(err).Error("Failed to shutdown grid server gracefully")
		return err
	}

	otelzap.L().Info("Servers shut down successfully")

	// Check termination cause
	cause := context.Cause(ctx)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		return humane.Wrap(cause, "server terminated due to error")
	}

	return nil
}
