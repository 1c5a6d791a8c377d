package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/connector"
	"parley/internal/delegate"
	apperrors "parley/internal/errors"
	"parley/internal/llm"
	"parley/internal/observability"
	serverHTTP "parley/internal/server/http"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func main() {
	root := &cobra.Command{
		Use:   "parley",
		Short: "Chat server with connector-scoped delegated agents",
	}
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	cmd.Flags().String("log-level", "", "log level (overrides config)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	return cmd
}

func loadConfig(configFile string) (config.Config, error) {
	viper.SetEnvPrefix("PARLEY")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("parley")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/parley")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	logger := logging.NewComponentLogger("main")

	catalog := demoCatalog()
	resolver := connector.NewResolver(catalog, catalog, logging.NewComponentLogger("resolver"))

	client := buildClient(cfg, logger)
	metrics := observability.DefaultMetrics()
	broadcaster := stream.NewBroadcaster(cfg.Stream.SinkBuffer, cfg.Stream.HistoryLimit, logging.NewComponentLogger("broadcaster"))
	broadcaster.SetDropHook(metrics.AddEventsDropped)

	runner := delegate.NewRunner(client, cfg.Model, cfg.Delegate, logging.NewComponentLogger("delegate"))
	tool := delegate.NewTool(resolver, catalog, runner, cfg.Delegate, logging.NewComponentLogger("delegate-tool"))
	service := chat.NewService(client, tool, broadcaster, cfg.Model, cfg.Delegate, metrics, logging.NewComponentLogger("chat"))

	router := serverHTTP.NewRouter(serverHTTP.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Chat:           serverHTTP.NewChatHandler(service, logging.NewComponentLogger("chat-handler")),
		Delegate:       serverHTTP.NewDelegateHandler(tool, broadcaster, logging.NewComponentLogger("delegate-handler")),
		SSE:            serverHTTP.NewSSEHandler(broadcaster, cfg.Stream.HeartbeatInterval, metrics, logging.NewComponentLogger("sse")),
		WS:             serverHTTP.NewWSHandler(broadcaster, nil, metrics, logging.NewComponentLogger("ws")),
		Directory:      catalog,
		Logger:         logging.NewComponentLogger("http"),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("%s %s\n", bold("parley"), green("listening on "+cfg.Server.Addr))
	fmt.Printf("  model:    %s\n", cyan(cfg.Model.Provider+"/"+cfg.Model.Name))
	fmt.Printf("  stream:   %s\n", cyan("GET /api/stream?session_id=..."))
	fmt.Printf("  chat:     %s\n", cyan("POST /api/chat"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildClient returns the configured generation client. Only the built-in
// mock provider ships with the binary; real providers are injected by
// deployments that embed this package.
func buildClient(cfg config.Config, logger logging.Logger) llm.StreamingClient {
	base := llm.NewMockClient(
		llm.MockTurn{Content: "This development build answers with canned text.", StopReason: "stop"},
	)
	if cfg.Model.Provider != "mock" {
		logger.Warn("unknown provider %q, using the mock client", cfg.Model.Provider)
	}
	return llm.NewRetryClient(base, apperrors.DefaultRetryConfig(), logger)
}

// demoCatalog wires a small static connector set for local development.
func demoCatalog() *connector.StaticCatalog {
	object := func(props map[string]llm.Property) llm.ParameterSchema {
		return llm.ParameterSchema{Type: "object", Properties: props}
	}
	return connector.NewStaticCatalog().
		AddToolkit(connector.Toolkit{Name: "GMAIL", Enabled: true, Connected: true},
			&connector.FuncHandler{
				ToolName: "gmail_search",
				Def: llm.ToolDefinition{
					Name:        "gmail_search",
					Description: "Search the mailbox.",
					Parameters:  object(map[string]llm.Property{"query": {Type: "string"}}),
				},
				Fn: func(ctx context.Context, args map[string]any) (string, error) {
					return "no messages matched", nil
				},
			}).
		AddToolkit(connector.Toolkit{Name: "NOTION", Enabled: true, Connected: true},
			&connector.FuncHandler{
				ToolName: "notion_query",
				Def: llm.ToolDefinition{
					Name:        "notion_query",
					Description: "Query a workspace database.",
					Parameters:  object(map[string]llm.Property{"database": {Type: "string"}}),
				},
				Fn: func(ctx context.Context, args map[string]any) (string, error) {
					return "query returned 0 rows", nil
				},
			}).
		AddToolkit(connector.Toolkit{Name: "CALENDAR", Enabled: false, Connected: true})
}
