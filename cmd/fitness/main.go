package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/fitness/internal/app"
	"example.com/fitness/internal/client"
	"example.com/fitness/internal/config"
	"example.com/fitness/internal/consumer"
	"example.com/fitness/internal/identity"
	"example.com/fitness/internal/logging"
	"example.com/fitness/internal/session"
	httptransport "example.com/fitness/internal/transport/http"
	"example.com/fitness/internal/view"
)

const usage = `usage: fitness [command]

commands:
  shell    start an interactive session (default)
  config   print the effective configuration
  help     show this message`

func main() {
	if err := run(os.Args[1:]); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "fitness: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "shell"
	if len(args) > 0 {
		cmd = args[0]
	}

	cfg := config.Load()
	switch cmd {
	case "shell":
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runShell(cfg)
	case "config":
		printConfig(cfg)
		return nil
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func runShell(cfg config.Config) error {
	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		FilePath:    cfg.LogFilePath,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authorizer, err := identity.NewLoopbackAuthorizer(cfg.OAuth.RedirectURI, openBrowser, logger.Named("loopback"))
	if err != nil {
		return err
	}
	provider := identity.NewPKCEProvider(identity.Config{
		ClientID:              cfg.OAuth.ClientID,
		AuthorizationEndpoint: cfg.OAuth.AuthorizationEndpoint,
		TokenEndpoint:         cfg.OAuth.TokenEndpoint,
		RedirectURI:           cfg.OAuth.RedirectURI,
		Scopes:                cfg.OAuth.Scopes,
		RefreshSkew:           cfg.OAuth.RefreshSkew,
	},
		identity.WithAuthorizer(authorizer),
		identity.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		identity.WithLogger(logger.Named("identity")),
	)

	store := session.NewStore(session.WithLogger(logger.Named("session")))
	detach := session.NewBridge(store, session.WithBridgeLogger(logger.Named("bridge"))).Attach(provider)
	defer detach()

	api := client.New(cfg.APIBaseURL, store,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logger.Named("client")),
	)
	list := view.NewListController(api, view.WithLogger(logger.Named("list")))
	detail := view.NewDetailController(api, view.WithLogger(logger.Named("detail")))
	application := app.New(store, list, detail, api,
		app.WithAuthenticator(provider),
		app.WithLogger(logger.Named("app")),
	)
	defer application.Close()

	go func() {
		if err := provider.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("token watcher stopped", zap.Error(err))
		}
	}()

	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
		go func() {
			logger.Info("metrics listening", zap.String("address", cfg.MetricsAddress))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if len(cfg.KafkaBrokers) > 0 {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			// Every client process needs every event, so each one joins its own group.
			GroupID:     cfg.KafkaGroupID + "-" + uuid.NewString(),
			Topic:       cfg.KafkaTopic,
			MinBytes:    1,
			MaxBytes:    cfg.KafkaMaxBytes,
			StartOffset: kafka.LastOffset,
		})
		defer reader.Close()

		handler := consumer.NewAnnotationHandler(store, list, detail, consumer.WithHandlerLogger(logger.Named("events")))
		processor := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger.Named("consumer")))
		go func() {
			if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("event consumer stopped", zap.Error(err))
			}
		}()
	}

	sh := newShell(application, provider, store, list, detail, os.Stdout)
	return sh.run(ctx, os.Stdin)
}

func openBrowser(authURL string) error {
	color.New(color.FgCyan).Printf("Open this URL to log in:\n  %s\n", authURL)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", authURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
	default:
		cmd = exec.Command("xdg-open", authURL)
	}
	// The URL is already printed, so a missing opener is not fatal.
	_ = cmd.Start()
	return nil
}

func printConfig(cfg config.Config) {
	bold := color.New(color.Bold)
	rows := [][2]string{
		{"APP_ENV", cfg.Env},
		{"LOG_LEVEL", cfg.LogLevel},
		{"API_BASE_URL", cfg.APIBaseURL},
		{"REQUEST_TIMEOUT", cfg.RequestTimeout.String()},
		{"OAUTH_CLIENT_ID", cfg.OAuth.ClientID},
		{"OAUTH_AUTHORIZATION_ENDPOINT", cfg.OAuth.AuthorizationEndpoint},
		{"OAUTH_TOKEN_ENDPOINT", cfg.OAuth.TokenEndpoint},
		{"OAUTH_REDIRECT_URI", cfg.OAuth.RedirectURI},
		{"KAFKA_BROKERS", fmt.Sprint(cfg.KafkaBrokers)},
		{"KAFKA_TOPIC", cfg.KafkaTopic},
		{"METRICS_ADDRESS", cfg.MetricsAddress},
	}
	for _, row := range rows {
		bold.Printf("%-30s", row[0])
		fmt.Println(row[1])
	}
	if err := cfg.Validate(); err != nil {
		color.New(color.FgYellow).Printf("\n%v\n", err)
	}
}
