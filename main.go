package main

import (
	"context"
	"errors"
	"fmt"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectifyr/internal/assistant"
	"connectifyr/internal/auth"
	"connectifyr/internal/commands"
	"connectifyr/internal/config"
	"connectifyr/internal/filestore"
	"connectifyr/internal/gemini"
	"connectifyr/internal/http"
	"connectifyr/internal/logging"
	"connectifyr/internal/media"
	"connectifyr/internal/push"
	"connectifyr/internal/session"
	"connectifyr/internal/storage"
	"connectifyr/internal/ws"
	"connectifyr/static"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath, false)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}
	library := media.NewLibrary(files, bbStorage)

	authService := auth.NewAuthService(ctx, auth.Config{
		TokenExpiry:    cfg.TokenExpiry,
		RememberExpiry: cfg.RememberExpiry,
	}, bbStorage, logger)
	if err := authService.Restore(); err != nil {
		logger.Warn("failed to restore remembered login", zap.Error(err))
	}

	pushService := push.New(push.Config{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subscriber: cfg.VAPIDSubscriber,
	}, bbStorage, logger)

	hub := ws.NewHub(logger)

	deps := session.Deps{
		Store:     bbStorage,
		Publisher: hub,
		Notifier:  pushService,
		Logger:    logger,
	}
	if cfg.AIEnabled() {
		client := gemini.NewClient(gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			Endpoint:    cfg.GeminiEndpoint,
			TextModel:   cfg.TextModel,
			SpeechModel: cfg.SpeechModel,
			Voice:       cfg.Voice,
		})
		deps.Assistant = assistant.New(client, library, assistant.Config{
			HistoryWindow: cfg.HistoryWindow,
			Rate:          cfg.AIRate,
			Burst:         cfg.AIBurst,
		}, logger)
	} else {
		logger.Warn("GEMINI_API_KEY is not set, the AI contact will not reply")
	}

	sess, err := session.Open(ctx, session.Config{
		ReadReceiptDelay: cfg.ReadReceiptDelay,
		AcceptDelay:      cfg.AcceptDelay,
	}, deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	adminServer := http.NewAdminServer(http.AdminConfig{
		Addr:     cfg.AdminAddr,
		User:     cfg.AdminUser,
		Password: cfg.AdminPassword,
	}, sess, hub, logger)
	apiServer := http.NewAPIServer(http.APIDeps{
		Auth:    authService,
		Session: sess,
		Hub:     hub,
		Library: library,
		Push:    pushService,
		Assets:  static.Content,
	}, cfg.APIAddr, logger)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", zap.Error(err))
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := run(ctx, configPath); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	root := &cobra.Command{
		Use:           "connectifyr",
		Short:         "Connectifyr: local chat with simulated friends and an AI nakama",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONNECTIFYR_CONFIG"), "path to a TOML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API and admin servers (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "add-contact NAME EMAIL",
		Short: "Add a contact through the admin API of a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, true)
			if err != nil {
				return err
			}
			return commands.AddContact(cmd.OutOrStdout(), args[0], args[1], cfg)
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
