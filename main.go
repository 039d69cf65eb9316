package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"apibase/auth"
	"apibase/config"
	"apibase/database"
	"apibase/logging"
	"apibase/resources/docs"
	"apibase/resources/health"
	"apibase/resources/metrics"
	"apibase/resources/post"
	"apibase/resources/user"
	"apibase/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "apibase",
		Short:         "Serve the API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.Int("port", 3000, "HTTP port")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("config", "", "optional config file (yaml, json or toml)")
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("env_file", flags.Lookup("env-file"))
	_ = v.BindPFlag("config_file", flags.Lookup("config"))
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db := database.NewConnector(cfg.MongoURI(), cfg.MongoDB, logger,
		database.WithTimeout(cfg.MongoConnectTimeout))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	m := server.NewMetrics()

	controllers := []server.Controller{
		health.NewController(db),
		user.NewController(user.NewService(user.NewMongoStore(db), tokens), tokens),
		post.NewController(post.NewMongoStore(db), tokens),
		metrics.NewController(m.Registry),
		docs.NewController(server.Prefix + "/openapi.yaml"),
	}

	app := server.New(ctx, server.Options{
		Config:      cfg,
		Controllers: controllers,
		Connector:   db,
		Logger:      logger,
		Metrics:     m,
	})
	return app.Listen(ctx)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
