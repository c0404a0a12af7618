package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/database"
	"trade-journal-go/internal/logger"
	"trade-journal-go/internal/userctx"
)

var (
	configPath = flag.String("config", "./configs", "Directory holding config.yml")
	userID     = flag.String("user", "", "Acting user. Defaults to journal.default_user")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	register(commander)
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	defer func() { _ = log.Sync() }()

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	log.Debug("Database ready", zap.String("dsn", cfg.Database.DSN))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, aborting...")
		cancel()
	}()

	user := *userID
	if user == "" {
		user = cfg.Journal.DefaultUser
	}
	ctx = userctx.WithUser(ctx, user)

	status := commander.Execute(ctx, newApp(&cfg, db, log))
	_ = log.Sync()
	os.Exit(int(status))
}
