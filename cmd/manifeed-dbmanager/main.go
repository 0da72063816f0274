package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/queue"
	"github.com/manifeed/manifeed/internal/services/persister"
	"github.com/manifeed/manifeed/internal/storage/postgres"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Manifeed db manager version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("manifeed.toml"); err == nil {
			configFiles = append(configFiles, "manifeed.toml")
		} else if _, err := os.Stat("deployments/local/manifeed.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/manifeed.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner("Manifeed DB Manager")

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Bool("migrate", config.Database.Migrate).
		Msg("DB manager configuration loaded")

	// The db manager owns schema migrations, so connect before anything else
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := postgres.New(initCtx, &config.Database)
	initCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer store.Close()

	queueClient, err := queue.NewClient(config.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer queueClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt signal received, stopping db manager")
		cancel()
	}()

	service := persister.NewService(queueClient, store, config, logger)
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("DB manager stopped with error")
	}

	logger.Info().Msg("DB manager stopped")
}
