package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/queue"
	"github.com/manifeed/manifeed/internal/services/scraper"
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
		fmt.Printf("Manifeed worker version %s\n", common.GetVersion())
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
	common.PrintBanner("Manifeed Worker")

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("consumer", config.Worker.ConsumerName).
		Msg("Worker configuration loaded")

	queueClient, err := queue.NewClient(config.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer queueClient.Close()

	// Cancel the run context on interrupt so in-flight feeds finish and the
	// read loop exits
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt signal received, stopping worker")
		cancel()
	}()

	service := scraper.NewService(queueClient, config, logger)
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Worker stopped with error")
	}

	logger.Info().Msg("Worker stopped")
}
