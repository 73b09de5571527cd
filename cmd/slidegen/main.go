package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/app"
	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/server"
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
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	runRequest   = flag.String("run", "", "Run the group described by this YAML request file and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Slidegen version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup sequence:
	// 1. .env into the process environment (existing variables win)
	// 2. Config (defaults -> file1 -> file2 -> ... -> env)
	// 3. CLI overrides
	// 4. Logger and banner
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("slidegen.toml"); err == nil {
			configFiles = append(configFiles, "slidegen.toml")
		} else if _, err := os.Stat("deployments/local/slidegen.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/slidegen.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Strs("config_files", configFiles).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		application.Close()
		logger.Fatal().Err(err).Msg("Failed to start job service")
		os.Exit(1)
	}

	if *runRequest != "" {
		code := runOnce(ctx, application, *runRequest, logger)
		application.Close()
		os.Exit(code)
	}

	serve(ctx, application, logger)
	application.Close()
}

func serve(ctx context.Context, application *app.App, logger arbor.ILogger) {
	srv := server.New(application)

	ln, err := srv.Listen()
	if err != nil {
		logger.Error().Err(err).Msg("Server failed")
		return
	}
	logger.Info().
		Str("url", "http://"+ln.Addr().String()).
		Msg("Server ready - Press Ctrl+C to stop")

	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error().Err(err).Msg("Server failed")
		return
	}
	logger.Info().Msg("Server stopped")
}
