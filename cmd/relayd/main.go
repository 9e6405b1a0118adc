package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/ctmprelay/internal/logging"
	"github.com/danmuck/ctmprelay/internal/observability"
	"github.com/danmuck/ctmprelay/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to relayd TOML config")
	flag.Parse()

	logCfg := logging.ConfigureRuntime()
	logger := observability.InitLogger("relayd", logCfg)

	cfg := relay.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger.Info().
		Str("source_addr", cfg.SourceListenAddr).
		Str("dest_addr", cfg.DestListenAddr).
		Msg("starting relayd")

	svc := relay.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
}
