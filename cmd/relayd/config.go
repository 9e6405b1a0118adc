package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/ctmprelay/internal/relay"
)

type fileConfig struct {
	SourceListenAddr    string `toml:"source_listen_addr"`
	DestListenAddr      string `toml:"dest_listen_addr"`
	MetricsListenAddr   string `toml:"metrics_listen_addr"`
	PollInterval        string `toml:"poll_interval"`
	PollIntervalMS      int64  `toml:"poll_interval_ms"`
	SourcePolicy        string `toml:"source_policy"`
	MaxConnsPerIPPerSec uint64 `toml:"max_conns_per_ip_per_sec"`
}

func loadServiceConfig(path string) (relay.Config, error) {
	cfg := relay.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return relay.Config{}, fmt.Errorf("load relayd config: %w", err)
	}

	if meta.IsDefined("source_listen_addr") {
		cfg.SourceListenAddr = strings.TrimSpace(raw.SourceListenAddr)
	}

	if meta.IsDefined("dest_listen_addr") {
		cfg.DestListenAddr = strings.TrimSpace(raw.DestListenAddr)
	}

	if meta.IsDefined("metrics_listen_addr") {
		cfg.MetricsListenAddr = strings.TrimSpace(raw.MetricsListenAddr)
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return relay.Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}

	if meta.IsDefined("poll_interval_ms") {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}

	if meta.IsDefined("source_policy") {
		cfg.SourcePolicy = relay.SourcePolicy(strings.TrimSpace(raw.SourcePolicy))
	}

	if meta.IsDefined("max_conns_per_ip_per_sec") {
		cfg.MaxConnsPerIPPerSec = raw.MaxConnsPerIPPerSec
	}

	return cfg, nil
}
