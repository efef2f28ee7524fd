package cmd

import (
	"fmt"

	"github.com/jandubois/healthmon/internal/config"
	"github.com/jandubois/healthmon/internal/monitor"
	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/registry"
	"github.com/jandubois/healthmon/internal/snapshot"
)

// buildMonitor wires the registry, prober and store described by cfg.
func buildMonitor(cfg *config.Config, opts monitor.Options) (*monitor.Monitor, error) {
	reg, err := registry.New(cfg.RegistryTargets())
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	maxBody, err := cfg.Monitor.MaxBodyBytes()
	if err != nil {
		return nil, fmt.Errorf("monitor.max_body: %w", err)
	}

	opts.Interval = cfg.Monitor.Interval
	opts.ErrorBackoff = cfg.Monitor.ErrorBackoff
	return monitor.New(reg, probe.NewHTTPProber(maxBody), snapshot.NewStore(), opts), nil
}
