// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/agent"
	"github.com/gymops/leadpilot/internal/api"
	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/commands"
	"github.com/gymops/leadpilot/internal/config"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/hours"
	"github.com/gymops/leadpilot/internal/inbound"
	"github.com/gymops/leadpilot/internal/jobs"
	lplog "github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/slots"
	"github.com/gymops/leadpilot/internal/store"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

const jobTick = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "leadpilotd: %v\n", err)
		os.Exit(1)
	}

	lplog.Configure(lplog.Config{
		Level:   cfg.LogLevel,
		Service: "leadpilot",
	})
	logger := lplog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("data_dir", cfg.DataDir).Msg("failed to create data dir")
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		logger.Fatal().Err(err).Str("db_path", cfg.DBPath()).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	clock := time.Now
	if err := st.Migrate(ctx, store.DefaultSeed(), store.FormatTime(clock())); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	location, err := applyLocationOverrides(ctx, st, cfg.Location)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply location overrides")
	}

	schedule, err := hours.ParseSchedule(location.BusinessHoursJSON)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid business hours")
	}
	if !schedule.HasAnyOpenInterval() {
		// next_open degenerates to now+24h in this configuration; automation
		// would fire while the gym is closed.
		logger.Error().Str("gym", location.GymName).
			Msg("business hours have no open interval on any weekday; scheduling falls back to 24h delays")
	}
	oracle, err := hours.New(location.Timezone, schedule)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", location.Timezone).Msg("invalid timezone")
	}

	recorder := audit.New(st.Queries, clock)
	gw := gateway.New(st, oracle, recorder, clock)
	generator := slots.New(st.Queries, oracle)
	processor := inbound.New(st, gw, generator, clock)
	runner := jobs.New(st, gw, recorder, clock)
	channel := agent.New(gw, recorder)
	service := commands.New(st, gw, processor, runner, channel, recorder, oracle, clock, cfg.ClientErrorLogPath())

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(service).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runJobTicker(ctx, service, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Listen).Str("version", version).
			Str("gym", location.GymName).Msg("leadpilotd started")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// runJobTicker polls run_due_jobs on a fixed interval. The runner itself
// holds no background state, so stopping the ticker stops all automation.
func runJobTicker(ctx context.Context, service *commands.Service, logger zerolog.Logger) {
	ticker := time.NewTicker(jobTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := service.RunDueJobs(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("job tick failed")
				continue
			}
			if result.Processed > 0 || result.Skipped > 0 || result.Errors > 0 {
				logger.Info().
					Int64("processed", result.Processed).
					Int64("skipped", result.Skipped).
					Int64("errors", result.Errors).
					Msg("job tick")
			}
		}
	}
}

// applyLocationOverrides merges non-empty config fields over the seeded
// location row and persists the result.
func applyLocationOverrides(ctx context.Context, st *store.Store, override config.Location) (store.Location, error) {
	location, err := st.Location(ctx)
	if err != nil {
		return store.Location{}, err
	}

	changed := false
	if override.GymName != "" && override.GymName != location.GymName {
		location.GymName = override.GymName
		changed = true
	}
	if override.Timezone != "" && override.Timezone != location.Timezone {
		location.Timezone = override.Timezone
		changed = true
	}
	if len(override.BusinessHours) > 0 {
		raw, err := json.Marshal(override.BusinessHours)
		if err != nil {
			return store.Location{}, fmt.Errorf("marshal business hours: %w", err)
		}
		if string(raw) != location.BusinessHoursJSON {
			location.BusinessHoursJSON = string(raw)
			changed = true
		}
	}

	if changed {
		if err := st.UpdateLocation(ctx, location.ID, location.GymName, location.Timezone, location.BusinessHoursJSON); err != nil {
			return store.Location{}, err
		}
	}
	return location, nil
}
