// cmd/prompt-switcher/serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"prompt-switcher/internal/api"
	"prompt-switcher/internal/common/camunda"
	"prompt-switcher/internal/common/config"
	listagents "prompt-switcher/internal/workers/prompting/list-agents"
	optimizeprompt "prompt-switcher/internal/workers/prompting/optimize-prompt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and, when enabled, the Zeebe job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, appOptions{configPath: *configPath, withObservability: true})
			if err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	shutdownTimeout := config.GetDuration(cfg.Server.ShutdownTimeout)

	readyChecks := map[string]api.ReadyCheck{}
	if a.redis != nil {
		readyChecks["redis"] = a.redis.Ping
	}
	if a.postgres != nil {
		readyChecks["postgres"] = a.postgres.Ping
	}

	var zeebe *camunda.Client
	var workers *camunda.Workers
	if cfg.Camunda.Enabled {
		client, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), a.log)
		if err != nil {
			a.close(context.Background())
			return err
		}
		zeebe = client
		readyChecks["zeebe"] = zeebe.HealthCheck
		workers = a.startWorkers(zeebe)
	}

	server := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewRouter(api.Deps{
			Switcher:       a.svc,
			Logger:         a.log,
			Gatherer:       prometheus.DefaultGatherer,
			ReadyChecks:    readyChecks,
			RequestTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		}),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received, stopping", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if workers != nil {
			workers.Close()
		}
		if zeebe != nil {
			if cerr := zeebe.Close(); cerr != nil {
				a.log.Error("error closing zeebe client", map[string]interface{}{"error": cerr.Error()})
			}
		}
		a.close(shutdownCtx)
		return err
	})

	err := g.Wait()
	a.log.Info("prompt switcher stopped", nil)
	return err
}

func (a *app) startWorkers(zeebe *camunda.Client) *camunda.Workers {
	workers := camunda.NewWorkers(zeebe.Zeebe(), a.log)

	wcfg := config.GetWorkerConfig(a.cfg, config.WorkerOptimizePrompt)
	optimize := optimizeprompt.NewHandler(optimizeprompt.LoadConfig(wcfg), a.svc, a.log)
	workers.Start(optimizeprompt.TaskType, wcfg, optimize.Handle)

	wcfg = config.GetWorkerConfig(a.cfg, config.WorkerListAgents)
	list := listagents.NewHandler(listagents.LoadConfig(wcfg), a.svc, a.log)
	workers.Start(listagents.TaskType, wcfg, list.Handle)

	a.log.Info("workers registered", map[string]interface{}{"count": workers.Count()})
	return workers
}
