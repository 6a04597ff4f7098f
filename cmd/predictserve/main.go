// Command predictserve is the core process from spec.md: it wires the
// Configuration Client, Metrics Registry, Query Processor, HTTP
// Frontend, ZMQ Frontend and Application Registrar together and blocks
// until an OS signal requests shutdown. The wiring order follows the
// teacher's cmd/inferflow/main.go: config, logging, configuration
// store, metrics, then the business components, then the servers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipper-go/predictserve/internal/config"
	"github.com/clipper-go/predictserve/internal/configstore"
	"github.com/clipper-go/predictserve/internal/httpfrontend"
	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/modelclient"
	"github.com/clipper-go/predictserve/internal/queryprocessor"
	"github.com/clipper-go/predictserve/internal/registrar"
	"github.com/clipper-go/predictserve/internal/zmqfrontend"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.ApplicationName, cfg.LogLevel)

	registry := metrics.New(cfg.HistogramReservoirSize)
	defer registry.Stop()
	statsdTags := []string{"app:" + cfg.ApplicationName, "env:" + cfg.ApplicationEnv}
	sink := metrics.NewStatsDSink(cfg.TelegrafHost, cfg.TelegrafPort, cfg.MetricsSamplingRate, statsdTags)
	registry.SetSink(sink)

	store := configstore.NewEtcdStore(cfg.ConfigStoreServers, cfg.ConfigStoreUsername, cfg.ConfigStorePassword, cfg.ConfigStoreRetries)
	if err := store.Connect(); err != nil {
		// Config-store connect loss is fatal, per spec.md §6/§7.
		logging.Panic("failed to connect to configuration store after retries", err)
	}

	modelClient := modelclient.NewGRPCModelClient(
		cfg.ModelDomainSuffix,
		cfg.ModelPort,
		time.Duration(cfg.ModelDialTimeoutMillis)*time.Millisecond,
	)
	defer modelClient.Close()

	processor := queryprocessor.New(modelClient, registry)
	defer processor.Close()

	httpRouter := httpfrontend.NewRouter(registry, processor, cfg.HTTPThreads)

	zmqRecvAddr := fmt.Sprintf("tcp://%s:%d", cfg.ZMQListenAddress, cfg.ZMQRecvPort)
	zmqSendAddr := fmt.Sprintf("tcp://%s:%d", cfg.ZMQListenAddress, cfg.ZMQSendPort)
	zmqFrontend := zmqfrontend.New(zmqRecvAddr, zmqSendAddr, int(cfg.ArenaSizeBytes), cfg.MaxInFlight, cfg.ResponseQueueCap, processor, registry)
	if err := zmqFrontend.Start(); err != nil {
		// ZMQ bind failure is fatal, per spec.md §6/§7.
		logging.Panic("failed to start ZMQ frontend", err)
	}
	defer zmqFrontend.Stop()

	appRegistrar := registrar.New(store, processor, httpRouter, zmqFrontend)
	existingApps, err := store.ListApplicationNames()
	if err != nil {
		logging.Error("failed to list existing applications, starting with none installed", err)
	}
	appRegistrar.Bootstrap(existingApps)
	appRegistrar.Start()

	httpAddr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: httpRouter.Engine(),
	}

	go func() {
		logging.Info(fmt.Sprintf("HTTP frontend listening on %s", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Panic("HTTP server failed", err)
		}
	}()

	waitForShutdownSignal()

	logging.Info("shutdown signal received, draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP server shutdown did not complete cleanly", err)
	}
	// httpServer.Shutdown above waits for in-flight HTTP handlers, and so
	// for their futures. zmqFrontend.Stop(), processor.Close() and
	// modelClient.Close() run via defer after this function returns.
	_ = store.Close()
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
