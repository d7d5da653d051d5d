package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guided-traffic/file-encryptor/internal/api"
	"github.com/guided-traffic/file-encryptor/internal/api/handlers/health"
	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/engine"
	"github.com/guided-traffic/file-encryptor/internal/keystore"
	"github.com/guided-traffic/file-encryptor/internal/mirror"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
	"github.com/guided-traffic/file-encryptor/internal/orchestration"
	"github.com/guided-traffic/file-encryptor/internal/preview"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "file-encryptor",
		Short: "File Encryptor serves a local API around an external encryption engine",
		Long: `File Encryptor exposes a small HTTP API for a browser UI. It keeps the active
key in memory, runs the external encrypt/decrypt engine as a child process,
stores uploads and serves file listings and previews.

The engine receives the key through an environment variable and either a
positional command (create-test-files, process-all, decrypt-all) or a
"<path>\n<encrypt|decrypt>\n" request on stdin.

Use --config to specify a configuration file, or the server will look for
.file-encryptor.yaml in the home directory, the working directory and ./config.`,
		Run: runServer,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")
}

func initConfig() {
	config.InitConfig(cfgFile)
}

func runServer(cmd *cobra.Command, args []string) {
	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Info("File Encryptor build information")

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	monitoring.SetServerInfo(version, commit, buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys, err := keystore.New(cfg.Engine.DefaultKey, logrus.WithField("component", "keystore"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create key store")
	}

	invoker, err := engine.NewInvoker(engine.Config{
		Path:    cfg.Engine.Path,
		Args:    cfg.Engine.Args,
		WorkDir: cfg.EngineWorkDir(),
		KeyEnv:  cfg.Engine.KeyEnv,
		Env:     cfg.Engine.Env,
		Timeout: cfg.Engine.Timeout,
	}, keys, logrus.WithField("component", "engine"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create engine invoker")
	}

	reg, err := registry.FromConfig(&cfg.Storage, logrus.WithField("component", "registry"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create file registry")
	}

	var observers []registry.Observer
	var uploadMirror *mirror.Mirror
	if cfg.Mirror.Enabled {
		uploadMirror, err = mirror.New(ctx, cfg.Mirror, logrus.WithField("component", "upload-mirror"))
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create upload mirror")
		}
		observers = append(observers, uploadMirror)
		logrus.WithField("bucket", cfg.Mirror.Bucket).Info("Mirroring uploads to S3")
	}

	ingestor, err := registry.NewIngestor(reg, cfg.Storage.UploadRoot, cfg.Storage.MaxUploadSize,
		logrus.WithField("component", "ingest"), observers...)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create upload ingestor")
	}

	manager, err := orchestration.NewManager(invoker, reg, logrus.WithField("component", "operation-manager"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create operation manager")
	}

	server, err := api.NewServer(cfg, api.Dependencies{
		Keys:      keys,
		Executor:  manager,
		Catalog:   reg,
		Ingester:  ingestor,
		Previewer: preview.NewResolver(reg, logrus.WithField("component", "preview")),
		Build:     health.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime},
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create API server")
	}

	if cfg.Monitoring.Enabled {
		monitoringServer := monitoring.NewServer(&monitoring.Config{
			BindAddress: cfg.Monitoring.BindAddress,
			MetricsPath: cfg.Monitoring.MetricsPath,
		})
		go func() {
			if err := monitoringServer.Start(ctx); err != nil {
				logrus.WithError(err).Error("Monitoring server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		logrus.WithFields(logrus.Fields{
			"address": cfg.BindAddress,
			"engine":  cfg.Engine.Path,
		}).Info("Starting file encryptor server")
		if err := server.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("API server failed")
		}
	}()

	<-sigChan
	logrus.Info("Received shutdown signal, gracefully shutting down...")

	cancel()
	<-serverDone

	if uploadMirror != nil {
		uploadMirror.Wait()
	}

	logrus.Info("Server stopped")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
