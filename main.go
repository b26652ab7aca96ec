package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homeval/db"
	qhttp "homeval/http"
	"homeval/logging"
	"homeval/ml"
	"homeval/monitoring"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int `yaml:"port"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Artifacts struct {
		PipelinePath string `yaml:"pipeline_path"`
		ModelPath    string `yaml:"model_path"`
		Watch        bool   `yaml:"watch"`
	} `yaml:"artifacts"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log logging.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(config.Log)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()
	qhttp.SetLogger(logger)

	// 2. Initialize prediction history database
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 3. Load artifacts. Without both the service cannot answer anything,
	// so a missing artifact halts startup instead of degrading.
	artifacts, err := ml.GetArtifacts(config.Artifacts.PipelinePath, config.Artifacts.ModelPath)
	if err != nil {
		if errors.Is(err, ml.ErrArtifactMissing) {
			logger.Fatal("required artifact missing", zap.Error(err))
		}
		logger.Fatal("failed to load artifacts", zap.Error(err))
	}
	status := artifacts.Status()
	logger.Info("artifacts loaded",
		zap.String("pipeline", config.Artifacts.PipelinePath),
		zap.String("model", config.Artifacts.ModelPath),
		zap.Int("features", status.FeatureCount),
		zap.Int("trees", status.TreeCount),
	)
	if config.Artifacts.Watch {
		if err := artifacts.Watch(); err != nil {
			logger.Warn("artifact watch disabled", zap.Error(err))
		} else {
			logger.Info("watching artifacts for changes")
		}
	}

	service, err := ml.NewService(artifacts, config.Cache.Size)
	if err != nil {
		logger.Fatal("failed to build inference service", zap.Error(err))
	}

	hub := monitoring.NewHub()
	go hub.Run()
	collector := monitoring.NewCollector()

	qhttp.SetInferenceService(service)
	qhttp.SetArtifacts(artifacts)
	qhttp.SetHub(hub)
	qhttp.SetCollector(collector)

	// 4. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	server := qhttp.NewServer(serverConfig)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	hub.Stop()
	artifacts.Close()
	db.Close()

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
