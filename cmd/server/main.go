package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadplan/internal/climate"
	"loadplan/internal/config"
	"loadplan/internal/extract"
	"loadplan/internal/extract/claude"
	"loadplan/internal/extract/gemini"
	"loadplan/internal/extract/ocr"
	"loadplan/internal/extract/openai"
	"loadplan/internal/handler"
	"loadplan/internal/loadcalc"
	"loadplan/internal/pipeline"
	"loadplan/internal/port"
	"loadplan/internal/repository/postgres"
	"loadplan/internal/router"
	"loadplan/internal/service"
	s3storage "loadplan/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(ctx, &cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Assemble the pipeline
	factors := loadcalc.DefaultFactors()
	if cfg.Calc.IndoorHeatingTemp > 0 {
		factors.IndoorHeatingTemp = cfg.Calc.IndoorHeatingTemp
	}
	if cfg.Calc.IndoorCoolingTemp > 0 {
		factors.IndoorCoolingTemp = cfg.Calc.IndoorCoolingTemp
	}
	if cfg.Calc.InfiltrationDivisorSingle > 0 {
		factors.InfiltrationDivisorSingle = cfg.Calc.InfiltrationDivisorSingle
	}
	if cfg.Calc.InfiltrationDivisorMulti > 0 {
		factors.InfiltrationDivisorMulti = cfg.Calc.InfiltrationDivisorMulti
	}

	vision := visionProviderFor(&cfg.Vision)
	if vision == nil {
		log.Printf("no vision provider configured; extraction will rely on geometry and text only")
	}

	loadPipeline := pipeline.New(
		cfg.Pipeline,
		vision,
		ocr.NewEngine("eng"),
		climate.NewSource(cfg.Climate),
		factors,
	)

	// Initialize repositories and services
	jobRepo := postgres.NewJobRepo(db)
	jobSvc := service.NewJobService(jobRepo, s3Client, loadPipeline, &cfg.S3)

	// Queue worker
	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, service.CalcQueueConfig{
		PollInterval: time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
		MaxRetries:   cfg.Queue.MaxRetries,
		Concurrency:  cfg.Queue.Concurrency,
	})
	workerDone := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(workerDone)
	}()

	// Initialize handlers
	jobH := handler.NewJobHandler(jobSvc)
	calcH := handler.NewCalcHandler(jobSvc)
	healthH := handler.NewHealthHandler(db)

	// Setup router and server
	r := router.Setup(jobH, calcH, healthH, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// The worker stops polling on the signal context; wait for in-flight
	// jobs to finish so they are not reclaimed as stale later.
	<-workerDone
	log.Printf("server stopped")

	return nil
}

// visionProviderFor builds the vision provider chain from configuration.
// Both primary and secondary configured gives a fallback chain; one gives
// that provider alone; none means vision extraction is skipped.
func visionProviderFor(cfg *config.VisionConfig) port.VisionProvider {
	primary := providerFromConfig(cfg.PrimaryConfig())
	secondary := providerFromConfig(cfg.SecondaryConfig())

	switch {
	case primary != nil && secondary != nil:
		return extract.NewFallbackProvider([]port.VisionProvider{primary, secondary})
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		return nil
	}
}

func providerFromConfig(pc *config.VisionProviderConfig) port.VisionProvider {
	if pc == nil || pc.APIKey == "" {
		return nil
	}
	switch pc.Provider {
	case "claude":
		return claude.NewProvider(pc)
	case "openai":
		return openai.NewProvider(pc)
	case "gemini":
		return gemini.NewProvider(pc)
	default:
		log.Printf("unknown vision provider %q, skipping", pc.Provider)
		return nil
	}
}
