package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"candleflow/config"
	"candleflow/logger"
	"candleflow/worker"
	"candleflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	symbolPath := flag.String("symbols", "config/symbols.yml", "Path to symbol session configuration file")
	fromFlag := flag.String("from", "", "First trading date to aggregate (YYYY-MM-DD, default: today)")
	toFlag := flag.String("to", "", "Last trading date to aggregate (YYYY-MM-DD, default: from)")
	archiveFlag := flag.Bool("archive", false, "Upload committed segments to S3 after the run")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Candleflow.Name,
		"version": cfg.Candleflow.Version,
	}).Info("starting candleflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown requested")
		cancel()
	}()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		if cfg.Storage.S3.Enabled {
			logger.InitCloudWatch(cfg.Storage.S3.Region, "Candleflow", cfg.Logging.DashboardName)
		}
		logger.StartReport(ctx, log, 30*time.Second)
	}

	symbols, err := config.LoadSymbols(*symbolPath)
	if err != nil {
		log.WithError(err).Error("failed to load symbol configuration")
		os.Exit(1)
	}

	from, to, err := parseDateRange(*fromFlag, *toFlag)
	if err != nil {
		log.WithError(err).Error("invalid date range")
		os.Exit(1)
	}
	dates := worker.DateRange(from, to)

	runner := worker.NewRunner(cfg, symbols)
	if err := runner.Run(ctx, symbols.Names(), dates); err != nil {
		log.WithError(err).Error("pipeline finished with failed symbols")
		os.Exit(1)
	}

	if *archiveFlag && cfg.Storage.S3.Enabled {
		archiver, err := writer.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		for _, symbol := range symbols.Names() {
			if err := archiver.ArchiveSymbol(ctx, symbol); err != nil {
				log.WithError(err).Error("archive pass failed")
				os.Exit(1)
			}
		}
	}

	log.Info("candleflow run complete")
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today
	if fromStr != "" {
		var err error
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	to := from
	if toStr != "" {
		var err error
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
