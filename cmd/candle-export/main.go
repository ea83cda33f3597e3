package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"candleflow/config"
	"candleflow/export"
	"candleflow/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	symbol := flag.String("symbol", "", "Symbol to export")
	timeframe := flag.String("timeframe", "", "Timeframe to export")
	outDir := flag.String("out", "export", "Output directory for parquet files")
	compression := flag.String("compression", "snappy", "Parquet compression: snappy, gzip, lzo or none")

	flag.Parse()

	if *symbol == "" || *timeframe == "" {
		log.Error("both -symbol and -timeframe are required")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	exporter := export.NewExporter(cfg.Storage.MasterDir, *compression)
	outPath := filepath.Join(*outDir, export.DefaultExportName(*symbol, *timeframe))
	bars, err := exporter.ExportSegment(*symbol, *timeframe, outPath)
	if err != nil {
		log.WithError(err).Error("export failed")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"symbol":    *symbol,
		"timeframe": *timeframe,
		"bars":      bars,
		"out":       outPath,
	}).Info("export complete")
}
