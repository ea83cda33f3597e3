// Package export converts committed segment data into parquet files for
// downstream analytics. Only the committed region of a segment is exported;
// the provisional bar never leaves the binary store.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"candleflow/logger"
	"candleflow/models"
	"candleflow/query"
)

// CandleRecord is the parquet row schema for an exported bar.
type CandleRecord struct {
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timeframe string  `parquet:"name=timeframe, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE"`
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// Exporter renders committed segment regions as parquet files.
type Exporter struct {
	masterDir   string
	compression string
	log         *logger.Log
}

// NewExporter builds an exporter over masterDir. Compression is one of
// snappy, gzip, lzo or empty for uncompressed.
func NewExporter(masterDir, compression string) *Exporter {
	return &Exporter{
		masterDir:   masterDir,
		compression: compression,
		log:         logger.GetLogger(),
	}
}

// ExportSegment writes every committed bar of symbol/timeframe to outPath.
// It returns the number of exported bars.
func (e *Exporter) ExportSegment(symbol, timeframe, outPath string) (int, error) {
	log := e.log.WithComponent("export").WithFields(logger.Fields{
		"symbol":    symbol,
		"timeframe": timeframe,
		"out":       outPath,
	})

	cache, err := query.Open(e.masterDir, symbol, timeframe)
	if err != nil {
		return 0, err
	}
	defer cache.Close()

	data, err := e.render(symbol, timeframe, cache)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, &models.TransactionError{Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return 0, &models.TransactionError{Op: "write parquet", Err: err}
	}

	log.WithFields(logger.Fields{"bars": cache.Len(), "file_size": len(data)}).Info("segment exported")
	return cache.Len(), nil
}

func (e *Exporter) render(symbol, timeframe string, cache *query.Cache) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(CandleRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch e.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for i := 0; i < cache.Len(); i++ {
		rec := cache.At(i)
		row := CandleRecord{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: int64(rec.Timestamp),
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

// DefaultExportName builds a conventional file name for an export run.
func DefaultExportName(symbol, timeframe string) string {
	return fmt.Sprintf("%s_%s_%s.parquet", symbol, timeframe, time.Now().UTC().Format("20060102T150405"))
}
