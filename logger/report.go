package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type streamStat struct {
	events int64
	bytes  int64
}

var (
	errorsAggregate int64
	errorsResample  int64
	warnsAggregate  int64
	warnsResample   int64
	segmentReads    int64
	segmentWrites   int64
	indexCommits    int64
	resampledBars   int64
	archiveUploads  int64
	streams         sync.Map // map[string]*streamStat
)

func recordWarn(component string) {
	if strings.Contains(component, "aggregat") {
		atomic.AddInt64(&warnsAggregate, 1)
	} else if strings.Contains(component, "resampl") {
		atomic.AddInt64(&warnsResample, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "aggregat") {
		atomic.AddInt64(&errorsAggregate, 1)
	} else if strings.Contains(component, "resampl") {
		atomic.AddInt64(&errorsResample, 1)
	}
}

// IncrementSegmentRead accounts one batch read from a segment file.
func IncrementSegmentRead(size int) {
	atomic.AddInt64(&segmentReads, 1)
	recordStream("segment_read", size)
}

// IncrementSegmentWrite accounts one batch written to a segment file.
func IncrementSegmentWrite(size int) {
	atomic.AddInt64(&segmentWrites, 1)
	recordStream("segment_write", size)
}

// IncrementIndexCommit accounts one atomic progress-index write.
func IncrementIndexCommit() {
	atomic.AddInt64(&indexCommits, 1)
}

// IncrementResampledBars accounts bars emitted by the resample engine.
func IncrementResampledBars(n int) {
	atomic.AddInt64(&resampledBars, int64(n))
}

// IncrementArchiveUpload accounts one segment object uploaded to S3.
func IncrementArchiveUpload(size int64) {
	atomic.AddInt64(&archiveUploads, 1)
	recordStream("archive_upload", int(size))
}

func recordStream(name string, size int) {
	v, _ := streams.LoadOrStore(name, &streamStat{})
	ss := v.(*streamStat)
	atomic.AddInt64(&ss.events, 1)
	atomic.AddInt64(&ss.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	streamData := map[string]map[string]int64{}
	streams.Range(func(k, v any) bool {
		name := k.(string)
		ss := v.(*streamStat)
		streamData[name] = map[string]int64{
			"events": atomic.LoadInt64(&ss.events),
			"bytes":  atomic.LoadInt64(&ss.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_aggregate": atomic.LoadInt64(&errorsAggregate),
		"errors_resample":  atomic.LoadInt64(&errorsResample),
		"warns_aggregate":  atomic.LoadInt64(&warnsAggregate),
		"warns_resample":   atomic.LoadInt64(&warnsResample),
		"segment_reads":    atomic.LoadInt64(&segmentReads),
		"segment_writes":   atomic.LoadInt64(&segmentWrites),
		"index_commits":    atomic.LoadInt64(&indexCommits),
		"resampled_bars":   atomic.LoadInt64(&resampledBars),
		"archive_uploads":  atomic.LoadInt64(&archiveUploads),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"streams":          streamData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsAggregate"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsAggregate)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsResample"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsResample)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsAggregate"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsAggregate)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsResample"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsResample)))},
		cwtypes.MetricDatum{MetricName: aws.String("SegmentReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&segmentReads)))},
		cwtypes.MetricDatum{MetricName: aws.String("SegmentWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&segmentWrites)))},
		cwtypes.MetricDatum{MetricName: aws.String("IndexCommits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&indexCommits)))},
		cwtypes.MetricDatum{MetricName: aws.String("ResampledBars"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&resampledBars)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArchiveUploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&archiveUploads)))},
	)

	for name, stats := range streamData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("StreamEvents"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stream"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["events"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("StreamBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stream"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
