package client

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Operation is a stress test operation.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
)

// Result is the outcome of one stress client.
type Result struct {
	OK       bool
	Duration time.Duration
	Size     int64
	Err      error
}

// Report aggregates the results of a stress run.
type Report struct {
	Operation   Operation
	Clients     int
	Success     int
	Fail        int
	AvgDuration time.Duration
	// AvgThroughput is the mean of per-client bytes per second over
	// successful clients.
	AvgThroughput float64
	TotalBytes    int64
	Errors        []error
}

// StressConfig describes a stress run. Each client uses its own connection.
type StressConfig struct {
	Addr      string
	Operation Operation
	FileName  string
	// Content is uploaded by every client in upload mode.
	Content []byte
	Clients int
	Timeout time.Duration
}

// Stress runs Clients concurrent uploads or downloads of the same file.
func Stress(ctx context.Context, cfg StressConfig) (*Report, error) {
	if cfg.Clients < 1 {
		return nil, fmt.Errorf("clients must be positive, got %d", cfg.Clients)
	}
	if cfg.Operation != OpUpload && cfg.Operation != OpDownload {
		return nil, fmt.Errorf("unknown operation %q", cfg.Operation)
	}

	results := make([]Result, cfg.Clients)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Clients; i++ {
		g.Go(func() error {
			results[i] = runOne(ctx, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(cfg, results), nil
}

func runOne(ctx context.Context, cfg StressConfig) Result {
	start := time.Now()

	conn, err := Dial(ctx, cfg.Addr, cfg.Timeout)
	if err != nil {
		return Result{Duration: time.Since(start), Err: err}
	}
	defer conn.Close()

	var size int64
	switch cfg.Operation {
	case OpUpload:
		_, err = conn.Upload(cfg.FileName, bytes.NewReader(cfg.Content))
		size = int64(len(cfg.Content))
	case OpDownload:
		var data []byte
		data, err = conn.Download(cfg.FileName)
		size = int64(len(data))
	}

	r := Result{Duration: time.Since(start), Err: err}
	if err == nil {
		r.OK = true
		r.Size = size
	}
	return r
}

func summarize(cfg StressConfig, results []Result) *Report {
	report := &Report{Operation: cfg.Operation, Clients: len(results)}

	var total time.Duration
	var throughput float64
	for _, r := range results {
		total += r.Duration
		if !r.OK {
			report.Fail++
			report.Errors = append(report.Errors, r.Err)
			continue
		}
		report.Success++
		report.TotalBytes += r.Size
		if secs := r.Duration.Seconds(); secs > 0 {
			throughput += float64(r.Size) / secs
		}
	}

	if len(results) > 0 {
		report.AvgDuration = total / time.Duration(len(results))
	}
	if report.Success > 0 {
		report.AvgThroughput = throughput / float64(report.Success)
	}
	return report
}
