// Package main drives bulk enrichment against a running catalog service.
// It reads course links from a CSV file, paces requests under the
// configured rate budget, and appends one JSON result line per course.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"course-catalog/internal/config"
	"course-catalog/internal/logging"
	"course-catalog/internal/policy/ratelimit"
)

type enrichInput struct {
	Link       string `json:"link"`
	Provider   string `json:"provider,omitempty"`
	CourseName string `json:"courseName,omitempty"`
}

type enrichResult struct {
	Link    string          `json:"link"`
	Status  int             `json:"status"`
	Course  json.RawMessage `json:"course,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Elapsed string          `json:"elapsed"`
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	inputPath := flag.String("input", "courses.csv", "CSV file with link,provider,course_name columns")
	outputPath := flag.String("output", "enrich_results.jsonl", "Where to append per-course results")
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the catalog service")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *inputPath, *outputPath, strings.TrimRight(*serverURL, "/")); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("batch interrupted")
			return
		}
		logger.Fatal("batch failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, inputPath, outputPath, serverURL string) error {
	client := &http.Client{Timeout: cfg.TaskWaitTimeout() + cfg.ModelTimeout()}

	if !cfg.Batch.SkipHealthCheck {
		if err := checkHealth(ctx, client, serverURL); err != nil {
			return err
		}
	}

	inputs, err := readInputs(inputPath)
	if err != nil {
		return err
	}
	logger.Info("batch started",
		zap.Int("courses", len(inputs)),
		zap.Int("rate_limit_rpm", cfg.Enrich.RateLimitRPM),
		zap.Int("batch_size", cfg.Enrich.BatchSize))

	out, err := openOutput(outputPath, cfg.Batch.ClearOutput)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()
	encoder := json.NewEncoder(out)

	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.Enrich.RateLimitRPM})
	batchSize := cfg.Enrich.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	failures := 0
	for i, input := range inputs {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		result := enrichOne(ctx, client, serverURL, input)
		if result.Status < 200 || result.Status >= 300 {
			failures++
			logger.Warn("enrich failed",
				zap.String("link", input.Link),
				zap.Int("status", result.Status),
				zap.String("detail", result.Detail))
		} else {
			logger.Info("enriched",
				zap.String("link", input.Link),
				zap.String("elapsed", result.Elapsed))
		}
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}

		if (i+1)%batchSize == 0 && i+1 < len(inputs) {
			logger.Debug("batch pause", zap.Duration("cooldown", cfg.Cooldown()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Cooldown()):
			}
		}
	}

	logger.Info("batch complete",
		zap.Int("courses", len(inputs)),
		zap.Int("failures", failures))
	if failures > 0 {
		return fmt.Errorf("%d of %d courses failed", failures, len(inputs))
	}
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, serverURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog service unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readInputs parses the CSV. A header row naming a link column is
// skipped; blank lines and rows without a link are ignored.
func readInputs(path string) ([]enrichInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var inputs []enrichInput
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		link := strings.TrimSpace(record[0])
		if link == "" || strings.EqualFold(link, "link") {
			continue
		}
		input := enrichInput{Link: link}
		if len(record) > 1 {
			input.Provider = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			input.CourseName = strings.TrimSpace(record[2])
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func openOutput(path string, clear bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if clear {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

func enrichOne(ctx context.Context, client *http.Client, serverURL string, input enrichInput) enrichResult {
	start := time.Now()
	result := enrichResult{Link: input.Link}

	payload, err := json.Marshal(input)
	if err != nil {
		result.Detail = err.Error()
		result.Elapsed = time.Since(start).Round(time.Millisecond).String()
		return result
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, serverURL+"/courses/enrich", bytes.NewReader(payload),
	)
	if err != nil {
		result.Detail = err.Error()
		result.Elapsed = time.Since(start).Round(time.Millisecond).String()
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		result.Detail = err.Error()
		result.Elapsed = time.Since(start).Round(time.Millisecond).String()
		return result
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	result.Status = resp.StatusCode
	result.Elapsed = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Course = json.RawMessage(body)
	} else {
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			result.Detail = detail.Detail
		} else {
			result.Detail = strings.TrimSpace(string(body))
		}
	}
	return result
}
