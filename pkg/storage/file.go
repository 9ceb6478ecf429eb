package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"igengage/pkg/engagement"
)

// CSVHeader is the column order written by the CSV sink
var CSVHeader = []string{
	"username", "followers", "posts_analyzed",
	"avg_engagement_score", "engagement_rate_pct", "error",
}

// JSONLSink appends one JSON object per line
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink opens path for appending, creating parent directories
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes result as a single line
func (s *JSONLSink) Append(ctx context.Context, result engagement.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result for %s: %w", result.Username, err)
	}
	return nil
}

// Close closes the underlying file
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// CSVSink appends one row per result. The header is written once, when the
// file is empty.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink opens path for appending, creating parent directories
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	s := &CSVSink{file: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}
	if info.Size() == 0 {
		if err := s.writeRow(CSVHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes result as a CSV row and flushes it
func (s *CSVSink) Append(ctx context.Context, result engagement.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRow([]string{
		result.Username,
		strconv.FormatInt(result.Followers, 10),
		strconv.Itoa(result.PostsAnalyzed),
		strconv.FormatInt(result.AvgEngagementScore, 10),
		strconv.FormatFloat(result.EngagementRatePct, 'f', 2, 64),
		result.Error,
	})
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return f, nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
