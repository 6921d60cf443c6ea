package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"tickflow.com/internal/tick"
)

// CSV 每个 tick 一行 timestamp,symbol,price,volume；打开时清空文件并写表头
type CSV struct {
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

func (s *CSV) Name() string { return "csv" }

func (s *CSV) Path() string { return s.path }

func (s *CSV) Open(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	s.f = f
	s.w = csv.NewWriter(f)
	if err := s.writeRow(tick.Header()); err != nil {
		_ = s.Close()
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Write 每行都 flush，进程中途退出时文件里也是完整的行
func (s *CSV) Write(ctx context.Context, t tick.Tick) error {
	if s.w == nil {
		return ErrNotOpen
	}
	return s.writeRow(t.Row())
}

func (s *CSV) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSV) Close() error {
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.f.Close()
	s.f, s.w = nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
