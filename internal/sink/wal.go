package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tickflow.com/internal/tick"
	"tickflow.com/pkg/wal"
)

// WAL 以 len+crc 帧写 JSON 记录，Close 时 fsync
type WAL struct {
	path string
	// SyncEvery>0 时每 N 条记录 fsync 一次
	syncEvery int

	w       *wal.Writer
	pending int
	buf     []byte // 只有消费者协程写，复用
}

func NewWAL(path string, syncEvery int) *WAL {
	return &WAL{path: path, syncEvery: syncEvery}
}

func (s *WAL) Name() string { return "wal" }

func (s *WAL) Open(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	w, err := wal.OpenWrite(s.path, wal.Options{Truncate: true})
	if err != nil {
		return err
	}
	s.w = w
	s.pending = 0
	return nil
}

func (s *WAL) Write(ctx context.Context, t tick.Tick) error {
	if s.w == nil {
		return ErrNotOpen
	}
	s.buf = AppendTick(s.buf[:0], t)
	if len(s.buf) == 0 {
		return fmt.Errorf("encode tick %s: empty payload", t.Symbol)
	}
	if err := s.w.Append(s.buf); err != nil {
		return err
	}
	s.pending++
	if s.syncEvery > 0 && s.pending >= s.syncEvery {
		s.pending = 0
		return s.w.Sync()
	}
	return s.w.Flush()
}

func (s *WAL) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// ReplayWAL 按写入顺序读回 WAL sink 的文件
func ReplayWAL(path string, allowTruncatedTail bool, fn func(tick.Tick) error) (wal.ReplayStats, error) {
	return wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: allowTruncatedTail}, func(payload []byte) error {
		t, err := DecodeTick(payload)
		if err != nil {
			return fmt.Errorf("decode tick: %w", err)
		}
		return fn(t)
	})
}
