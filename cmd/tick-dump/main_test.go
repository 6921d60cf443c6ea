package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
)

func writeWAL(t *testing.T, path string, syms ...string) {
	t.Helper()
	s := sink.NewWAL(path, 0)
	require.NoError(t, s.Open(context.Background()))
	for i, sym := range syms {
		require.NoError(t, s.Write(context.Background(), tick.Tick{
			Timestamp: time.UnixMilli(1_700_000_000_000 + int64(i)),
			Symbol:    sym,
			Price:     decimal.RequireFromString("150.5"),
			Volume:    int64(1000 + i),
		}))
	}
	require.NoError(t, s.Close())
}

func TestDump_AllAndFiltered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.wal")
	writeWAL(t, path, "GOOG", "AAPL", "GOOG")

	var buf bytes.Buffer
	stats, err := dump(&buf, options{path: path})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Timestamp,Symbol,Price,Volume", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",GOOG,150.50,1000"), lines[1])

	buf.Reset()
	_, err = dump(&buf, options{path: path, symbol: "GOOG", noHeader: true})
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestDump_RepairTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.wal")
	writeWAL(t, path, "GOOG", "AAPL")
	full, err := os.Stat(path)
	require.NoError(t, err)

	// 模拟最后一条只写了一半
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 40, 1, 2})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = dump(&bytes.Buffer{}, options{path: path, allowTail: false})
	assert.Error(t, err)

	stats, err := dump(&bytes.Buffer{}, options{path: path, repair: true})
	require.NoError(t, err)
	assert.True(t, stats.TruncatedTail)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, full.Size(), stats.LastGoodOffset)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, full.Size(), after.Size())
}

func TestDump_MissingFile(t *testing.T) {
	_, err := dump(&bytes.Buffer{}, options{path: filepath.Join(t.TempDir(), "nope.wal")})
	assert.Error(t, err)
}
