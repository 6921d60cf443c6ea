package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServe_EmptyAddrDisabled(t *testing.T) {
	assert.NoError(t, Serve(context.Background(), ""))
}

func TestServe_BadAddr(t *testing.T) {
	assert.Error(t, Serve(context.Background(), "256.0.0.1:-1"))
}

func TestServe_ShutdownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}
