package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestGoCtx_ClosesOnReturn(t *testing.T) {
	ran := false
	done := GoCtx(context.Background(), func(context.Context) { ran = true })
	waitClosed(t, done)
	assert.True(t, ran)
}

func TestGoCtx_ClosesOnPanic(t *testing.T) {
	done := GoCtx(context.Background(), func(context.Context) { panic("sink exploded") })
	waitClosed(t, done)
}

func TestGo_NilCtxSafe(t *testing.T) {
	//nolint:staticcheck
	done := GoCtx(nil, func(ctx context.Context) {
		assert.NotNil(t, ctx)
	})
	waitClosed(t, done)
	waitClosed(t, Go(func() {}))
}
