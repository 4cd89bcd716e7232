package asynctask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsValue(t *testing.T) {
	ch := Run(context.Background(), func() (int, error) {
		return 42, nil
	})

	select {
	case r := <-ch:
		require.NoError(t, r.Err)
		assert.Equal(t, 42, r.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestRun_PropagatesError(t *testing.T) {
	wantErr := errors.New("checksum failed")
	ch := Run(context.Background(), func() (string, error) {
		return "", wantErr
	})

	r := <-ch
	assert.ErrorIs(t, r.Err, wantErr)
}

func TestRun_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})

	ch := Run(ctx, func() (int, error) {
		<-block
		return 1, nil
	})

	cancel()

	select {
	case r := <-ch:
		assert.ErrorIs(t, r.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to propagate")
	}
	close(block)
}

func TestRunSync(t *testing.T) {
	r := RunSync(func() (int, error) { return 7, nil })
	assert.Equal(t, 7, r.Value)
	assert.NoError(t, r.Err)
}
