package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_SleepReturnsAfterDuration(t *testing.T) {
	start := time.Now()
	err := Real{}.Sleep(context.Background(), 5*time.Millisecond)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestReal_SleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Real{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReal_SleepZeroDuration(t *testing.T) {
	assert.NoError(t, Real{}.Sleep(context.Background(), 0))
}
