package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection lost sentinel", ErrConnectionLost, true},
		{"handshake sentinel", ErrHandshakeFailed, true},
		{"wrapped connection timeout", fmt.Errorf("dial: %w", ErrConnectionTimeout), true},
		{"context deadline", context.DeadlineExceeded, true},
		{"timeout pattern in message", errors.New("i/o timeout reading frame"), true},
		{"malformed payload", ErrMalformedPayload, false},
		{"invalid config", ErrInvalidConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrDecodeFailed))
	assert.True(t, IsInvalid(ErrMalformedPayload))
	assert.True(t, IsInvalid(ErrEmptyFrame))
	assert.False(t, IsInvalid(ErrConnectionLost))
	assert.False(t, IsInvalid(nil))
}

func TestWrapBuildsContextualMessage(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "stream", "dispatch", "decode frame")
	require.Error(t, err)
	assert.Equal(t, "stream.dispatch: decode frame failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.Nil(t, Wrap(nil, "stream", "dispatch", "decode frame"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("socket closed")

	transient := WrapTransient(base, "stream", "readLoop", "read frame")
	require.Error(t, transient)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))
	assert.True(t, errors.Is(transient, base))

	invalid := WrapInvalid(base, "telemetry", "Classify", "parse payload")
	assert.True(t, IsInvalid(invalid))
	assert.Equal(t, ErrorInvalid, Classify(invalid))

	fatal := WrapFatal(base, "config", "Load", "read file")
	assert.True(t, IsFatal(fatal))

	var ce *ClassifiedError
	require.True(t, errors.As(transient, &ce))
	assert.Equal(t, "stream", ce.Component)
	assert.Equal(t, "readLoop", ce.Operation)
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestRetryConfigShouldRetry(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrConnectionLost, 0))
	assert.False(t, rc.ShouldRetry(ErrConnectionLost, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrMalformedPayload, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))
}

func TestRetryConfigToRetryConfig(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    4,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 1.5,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1.5, cfg.Multiplier)
	assert.True(t, cfg.AddJitter)
}
