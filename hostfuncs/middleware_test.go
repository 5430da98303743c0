package hostfuncs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	panicking := func(context.Context, GuestMemory, []uint64) {
		panic("test panic")
	}

	wrapped := PanicRecoveryMiddleware(newTestLogger(&buf))(panicking)

	assert.NotPanics(t, func() {
		wrapped(NewHostContext(context.Background(), "log"), nil, nil)
	})

	records := decodeRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "host function panic recovered", records[0]["msg"])
	assert.Equal(t, "log", records[0]["function"])
	assert.Equal(t, "test panic", records[0]["panic"])
}

func TestPanicRecoveryMiddleware_NoPanic(t *testing.T) {
	called := false
	wrapped := PanicRecoveryMiddleware(nil)(func(context.Context, GuestMemory, []uint64) {
		called = true
	})

	wrapped(context.Background(), nil, nil)
	assert.True(t, called)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	wrapped := LoggingMiddleware(newTestLogger(&buf))(func(context.Context, GuestMemory, []uint64) {})

	wrapped(NewHostContext(context.Background(), "log"), nil, []uint64{16})

	records := decodeRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "DEBUG", records[0]["level"])
	assert.Equal(t, "log", records[0]["function"])
	assert.EqualValues(t, 1, records[0]["args"])
}

func TestMiddlewareOrder_FIFO(t *testing.T) {
	var callOrder []string
	tracing := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, mem GuestMemory, args []uint64) {
				callOrder = append(callOrder, name+"-before")
				next(ctx, mem, args)
				callOrder = append(callOrder, name+"-after")
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(tracing("mw1"), tracing("mw2")),
		WithFunction(Function{Name: "log", Handler: func(context.Context, GuestMemory, []uint64) {
			callOrder = append(callOrder, "handler")
		}}),
	)
	require.NoError(t, err)

	require.True(t, reg.Invoke(context.Background(), "log", nil, nil))
	assert.Equal(t, []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}, callOrder)
}
