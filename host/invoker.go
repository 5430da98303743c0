package host

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/sys"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/hostfuncs"
	"github.com/fogbridge/fogbridge/internal/abi"
)

// DefaultInvokeTimeout bounds a single filter_value call.
const DefaultInvokeTimeout = 250 * time.Millisecond

// Invoker performs filter calls against a Host, one at a time. The lock is held
// for the whole call, including any env.log callbacks the guest makes, because
// the guest's filter state is not safe for interleaved calls.
type Invoker struct {
	mu      sync.Mutex
	host    *Host
	timeout time.Duration
	seq     uint64
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithInvokeTimeout sets the wall-clock bound per call. Zero disables it.
func WithInvokeTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = d
	}
}

// NewInvoker creates an Invoker for h.
func NewInvoker(h *Host, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		host:    h,
		timeout: DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke passes raw to filter_value and returns the filtered value.
//
// The value is converted to the declared parameter type first; a value that
// does not fit is an InvalidArgumentError and the guest is not called. A guest
// failure, a NaN or infinite result, or a call exceeding the time bound is a
// GuestExecutionTrap. Failed calls are never retried.
func (i *Invoker) Invoke(ctx context.Context, raw float64) (float64, error) {
	return i.invoke(ctx, raw, hostfuncs.CallInfo{})
}

// InvokeReading is Invoke for a parsed reading; guest diagnostics emitted during
// the call are tagged with the reading's device.
func (i *Invoker) InvokeReading(ctx context.Context, reading entities.TelemetryReading) (float64, error) {
	return i.invoke(ctx, reading.RawValue, hostfuncs.CallInfo{
		DeviceID: reading.DeviceID,
		Topic:    reading.Topic,
	})
}

func (i *Invoker) invoke(ctx context.Context, raw float64, info hostfuncs.CallInfo) (float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	inst, err := i.host.acquire(ctx)
	if err != nil {
		return 0, err
	}

	param, err := abi.EncodeParam(inst.contract.FilterParam, raw)
	if err != nil {
		return 0, err
	}

	i.seq++
	info.Sequence = i.seq
	callCtx := hostfuncs.WithCallInfo(ctx, info)
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, i.timeout)
		defer cancel()
	}

	results, err := inst.filter.Call(callCtx, param)
	if err != nil {
		trap := &sdkErrors.GuestExecutionTrap{Function: FilterExport, Err: err}
		if i.timedOut(ctx, callCtx, err) {
			trap.Limit = i.timeout
		}
		return 0, trap
	}
	if len(results) != 1 {
		return 0, &sdkErrors.GuestExecutionTrap{
			Function: FilterExport,
			Err:      fmt.Errorf("expected 1 result, got %d", len(results)),
		}
	}

	v := abi.DecodeResult(inst.contract.FilterResult, results[0])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &sdkErrors.GuestExecutionTrap{
			Function: FilterExport,
			Err:      fmt.Errorf("non-finite result %v", v),
		}
	}
	return v, nil
}

// timedOut reports whether a failed call hit the invoker's own deadline rather
// than a cancellation of the caller's context.
func (i *Invoker) timedOut(parent, callCtx context.Context, err error) bool {
	if i.timeout <= 0 || parent.Err() != nil {
		return false
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded {
		return true
	}
	return errors.Is(callCtx.Err(), context.DeadlineExceeded)
}
