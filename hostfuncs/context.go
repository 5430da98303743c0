package hostfuncs

import (
	"context"
)

// HostContext wraps a context.Context for the duration of one host function call.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string
}

type hostContext struct {
	context.Context
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
	}
}

// FunctionName returns the name of the host function being invoked.
func (c *hostContext) FunctionName() string {
	return c.funcName
}

// HostContextFrom returns ctx if it is already a HostContext, otherwise wraps it.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

// CallInfo identifies the filter invocation a guest callback happens inside.
type CallInfo struct {
	DeviceID string
	Topic    string
	Sequence uint64
}

type callInfoKey struct{}

// WithCallInfo attaches the current invocation to ctx so guest diagnostics can
// be correlated with the reading that triggered them.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext returns the invocation attached by WithCallInfo.
func CallInfoFromContext(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
