// Package errors provides the error kinds of the fog bridge.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/fogbridge/fogbridge/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can describe themselves as
// a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

var (
	// ErrNotLoaded is returned when the sandbox is used before Load.
	ErrNotLoaded = stdErrors.New("sandbox module not loaded")

	// ErrInstanceClosed is returned when the guest instance was closed by a trap
	// and could not be replaced.
	ErrInstanceClosed = stdErrors.New("sandbox instance closed")
)

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ModuleLoadError reports a module binary that could not be compiled or instantiated.
type ModuleLoadError struct {
	Err   error
	Phase string // "read", "compile", "instantiate", "initialize"
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("module %s failed: %v", e.Phase, e.Err)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ModuleLoadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "module_" + e.Phase}
}

// ExportNotFoundError reports a required export missing from the module.
type ExportNotFoundError struct {
	Name string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("module does not export %q", e.Name)
}

// ToErrorDetail implements DetailedError.
func (e *ExportNotFoundError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "export_not_found"}
}

// ImportSignatureMismatch reports a module import the host does not provide in
// the declared shape.
type ImportSignatureMismatch struct {
	Module string
	Name   string
	Got    string
	Want   string
}

func (e *ImportSignatureMismatch) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("import %s.%s %s is not provided by the host", e.Module, e.Name, e.Got)
	}
	return fmt.Sprintf("import %s.%s has signature %s, want %s", e.Module, e.Name, e.Got, e.Want)
}

// ToErrorDetail implements DetailedError.
func (e *ImportSignatureMismatch) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "import_signature"}
}

// ExportSignatureMismatch reports a required export whose shape breaks the ABI.
type ExportSignatureMismatch struct {
	Name string
	Got  string
	Want string
}

func (e *ExportSignatureMismatch) Error() string {
	return fmt.Sprintf("export %q has signature %s, want %s", e.Name, e.Got, e.Want)
}

// ToErrorDetail implements DetailedError.
func (e *ExportSignatureMismatch) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "export_signature"}
}

// GuestExecutionTrap reports a failed or timed-out call into the guest.
type GuestExecutionTrap struct {
	Err      error
	Function string
	Limit    time.Duration // set when the wall-clock bound was exceeded
}

func (e *GuestExecutionTrap) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("guest %s exceeded %v", e.Function, e.Limit)
	}
	return fmt.Sprintf("guest %s trapped: %v", e.Function, e.Err)
}

func (e *GuestExecutionTrap) Unwrap() error {
	return e.Err
}

// Timeout reports whether the trap was caused by the execution bound.
func (e *GuestExecutionTrap) Timeout() bool {
	return e.Limit > 0
}

// ToErrorDetail implements DetailedError.
func (e *GuestExecutionTrap) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "trap"}
	if e.Timeout() {
		detail.Type = "timeout"
		detail.IsTimeout = true
	}
	return detail
}

// InvalidArgumentError reports a value that cannot be passed to the guest
// without loss in the parameter type the module declares.
type InvalidArgumentError struct {
	Value float64
	Type  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("value %v is not representable as %s", e.Value, e.Type)
}

// ToErrorDetail implements DetailedError.
func (e *InvalidArgumentError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "argument_" + e.Type}
}

// GuestMemoryOutOfBounds reports a guest-supplied offset outside linear memory.
type GuestMemoryOutOfBounds struct {
	Offset uint32
	Length uint32
	Size   uint32
}

func (e *GuestMemoryOutOfBounds) Error() string {
	return fmt.Sprintf("guest read of %d bytes at offset %d exceeds memory size %d", e.Length, e.Offset, e.Size)
}

// ToErrorDetail implements DetailedError.
func (e *GuestMemoryOutOfBounds) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "sandbox", Code: "memory_bounds"}
}

// MessageParseError reports an inbound payload that is not a telemetry reading.
type MessageParseError struct {
	Err    error
	Topic  string
	Reason string
}

func (e *MessageParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse message on %s: %s: %v", e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse message on %s: %s", e.Topic, e.Reason)
}

func (e *MessageParseError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *MessageParseError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "message_parse"}
}

// BrokerConnectError reports a failure to reach the message broker.
type BrokerConnectError struct {
	Err    error
	Broker string
}

func (e *BrokerConnectError) Error() string {
	return fmt.Sprintf("connect to broker %s failed: %v", e.Broker, e.Err)
}

func (e *BrokerConnectError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BrokerConnectError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "transport", Code: "broker_connect"}
}

// PublishError reports a record that could not be republished.
type PublishError struct {
	Err   error
	Topic string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *PublishError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "transport", Code: "publish"}
}

// PersistError reports a record that could not be appended to a durable store.
type PersistError struct {
	Err   error
	Store string
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist to %s failed: %v", e.Store, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *PersistError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "storage", Code: "persist_" + e.Store}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}
