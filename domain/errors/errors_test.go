package errors

import (
	stdErrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogbridge/fogbridge/domain/entities"
)

func TestErrorTypes_Unwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	tests := []struct {
		name string
		err  error
	}{
		{"ModuleLoadError", &ModuleLoadError{Phase: "compile", Err: cause}},
		{"GuestExecutionTrap", &GuestExecutionTrap{Function: "filter_value", Err: cause}},
		{"MessageParseError", &MessageParseError{Topic: "ic/fog/raw", Reason: "bad json", Err: cause}},
		{"BrokerConnectError", &BrokerConnectError{Broker: "tcp://localhost:1883", Err: cause}},
		{"PublishError", &PublishError{Topic: "ic/fog/processed", Err: cause}},
		{"PersistError", &PersistError{Store: "csv", Err: cause}},
		{"ConfigError", &ConfigError{Field: "broker", Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, cause)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrorTypes_As(t *testing.T) {
	err := fmt.Errorf("load: %w", &ExportNotFoundError{Name: "filter_value"})

	var notFound *ExportNotFoundError
	require.True(t, stdErrors.As(err, &notFound))
	assert.Equal(t, "filter_value", notFound.Name)
	assert.Equal(t, `module does not export "filter_value"`, notFound.Error())
}

func TestImportSignatureMismatch_Error(t *testing.T) {
	withWant := &ImportSignatureMismatch{Module: "env", Name: "log", Got: "(i64) -> ()", Want: "(i32) -> ()"}
	assert.Equal(t, "import env.log has signature (i64) -> (), want (i32) -> ()", withWant.Error())

	unknown := &ImportSignatureMismatch{Module: "env", Name: "abort", Got: "() -> ()"}
	assert.Equal(t, "import env.abort () -> () is not provided by the host", unknown.Error())
}

func TestGuestExecutionTrap_Timeout(t *testing.T) {
	trap := &GuestExecutionTrap{Function: "filter_value", Err: stdErrors.New("unreachable")}
	assert.False(t, trap.Timeout())
	assert.Contains(t, trap.Error(), "trapped")

	timeout := &GuestExecutionTrap{Function: "filter_value", Limit: 250 * time.Millisecond}
	assert.True(t, timeout.Timeout())
	assert.Equal(t, "guest filter_value exceeded 250ms", timeout.Error())
}

func TestMessageParseError_WithoutCause(t *testing.T) {
	err := &MessageParseError{Topic: "ic/fog/raw", Reason: "missing reading field"}
	assert.Equal(t, "parse message on ic/fog/raw: missing reading field", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestToErrorDetail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
		wantCode string
		timeout  bool
	}{
		{"load", &ModuleLoadError{Phase: "compile", Err: io.EOF}, "sandbox", "module_compile", false},
		{"export", &ExportNotFoundError{Name: "filter_value"}, "sandbox", "export_not_found", false},
		{"export signature", &ExportSignatureMismatch{Name: "filter_value"}, "sandbox", "export_signature", false},
		{"import signature", &ImportSignatureMismatch{Module: "env", Name: "log"}, "sandbox", "import_signature", false},
		{"trap", &GuestExecutionTrap{Function: "filter_value", Err: io.EOF}, "sandbox", "trap", false},
		{"timeout", &GuestExecutionTrap{Function: "filter_value", Limit: time.Second}, "timeout", "trap", true},
		{"argument", &InvalidArgumentError{Value: 1.5, Type: "i32"}, "validation", "argument_i32", false},
		{"memory", &GuestMemoryOutOfBounds{Offset: 70000, Length: 64, Size: 65536}, "sandbox", "memory_bounds", false},
		{"parse", &MessageParseError{Topic: "t", Reason: "r"}, "validation", "message_parse", false},
		{"broker", &BrokerConnectError{Broker: "b", Err: io.EOF}, "transport", "broker_connect", false},
		{"publish", &PublishError{Topic: "t", Err: io.EOF}, "transport", "publish", false},
		{"persist", &PersistError{Store: "csv", Err: io.EOF}, "storage", "persist_csv", false},
		{"config", &ConfigError{Field: "broker", Err: io.EOF}, "config", "broker", false},
		{"plain", io.EOF, "internal", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail := ToErrorDetail(fmt.Errorf("wrapped: %w", tt.err))
			require.NotNil(t, detail)
			assert.Equal(t, tt.wantType, detail.Type)
			assert.Equal(t, tt.wantCode, detail.Code)
			assert.Equal(t, tt.timeout, detail.IsTimeout)
		})
	}

	assert.Nil(t, ToErrorDetail(nil))
}

func TestToErrorDetail_PassesThroughDetail(t *testing.T) {
	detail := &entities.ErrorDetail{Type: "config", Message: "bad"}
	assert.Same(t, detail, ToErrorDetail(fmt.Errorf("x: %w", detail)))
}

func TestConfigError_Error(t *testing.T) {
	assert.Equal(t, "config validation failed for field 'broker': EOF",
		(&ConfigError{Field: "broker", Err: io.EOF}).Error())
	assert.Equal(t, "config validation failed: EOF", (&ConfigError{Err: io.EOF}).Error())
}
