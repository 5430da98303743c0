package ports

import (
	"context"

	"github.com/fogbridge/fogbridge/domain/entities"
)

// Filter runs one reading through the sandboxed filter. Implementations
// serialize calls; see host.Invoker.
type Filter interface {
	InvokeReading(ctx context.Context, reading entities.TelemetryReading) (float64, error)
}
