package ports

import (
	"context"

	"github.com/fogbridge/fogbridge/domain/entities"
)

// RecordStore is an append-only durable store of outbound records.
type RecordStore interface {
	// Name identifies the store in logs and errors.
	Name() string

	// Append writes one record. Failures are reported as PersistError.
	Append(ctx context.Context, rec entities.OutboundRecord) error

	// Close flushes and releases the store.
	Close() error
}
