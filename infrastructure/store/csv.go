package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
)

// CSVStore appends records to a comma-separated file. The header row is
// written when the file is created or found empty, never otherwise.
type CSVStore struct {
	mu        sync.Mutex
	file      io.WriteCloser
	w         *csv.Writer
	path      string
	precision int
	closed    bool
}

var _ ports.RecordStore = (*CSVStore)(nil)

// OpenCSV opens (or creates) path for appending. precision is the number of
// decimals written for the filtered column.
func OpenCSV(path string, precision int) (*CSVStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &sdkErrors.PersistError{Store: "csv", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &sdkErrors.PersistError{Store: "csv", Err: err}
	}

	s := &CSVStore{
		file:      f,
		w:         csv.NewWriter(f),
		path:      path,
		precision: precision,
	}
	if info.Size() == 0 {
		if err := s.writeRow(entities.CSVHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Name implements ports.RecordStore.
func (s *CSVStore) Name() string { return "csv" }

// Path returns the file being written.
func (s *CSVStore) Path() string { return s.path }

// Append writes one data row and flushes it.
func (s *CSVStore) Append(_ context.Context, rec entities.OutboundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &sdkErrors.PersistError{Store: "csv", Err: os.ErrClosed}
	}
	return s.writeRow(rec.CSVRow(s.precision))
}

func (s *CSVStore) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return &sdkErrors.PersistError{Store: "csv", Err: err}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return &sdkErrors.PersistError{Store: "csv", Err: fmt.Errorf("flush %s: %w", s.path, err)}
	}
	return nil
}

// Close flushes and closes the file. Safe to call more than once.
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	flushErr := s.w.Error()
	if err := s.file.Close(); err != nil {
		return err
	}
	return flushErr
}
