package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
)

// decodeDocument parses a collection document: a top-level JSON array of objects.
// Numbers are kept as json.Number so they survive a rewrite unchanged.
func decodeDocument(source string, data []byte) ([]domain.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Record{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []domain.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w: %w", source, domain.ErrInvalidDocument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode %s: %w: trailing data after array", source, domain.ErrInvalidDocument)
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("failed to decode %s: %w: entry %d is not an object", source, domain.ErrInvalidDocument, i)
		}
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

func encodeDocument(records []domain.Record) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w: %w", domain.ErrInvalidDocument, err)
	}
	return append(data, '\n'), nil
}
