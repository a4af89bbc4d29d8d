// Package uuid provides run identifier helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a UUIDv7 string. Version 7 IDs sort by creation time, so
// runs line up chronologically in aggregated logs.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
