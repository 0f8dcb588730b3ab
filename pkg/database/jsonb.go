package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a jsonb column to a typed Go value.
type JSONB[T any] struct {
	Data T
}

// NewJSONB wraps a value for a jsonb column.
func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data}
}

func (p *JSONB[T]) Scan(src any) error {
	// src is a []byte from pq
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &p.Data)
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}
