// Package storage is the record layer under the domain stores.
//
// A Backend hands out named collections. Each collection is a key/value map
// of JSON documents that remembers insertion order: Put on an existing key
// replaces the value in place, Scan visits records oldest first.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names used by policyguard.
const (
	CollectionAgents    = "agents"
	CollectionPolicies  = "policies"
	CollectionAudit     = "audit"
	CollectionIncidents = "incidents"
)

var (
	// ErrNotFound is returned by Collection.Get for a missing key.
	ErrNotFound = errors.New("record not found")
	// ErrStorage wraps every I/O failure in a backend.
	ErrStorage = errors.New("storage error")
)

// Backend opens collections and releases backend resources on Close.
type Backend interface {
	Collection(name string) Collection
	Close() error
}

// Collection is the create/read/scan/update surface the stores rely on.
type Collection interface {
	// Put inserts or replaces the value stored under key. A replaced record
	// keeps its original position in scan order.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns ErrNotFound if key was never written.
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan calls fn for every record in insertion order. Returning an error
	// from fn stops the scan and is passed back to the caller unchanged.
	Scan(ctx context.Context, fn func(key string, value []byte) error) error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, c Collection, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("PutJSON %s: %w", key, err)
	}
	return c.Put(ctx, key, raw)
}

// ScanJSON decodes every record of c into a T, oldest first.
func ScanJSON[T any](ctx context.Context, c Collection) ([]T, error) {
	var out []T
	err := c.Scan(ctx, func(key string, value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("ScanJSON %s: %w: %w", key, ErrStorage, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
