// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog persists tool records in BadgerDB.
//
// Design choices:
//
//  1. BadgerDB (embedded, no network dependency): the catalog is service
//     infrastructure holding at most a few hundred small records. A lookup
//     by tool name does not benefit from an external store; embedded access
//     keeps synthesis round-trips cheap and removes an availability
//     dependency from the execution path.
//
//  2. JSON encoding: records carry heterogeneous parameter defaults (any),
//     which JSON round-trips losslessly enough for our purposes and keeps
//     the stored bytes inspectable with badger tooling.
//
//  3. No TTL: unlike routing caches, tool records are durable product
//     state. Deletion is explicit through Delete.
//
// Storage layout:
//
//	tools/v1/{name}  →  JSON-encoded Record
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// keyPrefix is prepended to the tool name to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const keyPrefix = "tools/v1/"

// Record is the persisted form of a tool. It mirrors
// datatypes.ToolRecord minus the compiled handle, which is never
// serialized.
type Record struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	InputType   string                    `json:"input_type,omitempty"`
	OutputType  string                    `json:"output_type,omitempty"`
	Schema      datatypes.ParameterSchema `json:"parameter_schema"`
	SourceText  string                    `json:"source_text,omitempty"`
	Provenance  datatypes.Provenance      `json:"provenance"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Store is a BadgerDB-backed tool catalog.
//
// Thread Safety: Store is safe for concurrent use; BadgerDB serializes
// conflicting writes internally and reads run in snapshot transactions.
type Store struct {
	db *dgbadger.DB
}

// Open opens (or creates) a catalog at dir.
func Open(dir string) (*Store, error) {
	opts := dgbadger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for service logs
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral catalog. Used by tests and by
// deployments that do not configure a catalog directory.
func OpenInMemory() (*Store, error) {
	opts := dgbadger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory catalog: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Find returns the record for name, or (nil, nil) when absent.
func (s *Store) Find(ctx context.Context, name string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode record %q: %w", name, err)
			}
			rec = &r
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog find %q: %w", name, err)
	}
	return rec, nil
}

// GetSource returns the stored source text for name, or "" when the tool
// is absent or has no source.
func (s *Store) GetSource(ctx context.Context, name string) (string, error) {
	rec, err := s.Find(ctx, name)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.SourceText, nil
}

// Upsert stores or replaces the record under rec.Name, preserving
// CreatedAt across updates.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Name == "" {
		return fmt.Errorf("%w: record has no name", datatypes.ErrSave)
	}

	existing, err := s.Find(ctx, rec.Name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.UpdatedAt = now
	if existing != nil && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", datatypes.ErrSave, rec.Name, err)
	}
	err = s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(keyPrefix+rec.Name), payload)
	})
	if err != nil {
		return fmt.Errorf("%w: write %q: %v", datatypes.ErrSave, rec.Name, err)
	}

	slog.Debug("catalog record upserted",
		slog.String("tool", rec.Name),
		slog.String("provenance", string(rec.Provenance)),
		slog.Int("source_len", len(rec.SourceText)),
	)
	return nil
}

// Delete removes the record for name. Deleting an absent name is not an
// error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Delete([]byte(keyPrefix + name))
	})
	if err != nil {
		return fmt.Errorf("catalog delete %q: %w", name, err)
	}
	return nil
}

// List returns all records, ordered by name (badger iterates keys in
// lexicographic order).
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []Record
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), keyPrefix)
			err := item.Value(func(val []byte) error {
				var r Record
				if err := json.Unmarshal(val, &r); err != nil {
					// One corrupt record should not hide the rest.
					slog.Warn("catalog skipping undecodable record",
						slog.String("tool", name),
						slog.String("error", err.Error()),
					)
					return nil
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	return records, nil
}
