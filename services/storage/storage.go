// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage persists evaluation summaries in an embedded
// BadgerDB. It implements pipeline.Sink.
//
// Summaries are stored twice: by job id for direct lookup and under a
// document prefix so all evaluations of one booklet can be listed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gradewell/gradewell/services/pipeline"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound indicates no summary exists for the requested key.
var ErrNotFound = errors.New("storage: summary not found")

const (
	jobKeyPrefix = "summary:job:"
	docKeyPrefix = "summary:doc:"
)

// Config holds configuration for the summary store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful
	// for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are
	// disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration
}

// DefaultConfig returns production defaults: durable writes and a
// 5-minute GC interval.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed summary store.
//
// Thread Safety: safe for concurrent use; BadgerDB handles its own
// transaction isolation.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open creates a Store with the given configuration. The caller must
// Close it when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("storage: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("storage: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.Logger)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, logger *slog.Logger) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// Save persists a job summary under its job id and its document index
// key, atomically in one transaction.
func (s *Store) Save(ctx context.Context, summary *pipeline.JobSummary) error {
	if summary == nil {
		return errors.New("storage: summary must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("storage: marshal summary: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(jobKeyPrefix+summary.JobID), data); err != nil {
			return err
		}
		docKey := fmt.Sprintf("%s%s:%s", docKeyPrefix, summary.DocumentID, summary.JobID)
		return txn.Set([]byte(docKey), data)
	})
}

// GetSummary loads a summary by job id. Returns ErrNotFound when the
// job is unknown.
func (s *Store) GetSummary(ctx context.Context, jobID string) (*pipeline.JobSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var summary pipeline.JobSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &summary)
		})
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListByDocument returns every summary recorded for a document, oldest
// key first.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]*pipeline.JobSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(docKeyPrefix + documentID + ":")
	var summaries []*pipeline.JobSummary
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var summary pipeline.JobSummary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			})
			if err != nil {
				return err
			}
			summaries = append(summaries, &summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
