// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/bureau-foundation/buildwright/lib/codec"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

const (
	buildPrefix   = "build/"
	builderPrefix = "builder/"
)

// BadgerConfig configures a Badger store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// Logger receives badger's internal log output. Nil silences it.
	Logger *slog.Logger
}

// Badger is a Store backed by an embedded badger database. Records are
// CBOR-encoded under "build/<id>" and "builder/<id>" keys.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (creating if necessary) the database described by
// config.
func OpenBadger(config BadgerConfig) (*Badger, error) {
	var options badger.Options
	if config.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, errors.New("store: path is required for a persistent database")
		}
		if err := os.MkdirAll(config.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", config.Path, err)
		}
		options = badger.DefaultOptions(config.Path).WithSyncWrites(true)
	}
	options = options.WithNumVersionsToKeep(1)
	if config.Logger != nil {
		options = options.WithLogger(&badgerLogger{logger: config.Logger})
	} else {
		options = options.WithLogger(nil)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close releases the database.
func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) Build(ctx context.Context, id string) (*schema.Build, error) {
	var build schema.Build
	if err := s.get(ctx, buildPrefix+id, &build); err != nil {
		return nil, fmt.Errorf("loading build %s: %w", id, err)
	}
	return &build, nil
}

func (s *Badger) SaveBuild(ctx context.Context, build *schema.Build) error {
	if build.ID == "" {
		return errors.New("saving build: empty id")
	}
	if err := s.put(ctx, buildPrefix+build.ID, build); err != nil {
		return fmt.Errorf("saving build %s: %w", build.ID, err)
	}
	return nil
}

func (s *Badger) Builder(ctx context.Context, id string) (*schema.Builder, error) {
	var builder schema.Builder
	if err := s.get(ctx, builderPrefix+id, &builder); err != nil {
		return nil, fmt.Errorf("loading builder %s: %w", id, err)
	}
	return &builder, nil
}

func (s *Badger) SaveBuilder(ctx context.Context, builder *schema.Builder) error {
	if builder.ID == "" {
		return errors.New("saving builder: empty id")
	}
	if err := s.put(ctx, builderPrefix+builder.ID, builder); err != nil {
		return fmt.Errorf("saving builder %s: %w", builder.ID, err)
	}
	return nil
}

func (s *Badger) BuildsForBuilder(ctx context.Context, builderID string) ([]*schema.Build, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var builds []*schema.Build
	err := s.db.View(func(txn *badger.Txn) error {
		iterator := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(buildPrefix)})
		defer iterator.Close()
		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			var build schema.Build
			if err := iterator.Item().Value(func(value []byte) error {
				return codec.Unmarshal(value, &build)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", iterator.Item().Key(), err)
			}
			if build.BuilderID == builderID {
				builds = append(builds, &build)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing builds of %s: %w", builderID, err)
	}
	sort.SliceStable(builds, func(i, j int) bool {
		return builds[i].CreatedAt.Before(builds[j].CreatedAt)
	})
	return builds, nil
}

func (s *Badger) get(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			return codec.Unmarshal(data, value)
		})
	})
}

func (s *Badger) put(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
