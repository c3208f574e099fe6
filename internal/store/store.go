// SPDX-License-Identifier: MIT

// Package store persists recording caches across restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/vod"
)

// Store keeps month snapshots in a badger database and mirrors a readable
// JSON index per channel to disk.
type Store struct {
	db       *badger.DB
	indexDir string
	log      zerolog.Logger
}

// Open creates or opens the store under dir. The database lives in dir/db,
// index files in dir/index.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "db")
	indexDir := filepath.Join(dir, "index")
	for _, p := range []string{dbPath, indexDir} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", p, err)
		}
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithIndexCacheSize(16 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}
	return &Store{
		db:       db,
		indexDir: indexDir,
		log:      log.WithComponent("store"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func channelPrefix(camera string, channel int) []byte {
	return []byte(fmt.Sprintf("vod:%s:%d:", camera, channel))
}

func monthKey(camera string, channel int, ym vod.YearMonth) []byte {
	return []byte(fmt.Sprintf("vod:%s:%d:%s", camera, channel, ym))
}

// SaveMonths replaces the persisted snapshots of one channel. Months absent
// from snaps get deleted so recycled footage does not resurrect on restart.
func (s *Store) SaveMonths(ctx context.Context, camera string, channel int, snaps []vod.MonthSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keep := map[string]bool{}
	for _, snap := range snaps {
		keep[string(monthKey(camera, channel, snap.Status.YearMonth))] = true
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: channelPrefix(camera, channel)})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			if k := it.Item().Key(); !keep[string(k)] {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		for _, snap := range snaps {
			raw, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("encode month %s: %w", snap.Status.YearMonth, err)
			}
			if err := txn.Set(monthKey(camera, channel, snap.Status.YearMonth), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s/%d: %w", camera, channel, err)
	}

	if err := s.writeIndex(camera, channel, snaps); err != nil {
		s.log.Warn().Err(err).
			Str(log.FieldCamera, camera).
			Int(log.FieldChannel, channel).
			Msg("index export failed")
	}
	return nil
}

// LoadMonths returns all persisted snapshots of one channel in key order,
// which is chronological because month keys sort lexicographically.
func (s *Store) LoadMonths(ctx context.Context, camera string, channel int) ([]vod.MonthSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snaps []vod.MonthSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         channelPrefix(camera, channel),
			PrefetchValues: true,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var snap vod.MonthSnapshot
				if err := json.Unmarshal(val, &snap); err != nil {
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				snaps = append(snaps, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s/%d: %w", camera, channel, err)
	}
	return snaps, nil
}

// channelIndex is the on-disk JSON mirror of one channel's cache, written
// for operators to inspect without a database client.
type channelIndex struct {
	Camera      string              `json:"camera"`
	Channel     int                 `json:"channel"`
	GeneratedAt time.Time           `json:"generated_at"`
	Months      []vod.MonthSnapshot `json:"months"`
}

func (s *Store) writeIndex(camera string, channel int, snaps []vod.MonthSnapshot) error {
	idx := channelIndex{
		Camera:      camera,
		Channel:     channel,
		GeneratedAt: time.Now().UTC(),
		Months:      snaps,
	}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.indexDir, fmt.Sprintf("%s-%d.json", camera, channel))
	// Atomic replace keeps readers from seeing a half-written index.
	return renameio.WriteFile(path, raw, 0o644)
}

// RunGC triggers badger value log garbage collection on an interval until
// ctx is canceled.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}
