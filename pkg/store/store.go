// Package store persists engine state (pool balance, market parameters,
// positions, price feed) in a Pebble database, keyed per market symbol.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openperp/margind/pkg/engine"
)

// Store is the Pebble persistence layer for one market's engine state.
// It implements engine.Persister; all writes arrive already serialized by
// the engine's mutex.
type Store struct {
	db     *pebble.DB
	symbol string
}

type poolRecord struct {
	Balance uint64 `json:"balance"`
}

type marketRecord struct {
	Leverage uint64 `json:"leverage"`
	Paused   bool   `json:"paused"`
}

type feedRecord struct {
	Price       uint64 `json:"price"`
	LastUpdated int64  `json:"last_updated"`
}

// NewStore opens a Pebble database at dbPath scoped to one market symbol.
func NewStore(dbPath, symbol string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db, symbol: symbol}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePool persists the pool balance.
func (s *Store) SavePool(balance uint64) error {
	return s.put(poolKey(s.symbol), poolRecord{Balance: balance})
}

// SaveMarket persists the mutable market parameters.
func (s *Store) SaveMarket(leverage uint64, paused bool) error {
	return s.put(marketKey(s.symbol), marketRecord{Leverage: leverage, Paused: paused})
}

// SavePosition persists one open position.
func (s *Store) SavePosition(pos *engine.Position) error {
	return s.put(positionKey(s.symbol, pos.Owner), pos)
}

// DeletePosition removes a closed or liquidated position.
func (s *Store) DeletePosition(owner common.Address) error {
	if err := s.db.Delete(positionKey(s.symbol, owner), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// SaveFeed persists the last committed oracle price.
func (s *Store) SaveFeed(price uint64, lastUpdated int64) error {
	return s.put(feedKey(s.symbol), feedRecord{Price: price, LastUpdated: lastUpdated})
}

// LoadSnapshot reads everything persisted for the market. Missing records
// leave zero values in the snapshot, so a fresh database restores cleanly.
func (s *Store) LoadSnapshot() (engine.Snapshot, error) {
	var snap engine.Snapshot

	var pool poolRecord
	if found, err := s.get(poolKey(s.symbol), &pool); err != nil {
		return snap, err
	} else if found {
		snap.PoolBalance = pool.Balance
	}

	var mkt marketRecord
	if found, err := s.get(marketKey(s.symbol), &mkt); err != nil {
		return snap, err
	} else if found {
		snap.Leverage = mkt.Leverage
		snap.Paused = mkt.Paused
	}

	var feed feedRecord
	if found, err := s.get(feedKey(s.symbol), &feed); err != nil {
		return snap, err
	} else if found {
		snap.Price = feed.Price
		snap.LastUpdated = feed.LastUpdated
	}

	positions, err := s.loadPositions()
	if err != nil {
		return snap, err
	}
	snap.Positions = positions

	return snap, nil
}

func (s *Store) loadPositions() ([]*engine.Position, error) {
	prefix := positionPrefix(s.symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open position iterator: %w", err)
	}
	defer iter.Close()

	var positions []*engine.Position
	for iter.First(); iter.Valid(); iter.Next() {
		var pos engine.Position
		if err := json.Unmarshal(iter.Value(), &pos); err != nil {
			continue // skip invalid entries
		}
		positions = append(positions, &pos)
	}
	return positions, nil
}

func (s *Store) put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) get(key []byte, v interface{}) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get record: %w", err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return true, nil
}
