package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

var bucketOrders = []byte("orders")

// BoltStore is the bbolt-backed Store implementation used by soakctl's
// engine for every non-test run.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the order database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "soakctl.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOrders)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(order types.Order) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		data, err := json.Marshal(order)
		if err != nil {
			return err
		}
		return b.Put([]byte(order.ClientID), data)
	})
}

func (s *BoltStore) get(clientID string) (types.Order, bool, error) {
	var order types.Order
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		data := b.Get([]byte(clientID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &order)
	})
	return order, found, err
}

// OpenOrders returns every non-terminal order for symbol.
func (s *BoltStore) OpenOrders(symbol string) ([]types.Order, error) {
	var open []types.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		return b.ForEach(func(k, v []byte) error {
			var order types.Order
			if err := json.Unmarshal(v, &order); err != nil {
				return err
			}
			if order.Symbol == symbol && !order.State.IsTerminal() {
				open = append(open, order)
			}
			return nil
		})
	})
	return open, err
}

// RecordPlaced upserts order.
func (s *BoltStore) RecordPlaced(order types.Order) error {
	return s.put(order)
}

// RecordCancelRequested marks clientID's order cancelled if it exists and
// the transition is legal.
func (s *BoltStore) RecordCancelRequested(clientID string) error {
	order, found, err := s.get(clientID)
	if err != nil {
		return err
	}
	if !found || !types.CanTransition(order.State, types.OrderStateCancelled) {
		return nil
	}
	order.State = types.OrderStateCancelled
	order.UpdatedAt = time.Now()
	return s.put(order)
}

// ApplyFill transitions clientID to Filled.
func (s *BoltStore) ApplyFill(clientID string, fill types.FillEvent) error {
	order, found, err := s.get(clientID)
	if err != nil {
		return err
	}
	if !found || !types.CanTransition(order.State, types.OrderStateFilled) {
		return nil
	}
	order.State = types.OrderStateFilled
	order.UpdatedAt = fill.Timestamp
	return s.put(order)
}

// ApplyRejection transitions clientID to Rejected.
func (s *BoltStore) ApplyRejection(clientID string, cause error) error {
	order, found, err := s.get(clientID)
	if err != nil {
		return err
	}
	if !found || !types.CanTransition(order.State, types.OrderStateRejected) {
		return nil
	}
	order.State = types.OrderStateRejected
	order.UpdatedAt = time.Now()
	return s.put(order)
}

// Get returns a single order by client id.
func (s *BoltStore) Get(clientID string) (types.Order, bool, error) {
	return s.get(clientID)
}

// Prune evicts terminal orders whose UpdatedAt is older than retention.
func (s *BoltStore) Prune(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	var toDelete [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		return b.ForEach(func(k, v []byte) error {
			var order types.Order
			if err := json.Unmarshal(v, &order); err != nil {
				return err
			}
			if order.State.IsTerminal() && order.UpdatedAt.Before(cutoff) {
				key := append([]byte(nil), k...)
				toDelete = append(toDelete, key)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(toDelete), nil
}
