package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket keys. Vendors are keyed by canonical name, patterns by ID, both with
// JSON-serialized values.
var (
	bucketVendors  = []byte("vendors")
	bucketPatterns = []byte("patterns")
)

// BoltStore implements Store on an embedded bbolt database. Writes are
// transactional; concurrent reads are safe.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketVendors); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketPatterns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// VendorByName implements VendorReader.
func (s *BoltStore) VendorByName(_ context.Context, name string) (*VendorRecord, error) {
	var rec VendorRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketVendors).Get([]byte(name))
		if v == nil {
			return ErrVendorNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		if errors.Is(err, ErrVendorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading vendor %q: %w", name, err)
	}
	return &rec, nil
}

// VendorsWithKeywords implements VendorReader. bbolt iterates keys in byte
// order, so results are ordered by name.
func (s *BoltStore) VendorsWithKeywords(_ context.Context) ([]VendorRecord, error) {
	var out []VendorRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVendors).ForEach(func(k, v []byte) error {
			var rec VendorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding vendor %q: %w", k, err)
			}
			if len(rec.VendorKeywords) > 0 {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning vendors: %w", err)
	}
	return out, nil
}

// PatternsWithKeywords implements PatternReader.
func (s *BoltStore) PatternsWithKeywords(_ context.Context) ([]PatternRecord, error) {
	var out []PatternRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).ForEach(func(k, v []byte) error {
			var rec PatternRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding pattern %q: %w", k, err)
			}
			if len(rec.Keywords) > 0 {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning patterns: %w", err)
	}
	return out, nil
}

// VendorDescriptionKeywords implements PatternReader.
func (s *BoltStore) VendorDescriptionKeywords(ctx context.Context, vendorName string) ([]string, error) {
	rec, err := s.VendorByName(ctx, vendorName)
	if err != nil {
		return nil, err
	}
	return rec.DescriptionKeywords, nil
}

// UpsertVendor implements Writer.
func (s *BoltStore) UpsertVendor(_ context.Context, v VendorRecord) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validating vendor: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal vendor: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVendors).Put([]byte(v.VendorName), data)
	})
}

// UpsertPattern implements Writer.
func (s *BoltStore) UpsertPattern(_ context.Context, p PatternRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating pattern: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).Put([]byte(p.ID), data)
	})
}

var _ Store = (*BoltStore)(nil)
