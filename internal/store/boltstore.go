package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"cachet/internal/domain"
)

const (
	accountsBucket  = "accounts"  // id -> json(Account)
	usernamesBucket = "usernames" // username -> id
	historyBucket   = "history"   // pairKey | unixnano | seq -> json(Envelope)
)

// BoltStore persists accounts and message history in one bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures all buckets
// exist.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{accountsBucket, usernamesBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// CreateAccount stores a new account. The username must be unused.
func (s *BoltStore) CreateAccount(a domain.Account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket([]byte(usernamesBucket))
		if names.Get([]byte(a.Username)) != nil {
			return domain.ErrDuplicateUsername
		}
		if err := names.Put([]byte(a.Username), []byte(a.ID)); err != nil {
			return err
		}
		return tx.Bucket([]byte(accountsBucket)).Put([]byte(a.ID), raw)
	})
}

// AccountByID loads an account by its stable identifier.
func (s *BoltStore) AccountByID(id domain.UserID) (domain.Account, error) {
	var a domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(accountsBucket)).Get([]byte(id))
		if raw == nil {
			return domain.ErrUnknownUser
		}
		return json.Unmarshal(raw, &a)
	})
	return a, err
}

// AccountByUsername loads an account through the username index.
func (s *BoltStore) AccountByUsername(username string) (domain.Account, error) {
	var a domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket([]byte(usernamesBucket)).Get([]byte(username))
		if id == nil {
			return domain.ErrUnknownUser
		}
		raw := tx.Bucket([]byte(accountsBucket)).Get(id)
		if raw == nil {
			return domain.ErrUnknownUser
		}
		return json.Unmarshal(raw, &a)
	})
	return a, err
}

// SearchAccounts returns accounts whose username or display name contains
// query (case-insensitive). An empty query lists accounts up to limit.
func (s *BoltStore) SearchAccounts(query string, limit int) ([]domain.Account, error) {
	needle := strings.ToLower(query)
	var out []domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(accountsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a domain.Account
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if needle != "" &&
				!strings.Contains(strings.ToLower(a.Username), needle) &&
				!strings.Contains(strings.ToLower(a.DisplayName), needle) {
				continue
			}
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// AppendEnvelope records a routed envelope under the participant pair,
// ordered by timestamp with a sequence tiebreak. Append-only: nothing in
// this store ever rewrites or deletes history.
func (s *BoltStore) AppendEnvelope(env domain.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(historyKey(env.From, env.To, env.Timestamp, seq), raw)
	})
}

// EnvelopesBetween returns the most recent envelopes exchanged between a
// and b (either direction), oldest first. limit <= 0 means all.
func (s *BoltStore) EnvelopesBetween(a, b domain.UserID, limit int) ([]domain.Envelope, error) {
	prefix := pairKey(a, b)
	var out []domain.Envelope
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(historyBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var env domain.Envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			out = append(out, env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// pairKey orders the two participants so both directions of a conversation
// share one key range.
func pairKey(a, b domain.UserID) []byte {
	lo, hi := string(a), string(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	return []byte(lo + "|" + hi + "|")
}

func historyKey(from, to domain.UserID, ts time.Time, seq uint64) []byte {
	key := pairKey(from, to)
	var stamp [16]byte
	binary.BigEndian.PutUint64(stamp[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(stamp[8:], seq)
	return append(key, stamp[:]...)
}

// Compile-time assertions that BoltStore implements the store contracts.
var (
	_ domain.AccountStore = (*BoltStore)(nil)
	_ domain.HistoryStore = (*BoltStore)(nil)
)
