package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	pkgerrors "github.com/pkg/errors"
)

const (
	entryPrefix = "h/"
	sequenceKey = "seq/history"
)

// Entry is one evaluated input.
type Entry struct {
	Mode   string    `json:"mode"`
	Source string    `json:"source"`
	Output string    `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

type Config struct {
	Logger *slog.Logger
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
}

// Store persists entries per session under keys h/<session>/<seq>. The
// sequence is zero padded so key order is insertion order.
type Store struct {
	logger *slog.Logger
	db     *badger.DB
	seq    *badger.Sequence
}

func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, &ErrInternal{Err: pkgerrors.New("history directory is required")}
		}
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, &ErrInternal{Err: pkgerrors.Wrapf(err, "failed to create %s", cfg.Dir)}
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(newLogger(cfg.Logger.WithGroup("badger")))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &ErrInternal{Err: pkgerrors.Wrap(err, "failed to open history db")}
	}

	seq, err := db.GetSequence([]byte(sequenceKey), 128)
	if err != nil {
		db.Close()
		return nil, &ErrInternal{Err: pkgerrors.Wrap(err, "failed to lease history sequence")}
	}

	return &Store{
		logger: cfg.Logger.WithGroup("history"),
		db:     db,
		seq:    seq,
	}, nil
}

func (s *Store) Close() error {
	var firstErr error
	if err := s.seq.Release(); err != nil {
		s.logger.Error("error releasing sequence", "error", err)
		firstErr = &ErrInternal{Err: err}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("error closing history db", "error", err)
		firstErr = &ErrInternal{Err: err}
	}
	return firstErr
}

func validSession(session string) error {
	if session == "" {
		return ErrSessionRequired
	}
	if strings.Contains(session, "/") {
		return ErrInvalidSession
	}
	return nil
}

func sessionPrefix(session string) []byte {
	return []byte(entryPrefix + session + "/")
}

func entryKey(session string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", entryPrefix, session, n))
}

func (s *Store) Append(session string, e Entry) error {
	if err := validSession(session); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	n, err := s.seq.Next()
	if err != nil {
		return &ErrInternal{Err: pkgerrors.Wrap(err, "failed to allocate sequence")}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return &ErrInternal{Err: pkgerrors.Wrap(err, "failed to encode entry")}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(session, n), data)
	})
	if err != nil {
		return &ErrInternal{Err: pkgerrors.Wrapf(err, "failed to append to session %s", session)}
	}
	return nil
}

// List returns the newest limit entries of session, oldest first. A limit of
// zero or less returns all of them.
func (s *Store) List(session string, limit int) ([]Entry, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	prefix := sessionPrefix(session)

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				return pkgerrors.Wrapf(err, "corrupt entry %s", it.Item().Key())
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, &ErrInternal{Err: err}
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Sessions lists every session with at least one entry, in key order.
func (s *Store) Sessions() ([]string, error) {
	var sessions []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		last := ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), entryPrefix)
			session, _, ok := strings.Cut(rest, "/")
			if !ok || session == last {
				continue
			}
			sessions = append(sessions, session)
			last = session
		}
		return nil
	})
	if err != nil {
		return nil, &ErrInternal{Err: err}
	}
	return sessions, nil
}

// Prune deletes all but the newest keep entries of session and reports how
// many were removed.
func (s *Store) Prune(session string, keep int) (int, error) {
	if err := validSession(session); err != nil {
		return 0, err
	}
	prefix := sessionPrefix(session)

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		seek := append(bytes.Clone(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			seen++
			if seen > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, &ErrInternal{Err: err}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &ErrInternal{Err: pkgerrors.Wrap(err, "failed to prune history")}
	}
	s.logger.Debug("pruned history", "session", session, "removed", len(stale))
	return len(stale), nil
}
