// Package programstore keeps named program images in a BoltDB file.
package programstore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/program"
)

var (
	// ErrNotFound is returned when no program matches a reference.
	ErrNotFound = errors.New("program not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("program store closed")

	// ErrCorrupt is returned when a stored image fails verification.
	ErrCorrupt = errors.New("stored program is corrupt")

	// ErrInvalidName is returned for names that cannot be stored.
	ErrInvalidName = errors.New("invalid program name")
)

// MaxNameLength bounds program names, in bytes.
const MaxNameLength = 64

// Bucket names for BoltDB.
var (
	// bucketPrograms stores records keyed by program ID.
	bucketPrograms = []byte("programs")

	// bucketNames maps names to program IDs.
	bucketNames = []byte("names")
)

// Config holds program store configuration options.
type Config struct {
	// Path is the database file.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// Timeout is how long to wait for the file lock.
	Timeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:    path,
		Timeout: 5 * time.Second,
	}
}

// Entry describes a stored program.
type Entry struct {
	Name  string // empty for programs stored without a name
	ID    types.ProgramID
	Size  int // uncompressed bytes
	Added time.Time
}

// record is the gob-encoded value in bucketPrograms.
type record struct {
	Data     []byte   // zstd-packed image
	Checksum [32]byte // SHA3-256 of the unpacked image
	Size     int
	Added    time.Time
}

// Store is a program store backed by BoltDB. It is safe for concurrent use.
type Store struct {
	db     *bolt.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a program store.
func Open(config Config) (*Store, error) {
	if !config.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  config.Timeout,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, config: config}
	if !config.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPrograms, bucketNames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// ValidName reports whether name can be stored.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLength || strings.HasPrefix(name, "@") {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) < 0
}

// Put stores img and, if name is not empty, points name at it. An existing
// name is moved to the new image.
func (s *Store) Put(name string, img *program.Image) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if name != "" && !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	id := types.ProgramIDOf(img.Data)
	packed, err := program.Pack(img.Data)
	if err != nil {
		return fmt.Errorf("pack image: %w", err)
	}
	rec := record{
		Data:     packed,
		Checksum: sha3.Sum256(img.Data),
		Size:     len(img.Data),
		Added:    time.Now().UTC(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		programs := tx.Bucket(bucketPrograms)
		if programs.Get(id[:]) == nil {
			if err := programs.Put(id[:], buf.Bytes()); err != nil {
				return err
			}
		}
		if name == "" {
			return nil
		}
		return tx.Bucket(bucketNames).Put([]byte(name), id[:])
	})
}

// Resolve turns a reference into a program ID. A reference is a stored
// name, optionally prefixed with '@', or a base58 program ID.
func (s *Store) Resolve(ref string) (types.ProgramID, error) {
	var id types.ProgramID
	if err := s.checkOpen(); err != nil {
		return id, err
	}
	name := strings.TrimPrefix(ref, "@")

	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketNames); b != nil {
			if v := b.Get([]byte(name)); v != nil {
				copy(id[:], v)
				return nil
			}
		}
		if strings.HasPrefix(ref, "@") {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		parsed, err := types.ProgramIDFromBase58(ref)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		id = parsed
		return nil
	})
	return id, err
}

// Get loads and verifies the program a reference points to.
func (s *Store) Get(ref string) (*program.Image, error) {
	id, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}

	var rec record
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrograms)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get(id[:])
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&rec)
	})
	if err != nil {
		return nil, err
	}

	img, err := program.New(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sha3.Sum256(img.Data) != rec.Checksum || img.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, id)
	}
	return img, nil
}

// List returns one entry per name, sorted by name, followed by programs
// that have no name.
func (s *Store) List() ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		programs, names := tx.Bucket(bucketPrograms), tx.Bucket(bucketNames)
		if programs == nil || names == nil {
			return nil
		}

		named := make(map[types.ProgramID]bool)
		err := names.ForEach(func(k, v []byte) error {
			e, err := entryFor(programs, v)
			if err != nil {
				return err
			}
			e.Name = string(k)
			named[e.ID] = true
			entries = append(entries, e)
			return nil
		})
		if err != nil {
			return err
		}

		return programs.ForEach(func(k, _ []byte) error {
			id, _ := types.ProgramIDFromBytes(k)
			if named[id] {
				return nil
			}
			e, err := entryFor(programs, k)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func entryFor(programs *bolt.Bucket, key []byte) (Entry, error) {
	id, err := types.ProgramIDFromBytes(key)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad key", ErrCorrupt)
	}
	data := programs.Get(key)
	if data == nil {
		return Entry{}, fmt.Errorf("%w: dangling name for %s", ErrCorrupt, id)
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return Entry{}, fmt.Errorf("decode record: %w", err)
	}
	return Entry{ID: id, Size: rec.Size, Added: rec.Added}, nil
}

// Delete removes a name, or a program given by ID. A program is dropped
// once no name refers to it.
func (s *Store) Delete(ref string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	name := strings.TrimPrefix(ref, "@")

	return s.db.Update(func(tx *bolt.Tx) error {
		programs, names := tx.Bucket(bucketPrograms), tx.Bucket(bucketNames)

		var id types.ProgramID
		if v := names.Get([]byte(name)); v != nil {
			copy(id[:], v)
			if err := names.Delete([]byte(name)); err != nil {
				return err
			}
		} else {
			parsed, err := types.ProgramIDFromBase58(ref)
			if err != nil || programs.Get(parsed[:]) == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, ref)
			}
			id = parsed
			// Deleting by ID drops every name pointing at it.
			var stale [][]byte
			names.ForEach(func(k, v []byte) error {
				if bytes.Equal(v, id[:]) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			for _, k := range stale {
				if err := names.Delete(k); err != nil {
					return err
				}
			}
		}

		referenced := false
		names.ForEach(func(_, v []byte) error {
			if bytes.Equal(v, id[:]) {
				referenced = true
			}
			return nil
		})
		if referenced {
			return nil
		}
		return programs.Delete(id[:])
	})
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.db.Close()
}
