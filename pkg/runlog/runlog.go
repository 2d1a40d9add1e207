// Package runlog records finished program runs in BadgerDB.
package runlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/cpu"
)

var (
	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("run journal closed")

	// ErrNotFound is returned when no record has the requested sequence.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidRecord is returned when a stored record cannot be decoded.
	ErrInvalidRecord = errors.New("invalid run record")
)

// Key prefixes for BadgerDB storage.
var (
	// prefixRun is the prefix for run records.
	// Key format: prefixRun + seq (8 bytes, big endian)
	prefixRun = []byte{0x01}

	// prefixProgram indexes runs by program.
	// Key format: prefixProgram + program ID (32 bytes) + seq (8 bytes)
	prefixProgram = []byte{0x02}

	// metaSeq holds the last sequence number handed out.
	metaSeq = []byte{0x03, 's', 'e', 'q'}
)

// Config contains configuration for the journal.
type Config struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger is an optional logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// Record describes one finished run.
type Record struct {
	// Seq is assigned by Append and increases with every record.
	Seq uint64

	ProgramID types.ProgramID
	Status    cpu.Status

	// Steps is the run result: instructions executed, negated on error.
	Steps int64

	Registers [cpu.NumRegisters]int32
	StackSize int32
	Started   time.Time
	Duration  time.Duration
}

// recordSize is the encoded size of a Record without its sequence number.
const recordSize = types.ProgramIDSize + 4 + 8 + 4*cpu.NumRegisters + 4 + 8 + 8

// serialize lays a record out as fixed little-endian fields.
func (r *Record) serialize() []byte {
	buf := make([]byte, recordSize)
	off := copy(buf, r.ProgramID[:])
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Status))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.Steps))
	off += 8
	for _, v := range r.Registers {
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.StackSize))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.Started.UnixNano()))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.Duration))
	return buf
}

func deserialize(seq uint64, buf []byte) (*Record, error) {
	if len(buf) != recordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidRecord, len(buf))
	}
	r := &Record{Seq: seq}
	off := copy(r.ProgramID[:], buf)
	r.Status = cpu.Status(int32(binary.LittleEndian.Uint32(buf[off:])))
	off += 4
	r.Steps = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	for i := range r.Registers {
		r.Registers[i] = int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	r.StackSize = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.Started = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:]))).UTC()
	off += 8
	r.Duration = time.Duration(binary.LittleEndian.Uint64(buf[off:]))
	return r, nil
}

func runKey(seq uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = prefixRun[0]
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func programKey(id types.ProgramID, seq uint64) []byte {
	key := make([]byte, 1+types.ProgramIDSize+8)
	key[0] = prefixProgram[0]
	copy(key[1:], id[:])
	binary.BigEndian.PutUint64(key[1+types.ProgramIDSize:], seq)
	return key
}

// Journal is a BadgerDB-backed run journal.
type Journal struct {
	db *badger.DB

	// mu serialises Append so sequence numbers are handed out in order.
	mu  sync.Mutex
	seq atomic.Uint64

	closed atomic.Bool
}

// Open opens or creates a journal.
func Open(cfg Config) (*Journal, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	j := &Journal{db: db}
	if err := j.loadSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return j, nil
}

func (j *Journal) loadSeq() error {
	return j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaSeq)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) >= 8 {
				j.seq.Store(binary.LittleEndian.Uint64(val))
			}
			return nil
		})
	})
}

// Append stores rec and sets rec.Seq.
func (j *Journal) Append(rec *Record) error {
	if j.closed.Load() {
		return ErrClosed
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq.Load() + 1
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)

	err := j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(seq), rec.serialize()); err != nil {
			return err
		}
		if err := txn.Set(programKey(rec.ProgramID, seq), nil); err != nil {
			return err
		}
		return txn.Set(metaSeq, seqBuf[:])
	})
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}

	j.seq.Store(seq)
	rec.Seq = seq
	return nil
}

// Count returns the number of records.
func (j *Journal) Count() uint64 {
	return j.seq.Load()
}

// Get returns the record with the given sequence number.
func (j *Journal) Get(seq uint64) (*Record, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	var rec *Record
	err := j.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRun(txn, seq)
		return err
	})
	return rec, err
}

func getRun(txn *badger.Txn, seq uint64) (*Record, error) {
	item, err := txn.Get(runKey(seq))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	}
	if err != nil {
		return nil, err
	}
	var rec *Record
	err = item.Value(func(val []byte) error {
		rec, err = deserialize(seq, val)
		return err
	})
	return rec, err
}

// Recent returns up to limit records, newest first. A limit of zero or
// less returns every record.
func (j *Journal) Recent(limit int) ([]*Record, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	var recs []*Record
	err := j.db.View(func(txn *badger.Txn) error {
		return iterateReverse(txn, prefixRun, limit, func(key, val []byte) error {
			rec, err := deserialize(binary.BigEndian.Uint64(key[1:]), val)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// ForProgram returns up to limit records of one program, newest first.
func (j *Journal) ForProgram(id types.ProgramID, limit int) ([]*Record, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	prefix := append(append([]byte{}, prefixProgram...), id[:]...)
	var recs []*Record
	err := j.db.View(func(txn *badger.Txn) error {
		return iterateReverse(txn, prefix, limit, func(key, _ []byte) error {
			rec, err := getRun(txn, binary.BigEndian.Uint64(key[len(prefix):]))
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// iterateReverse walks the keys under prefix from the largest down.
func iterateReverse(txn *badger.Txn, prefix []byte, limit int, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	// In reverse mode Seek lands on the largest key <= the seek key.
	seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	n := 0
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && n >= limit {
			break
		}
		item := it.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})
		if err != nil {
			return err
		}
		n++
	}
	return nil
}

// Sync ensures all writes are persisted to disk.
func (j *Journal) Sync() error {
	if j.closed.Load() {
		return ErrClosed
	}
	return j.db.Sync()
}

// Close closes the journal.
func (j *Journal) Close() error {
	if j.closed.Swap(true) {
		return ErrClosed
	}
	return j.db.Close()
}
