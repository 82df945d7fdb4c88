package clearing

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rishav/order-book/internal/orders"
)

// Journal is an append-only durable fill log.
//
// The book itself is in-memory only; the journal records the fill stream
// so downstream settlement can reconcile after the fact. Each record is
// framed as a 4-byte big-endian length, the msgpack-encoded record, and a
// CRC32 of the encoded bytes to detect torn or corrupted tails.
//
// Every append is flushed to the file before returning. In sync mode it
// is also fsynced; otherwise fsync happens only on Sync.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	path     string
	syncMode bool
	lastSeq  uint64
	dropped  uint64
	log      zerolog.Logger
}

// JournalConfig configures the fill journal.
type JournalConfig struct {
	Path     string
	SyncMode bool // fsync after every append (slower but durable)
	Logger   zerolog.Logger
}

// journalRecord is the on-disk representation of a fill.
type journalRecord struct {
	Seq           uint64 `msgpack:"seq"`
	AggressorSide string `msgpack:"aggressor_side"`
	AggressorID   string `msgpack:"aggressor_id"`
	RestingID     string `msgpack:"resting_id"`
	Price         uint32 `msgpack:"price"`
	Quantity      uint32 `msgpack:"quantity"`
	Timestamp     int64  `msgpack:"timestamp"`
}

// NewJournal opens (or creates) the journal at cfg.Path and scans it to
// find the last recorded sequence number.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open fill journal: %w", err)
	}

	j := &Journal{
		file:     file,
		writer:   bufio.NewWriter(file),
		path:     cfg.Path,
		syncMode: cfg.SyncMode,
		log:      cfg.Logger,
	}

	if err := j.recover(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover fill journal: %w", err)
	}
	return j, nil
}

// Report implements FillReporter. Journal errors are counted and logged,
// never propagated: the engine's contract is that reporting cannot fail.
func (j *Journal) Report(fill orders.Fill) {
	if err := j.Append(fill); err != nil {
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		j.log.Error().Err(err).Uint64("seq", fill.Seq).Msg("fill journal append failed")
	}
}

// Append writes one fill record.
func (j *Journal) Append(fill orders.Fill) error {
	body, err := msgpack.Marshal(journalRecord{
		Seq:           fill.Seq,
		AggressorSide: fill.AggressorSide.String(),
		AggressorID:   fill.AggressorID.String(),
		RestingID:     fill.RestingID.String(),
		Price:         fill.Price,
		Quantity:      fill.Quantity,
		Timestamp:     fill.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode fill: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc32.ChecksumIEEE(body))

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := j.writer.Write(body); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := j.writer.Write(trailer[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if j.syncMode {
		if err := j.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
	}
	j.lastSeq = fill.Seq
	return nil
}

// Replay reads every record and calls handler in order. Used by
// downstream reconciliation, not by the engine.
func (j *Journal) Replay(handler func(fill orders.Fill) error) error {
	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		var header [4]byte
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read frame header: %w", err)
		}
		body := make([]byte, binary.BigEndian.Uint32(header[:]))
		if _, err := io.ReadFull(reader, body); err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		var trailer [4]byte
		if _, err := io.ReadFull(reader, trailer[:]); err != nil {
			return fmt.Errorf("failed to read checksum: %w", err)
		}
		if binary.BigEndian.Uint32(trailer[:]) != crc32.ChecksumIEEE(body) {
			return fmt.Errorf("checksum mismatch in fill journal")
		}

		var rec journalRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		fill, err := rec.toFill()
		if err != nil {
			return err
		}
		if err := handler(fill); err != nil {
			return fmt.Errorf("handler error at seq %d: %w", rec.Seq, err)
		}
	}
}

func (r journalRecord) toFill() (orders.Fill, error) {
	aggressorID, err := uuid.Parse(r.AggressorID)
	if err != nil {
		return orders.Fill{}, fmt.Errorf("bad aggressor id at seq %d: %w", r.Seq, err)
	}
	restingID, err := uuid.Parse(r.RestingID)
	if err != nil {
		return orders.Fill{}, fmt.Errorf("bad resting id at seq %d: %w", r.Seq, err)
	}
	side := orders.SideBid
	if r.AggressorSide == orders.SideAsk.String() {
		side = orders.SideAsk
	}
	return orders.Fill{
		Seq:           r.Seq,
		AggressorSide: side,
		AggressorID:   aggressorID,
		RestingID:     restingID,
		Price:         r.Price,
		Quantity:      r.Quantity,
		Timestamp:     r.Timestamp,
	}, nil
}

// recover scans the journal to find the last sequence number.
func (j *Journal) recover() error {
	err := j.Replay(func(fill orders.Fill) error {
		j.lastSeq = fill.Seq
		return nil
	})
	return err
}

// LastSeq returns the sequence number of the last appended record.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// Sync forces buffered records to disk.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}
