package service

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	overflowModel "github.com/Avi18971911/Logship/pkg/deadletter/model"
	eventModel "github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// compactAfterResolved is how many resolved records may accumulate in the
// segment file before it is rewritten in place. Requeues on Fail append a
// fresh copy of the record, so without this a sustained outage would grow the
// file on every retry cycle even though the pending count stays bounded.
const compactAfterResolved = 128

var ErrQueueEmpty = errors.New("no overflow records pending")

// Queue is the durable overflow store for batches that failed delivery. The
// backing file holds one JSON record per line; a commit sidecar tracks the
// highest resolved sequence so a restart replays only unresolved records.
// Resolution is strictly oldest-first, which is what lets a single watermark
// stand in for per-record tombstones. Event payloads for pending records are
// kept in a ristretto cache so drain ticks do not re-read the segment file;
// a cache miss falls back to a file scan.
type Queue struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
	pending    []recordMeta
	maxPending int
	resolved   int
	payloads   *ristretto.Cache
	logger     *zap.Logger
}

type recordMeta struct {
	seq        uint64
	index      string
	eventCount int
	attempts   int
	lastError  string
	enqueuedAt time.Time
}

// OpenQueue creates or opens the overflow queue at path. Committed records
// are compacted away on open; a partially written trailing line is ignored.
func OpenQueue(
	path string,
	maxPending int,
	payloads *ristretto.Cache,
	logger *zap.Logger,
) (*Queue, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("overflow queue path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("error creating overflow queue directory: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}

	pending, maxSeq, err := compactCommitted(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("error opening overflow queue: %w", err)
	}

	next := maxSeq + 1
	if committed+1 > next {
		next = committed + 1
	}

	q := &Queue{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    next,
		committed:  committed,
		pending:    pending,
		maxPending: maxPending,
		payloads:   payloads,
		logger:     logger,
	}
	if len(pending) > 0 {
		logger.Info("Recovered unresolved overflow records",
			zap.Int("records", len(pending)),
		)
	}
	return q, nil
}

// Enqueue persists a failed batch and returns its sequence number. When the
// pending bound is exceeded the oldest records are dropped, each with a
// diagnostic, so sustained outages cannot grow the file without bound.
func (q *Queue) Enqueue(index string, events []eventModel.LogEvent, cause error) (uint64, error) {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	record := overflowModel.OverflowRecord{
		Index:      index,
		Events:     events,
		Attempts:   0,
		LastError:  lastError,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	seq, err := q.appendLocked(record)
	if err != nil {
		return 0, err
	}
	for q.maxPending > 0 && len(q.pending) > q.maxPending {
		evicted := q.pending[0]
		if err := q.commitLocked(evicted.seq); err != nil {
			return 0, err
		}
		q.pending = q.pending[1:]
		q.logger.Error("Dropped oldest overflow record: queue bound exceeded",
			zap.Uint64("seq", evicted.seq),
			zap.Int("events", evicted.eventCount),
		)
	}
	q.maybeCompactLocked()
	return seq, nil
}

// Head returns the oldest pending record without its payload.
func (q *Queue) Head() (overflowModel.OverflowRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return overflowModel.OverflowRecord{}, ErrQueueEmpty
	}
	head := q.pending[0]
	return overflowModel.OverflowRecord{
		Seq:        head.seq,
		Index:      head.index,
		Attempts:   head.attempts,
		LastError:  head.lastError,
		EnqueuedAt: head.enqueuedAt,
	}, nil
}

// Events loads the payload of a pending record, from the cache when it is
// still resident and from the segment file otherwise.
func (q *Queue) Events(seq uint64) ([]eventModel.LogEvent, error) {
	if value, found := q.payloads.Get(payloadKey(seq)); found {
		if events, ok := value.([]eventModel.LogEvent); ok {
			return events, nil
		}
	}
	record, err := q.scanFor(seq)
	if err != nil {
		return nil, err
	}
	q.payloads.Set(payloadKey(seq), record.Events, int64(len(record.Events)))
	return record.Events, nil
}

// Ack marks the head record as delivered.
func (q *Queue) Ack() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return ErrQueueEmpty
	}
	head := q.pending[0]
	if err := q.commitLocked(head.seq); err != nil {
		return err
	}
	q.pending = q.pending[1:]
	q.payloads.Del(payloadKey(head.seq))
	q.maybeCompactLocked()
	return nil
}

// Fail records one more failed attempt for the head record. If the attempt
// count has exceeded maxRetries the record is permanently dropped and true is
// returned; otherwise it is re-appended at the back of the queue with the
// incremented count, so retry progress survives a restart.
func (q *Queue) Fail(maxRetries int, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return false, ErrQueueEmpty
	}
	head := q.pending[0]
	attempts := head.attempts + 1

	if attempts > maxRetries {
		if err := q.commitLocked(head.seq); err != nil {
			return false, err
		}
		q.pending = q.pending[1:]
		q.payloads.Del(payloadKey(head.seq))
		q.maybeCompactLocked()
		return true, nil
	}

	events, err := q.eventsLocked(head.seq)
	if err != nil {
		return false, err
	}
	lastError := head.lastError
	if cause != nil {
		lastError = cause.Error()
	}
	requeued := overflowModel.OverflowRecord{
		Index:      head.index,
		Events:     events,
		Attempts:   attempts,
		LastError:  lastError,
		EnqueuedAt: head.enqueuedAt,
	}
	if _, err := q.appendLocked(requeued); err != nil {
		return false, err
	}
	if err := q.commitLocked(head.seq); err != nil {
		return false, err
	}
	q.pending = q.pending[1:]
	q.payloads.Del(payloadKey(head.seq))
	q.maybeCompactLocked()
	return false, nil
}

// Pending returns the number of unresolved records.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.file == nil {
		return nil
	}
	err := q.file.Close()
	q.file = nil
	return err
}

func (q *Queue) appendLocked(record overflowModel.OverflowRecord) (uint64, error) {
	record.Seq = q.nextSeq
	q.nextSeq++

	line, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("error marshaling overflow record: %w", err)
	}
	line = append(line, '\n')
	if _, err := q.file.Write(line); err != nil {
		return 0, fmt.Errorf("error writing overflow record: %w", err)
	}
	if err := q.file.Sync(); err != nil {
		return 0, fmt.Errorf("error syncing overflow record: %w", err)
	}

	q.pending = append(q.pending, recordMeta{
		seq:        record.Seq,
		index:      record.Index,
		eventCount: len(record.Events),
		attempts:   record.Attempts,
		lastError:  record.LastError,
		enqueuedAt: record.EnqueuedAt,
	})
	q.payloads.Set(payloadKey(record.Seq), record.Events, int64(len(record.Events)))
	return record.Seq, nil
}

func (q *Queue) commitLocked(seq uint64) error {
	if seq <= q.committed {
		return nil
	}
	q.committed = seq
	q.resolved++
	return writeCommitted(q.commitPath, seq)
}

// maybeCompactLocked rewrites the segment file once enough resolved records
// have accumulated in it. Compaction failures are logged and retried on the
// next resolution; the queue itself stays usable.
func (q *Queue) maybeCompactLocked() {
	if q.resolved < compactAfterResolved || q.file == nil {
		return
	}
	if err := q.compactLocked(); err != nil {
		q.logger.Error("Failed to compact overflow queue", zap.Error(err))
		return
	}
	q.resolved = 0
}

func (q *Queue) compactLocked() error {
	if err := q.file.Close(); err != nil {
		q.file = nil
		return fmt.Errorf("error closing overflow queue before compaction: %w", err)
	}
	q.file = nil

	_, _, compactErr := compactCommitted(q.path, q.committed)

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return fmt.Errorf("error reopening overflow queue after compaction: %w", err)
	}
	q.file = f
	return compactErr
}

func (q *Queue) eventsLocked(seq uint64) ([]eventModel.LogEvent, error) {
	if value, found := q.payloads.Get(payloadKey(seq)); found {
		if events, ok := value.([]eventModel.LogEvent); ok {
			return events, nil
		}
	}
	record, err := q.scanFor(seq)
	if err != nil {
		return nil, err
	}
	return record.Events, nil
}

// scanFor re-reads the segment file looking for one record. Only hit on a
// payload cache miss, typically after a restart.
func (q *Queue) scanFor(seq uint64) (overflowModel.OverflowRecord, error) {
	f, err := os.Open(q.path)
	if err != nil {
		return overflowModel.OverflowRecord{}, fmt.Errorf("error opening overflow queue for scan: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return overflowModel.OverflowRecord{}, fmt.Errorf("error scanning overflow queue: %w", readErr)
		}
		if len(line) > 0 && strings.HasSuffix(string(line), "\n") {
			var record overflowModel.OverflowRecord
			if uerr := json.Unmarshal(line, &record); uerr == nil && record.Seq == seq {
				return record, nil
			}
		}
		if errors.Is(readErr, io.EOF) {
			return overflowModel.OverflowRecord{}, fmt.Errorf("overflow record %d not found in segment file", seq)
		}
	}
}

func payloadKey(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("error reading overflow commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing overflow commit seq: %w", err)
	}
	return seq, nil
}

func writeCommitted(path string, seq uint64) error {
	tmp := path + ".tmp"
	payload := []byte(strconv.FormatUint(seq, 10) + "\n")
	if err := os.WriteFile(tmp, payload, defaultFileMode); err != nil {
		return fmt.Errorf("error writing overflow commit tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error renaming overflow commit file: %w", err)
	}
	return nil
}

// compactCommitted rewrites the segment file keeping only uncommitted
// records, returning their metadata in sequence order and the highest
// sequence seen. A malformed or partial trailing line ends the scan.
func compactCommitted(path string, committed uint64) ([]recordMeta, uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening overflow queue for compaction: %w", err)
	}
	defer src.Close()

	tmpPath := path + ".compact"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening compaction tmp: %w", err)
	}

	reader := bufio.NewReader(src)
	var pending []recordMeta
	var maxSeq uint64

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			_ = dst.Close()
			_ = os.Remove(tmpPath)
			return nil, 0, fmt.Errorf("error reading overflow queue during compaction: %w", readErr)
		}
		if len(line) == 0 {
			if errors.Is(readErr, io.EOF) {
				break
			}
			continue
		}
		if !strings.HasSuffix(string(line), "\n") {
			break
		}

		var record overflowModel.OverflowRecord
		if uerr := json.Unmarshal(line, &record); uerr != nil {
			break
		}
		if record.Seq > maxSeq {
			maxSeq = record.Seq
		}
		if record.Seq > committed {
			if _, werr := dst.Write(line); werr != nil {
				_ = dst.Close()
				_ = os.Remove(tmpPath)
				return nil, 0, fmt.Errorf("error writing compaction tmp: %w", werr)
			}
			pending = append(pending, recordMeta{
				seq:        record.Seq,
				index:      record.Index,
				eventCount: len(record.Events),
				attempts:   record.Attempts,
				lastError:  record.LastError,
				enqueuedAt: record.EnqueuedAt,
			})
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("error syncing compaction tmp: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("error closing compaction tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("error renaming compacted overflow queue: %w", err)
	}
	return pending, maxSeq, nil
}
