package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrQueueFull       = errors.New("wal queue full")
	ErrClosed          = errors.New("wal writer closed")
	ErrNotStarted      = errors.New("wal writer not started")
	ErrAlreadyStarted  = errors.New("wal writer already started")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

type appendReq struct {
	header  schema.EventHeader
	payload []byte
}

// segment is one open WAL file. Only the writer goroutine touches it.
type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// Writer appends framed events to rotating WAL segments. TryAppend hands the
// record to a single writer goroutine through a bounded channel, so the hot
// path never blocks on disk. A full channel drops the record with
// ErrQueueFull.
type Writer struct {
	cfg Config
	ch  chan appendReq
	wg  sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
	err     atomic.Value

	// Writer-goroutine state.
	seg    *segment
	segSeq uint64
	head   []byte
	crc    [frameCRCLen]byte
}

// NewWriter creates a WAL writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:  cfg,
		ch:   make(chan appendReq, cfg.QueueSize),
		head: make([]byte, frameHeadLen),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

// Close stops the writer, flushes buffered data, and syncs the open segment.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error the writer goroutine hit, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues an event without blocking. Headers carrying a zero
// schema version are stamped with the current one.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	switch {
	case w.closed.Load():
		return ErrClosed
	case !w.started.Load():
		return ErrNotStarted
	case uint64(len(payload)) > maxPayloadLen:
		return ErrPayloadTooLarge
	}
	if err := w.Err(); err != nil {
		return err
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		payload = append([]byte(nil), payload...)
	}

	select {
	case w.ch <- appendReq{header: header, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) loop(ctx context.Context) {
	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	defer func() {
		if err := w.closeSegment(); err != nil {
			w.fail(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.append(req); err != nil {
				w.fail(err)
				return
			}
		case <-flushC:
			if w.seg != nil {
				if err := w.seg.buf.Flush(); err != nil {
					w.fail(err)
					return
				}
			}
		case <-syncC:
			if err := w.sync(); err != nil {
				w.fail(err)
				return
			}
		}
	}
}

// drain writes whatever is already queued, without waiting for more.
func (w *Writer) drain() {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.append(req); err != nil {
				w.fail(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) append(req appendReq) error {
	if uint64(len(req.payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	now := time.Now().UTC()
	size := int64(frameHeadLen + len(req.payload) + frameCRCLen)
	if w.needsRotate(now, size) {
		if err := w.closeSegment(); err != nil {
			return err
		}
		if err := w.openSegment(now); err != nil {
			return err
		}
	}

	putFrameHead(w.head, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(w.crc[:], frameCRC(w.head, req.payload))

	for _, chunk := range [][]byte{w.head, req.payload, w.crc[:]} {
		if len(chunk) == 0 {
			continue
		}
		if _, err := w.seg.buf.Write(chunk); err != nil {
			return err
		}
	}
	w.seg.size += size
	return nil
}

func (w *Writer) needsRotate(now time.Time, nextSize int64) bool {
	switch {
	case w.seg == nil:
		return true
	case w.cfg.SegmentMaxBytes > 0 && w.seg.size+nextSize > w.cfg.SegmentMaxBytes:
		return true
	case w.cfg.SegmentMaxDuration > 0 && now.Sub(w.seg.openedAt) >= w.cfg.SegmentMaxDuration:
		return true
	}
	return false
}

// openSegment creates the next segment file. Names carry a wall-clock stamp
// and a counter; O_EXCL skips over names already taken by a previous run.
func (w *Writer) openSegment(now time.Time) error {
	stamp := now.Format("20060102-150405")
	for {
		w.segSeq++
		name := fmt.Sprintf("%s-%s-%06d.wal", w.cfg.FilePrefix, stamp, w.segSeq)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		w.seg = &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}
		return nil
	}
}

func (w *Writer) sync() error {
	if w.seg == nil {
		return nil
	}
	if err := w.seg.buf.Flush(); err != nil {
		return err
	}
	return w.seg.file.Sync()
}

func (w *Writer) closeSegment() error {
	if w.seg == nil {
		return nil
	}
	seg := w.seg
	w.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

// fail records the first error; later ones are dropped.
func (w *Writer) fail(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
