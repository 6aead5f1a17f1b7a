package archivers

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/klauspost/compress/flate"
	"github.com/samber/lo"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	directory64LocSignature  = 0x07064b50
	directory64EndSignature  = 0x06064b50
	dataDescriptorSignature  = 0x08074b50
	zip64ExtraID             = 0x0001

	directory64EndLen = 56

	zipVersion20 = 20
	zipVersion45 = 45
	creatorUnix  = 3

	methodDeflate      = 8
	flagDataDescriptor = 0x8
	flagUTF8           = 0x800

	// regular file, rw-r--r--
	unixFileMode = 0o100644

	uint16max = (1 << 16) - 1
	uint32max = (1 << 32) - 1

	bufferSize = 32 << 10
)

var le = binary.LittleEndian

type ZipOption func(*ZipArchiver)

// WithCompressionLevel sets the deflate level (-2 to 9). Defaults to
// flate.BestCompression.
func WithCompressionLevel(level int) ZipOption {
	return func(a *ZipArchiver) {
		a.level = level
	}
}

// WithQueueSize bounds how many appends may wait for the writer.
func WithQueueSize(size int) ZipOption {
	return func(a *ZipArchiver) {
		a.queueSize = size
	}
}

// ZipArchiver streams a deflate ZIP archive to an io.Writer. A single
// goroutine owns the output; Append calls hand their stream to it through a
// bounded queue and wait for the entry to settle. That goroutine also reads
// and compresses each body, so entries are produced one at a time while the
// fetches behind them wait in the queue.
//
// An entry whose source fails after bytes were emitted is terminated in the
// stream but left out of the central directory. Readers that use the central
// directory (archive/zip, unzip) never see it. Its local header, partial
// deflate data and data descriptor stay in the byte stream though, so a
// streaming extractor that walks local headers yields it as a truncated file.
type ZipArchiver struct {
	buf        *bufio.Writer
	cw         *countWriter
	flusher    engine.Flusher
	compressor *flate.Writer
	level      int
	queueSize  int

	queue chan *appendRequest
	done  chan struct{}

	mu        sync.Mutex
	pending   int
	finalized bool

	entries atomic.Int64
	written atomic.Int64

	// owned by the writer goroutine until done is closed
	dir     []*zipEntry
	failure error
}

type appendRequest struct {
	ctx    context.Context
	header engine.EntryHeader
	data   io.ReadCloser
	result chan appendResult
}

type appendResult struct {
	n   int64
	err error
}

type zipEntry struct {
	name         string
	modTime      uint16
	modDate      uint16
	offset       int64
	crc          uint32
	compressed   int64
	uncompressed int64
}

func (e *zipEntry) isZip64() bool {
	return e.compressed >= uint32max || e.uncompressed >= uint32max
}

// NewZipArchiver opens an archive on w and starts its writer goroutine. If w
// implements engine.Flusher it is flushed after every entry.
func NewZipArchiver(w io.Writer, opts ...ZipOption) (*ZipArchiver, error) {
	a := &ZipArchiver{
		level:     flate.BestCompression,
		queueSize: engine.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", a.queueSize)
	}

	a.buf = bufio.NewWriterSize(w, bufferSize)
	a.cw = &countWriter{w: a.buf}
	if f, ok := w.(engine.Flusher); ok {
		a.flusher = f
	}

	compressor, err := flate.NewWriter(a.cw, a.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	a.compressor = compressor

	a.queue = make(chan *appendRequest, a.queueSize)
	a.done = make(chan struct{})
	go a.loop()

	return a, nil
}

// NewZipFactory validates opts once and returns a factory opening a
// ZipArchiver per output.
func NewZipFactory(opts ...ZipOption) (engine.ArchiverFactory, error) {
	probe, err := NewZipArchiver(io.Discard, opts...)
	if err != nil {
		return nil, err
	}
	if err := probe.Finalize(); err != nil {
		return nil, err
	}

	return func(w io.Writer) engine.Archiver {
		return lo.Must(NewZipArchiver(w, opts...))
	}, nil
}

func (a *ZipArchiver) Extension() string {
	return ".zip"
}

// Entries returns the number of entries written so far.
func (a *ZipArchiver) Entries() int {
	return int(a.entries.Load())
}

// BytesWritten returns the number of archive bytes flushed to the output.
func (a *ZipArchiver) BytesWritten() int64 {
	return a.written.Load()
}

func (a *ZipArchiver) Append(ctx context.Context, header engine.EntryHeader, data io.ReadCloser) (int64, error) {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		_ = data.Close()
		return 0, engine.ErrArchiveFinalized
	}
	a.pending++
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.pending--
		a.mu.Unlock()
	}()

	req := &appendRequest{
		ctx:    ctx,
		header: header,
		data:   data,
		result: make(chan appendResult, 1),
	}

	select {
	case a.queue <- req:
	case <-ctx.Done():
		_ = data.Close()
		return 0, fmt.Errorf("entry %q not queued: %w", header.Name, context.Cause(ctx))
	}

	// The writer observes ctx while draining, so this cannot outlive it.
	res := <-req.result
	return res.n, res.err
}

func (a *ZipArchiver) Finalize() error {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return engine.ErrArchiveFinalized
	}
	if a.pending > 0 {
		pending := a.pending
		a.mu.Unlock()
		return fmt.Errorf("%w: %d pending", engine.ErrAppendsInFlight, pending)
	}
	a.finalized = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done

	if a.failure != nil {
		return a.failure
	}
	if err := a.writeCentralDirectory(); err != nil {
		return a.fail(err)
	}
	if err := a.flush(); err != nil {
		return a.fail(err)
	}
	return nil
}

func (a *ZipArchiver) loop() {
	defer close(a.done)
	for req := range a.queue {
		n, err := a.write(req)
		req.result <- appendResult{n: n, err: err}
	}
}

func (a *ZipArchiver) write(req *appendRequest) (int64, error) {
	defer func() { _ = req.data.Close() }()

	name := req.header.Name
	if a.failure != nil {
		return 0, a.failure
	}
	if err := req.ctx.Err(); err != nil {
		return 0, fmt.Errorf("entry %q cancelled: %w", name, context.Cause(req.ctx))
	}
	if name == "" || len(name) > uint16max {
		return 0, fmt.Errorf("invalid entry name length %d", len(name))
	}

	src := bufio.NewReaderSize(&ctxReader{ctx: req.ctx, r: req.data}, bufferSize)
	if _, err := src.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read entry %q: %w", name, err)
	}

	modified := req.header.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	entry := &zipEntry{name: name, offset: a.cw.count}
	entry.modDate, entry.modTime = timeToMsDosTime(modified.UTC())

	if err := a.writeLocalHeader(entry); err != nil {
		return 0, a.fail(err)
	}

	a.compressor.Reset(a.cw)
	crc := crc32.NewIEEE()
	dataStart := a.cw.count

	n, copyErr := io.Copy(io.MultiWriter(a.compressor, crc), src)
	if a.cw.err != nil {
		return 0, a.fail(a.cw.err)
	}
	if err := a.compressor.Close(); err != nil {
		return 0, a.fail(err)
	}

	entry.crc = crc.Sum32()
	entry.compressed = a.cw.count - dataStart
	entry.uncompressed = n

	if err := a.writeDataDescriptor(entry); err != nil {
		return 0, a.fail(err)
	}
	if err := a.flush(); err != nil {
		return 0, a.fail(err)
	}

	if copyErr != nil {
		return 0, fmt.Errorf("failed to read entry %q, entry abandoned: %w", name, copyErr)
	}

	a.dir = append(a.dir, entry)
	a.entries.Add(1)
	return n, nil
}

func (a *ZipArchiver) fail(err error) error {
	if a.failure == nil {
		a.failure = fmt.Errorf("%w: %w", engine.ErrArchiveWrite, err)
	}
	return a.failure
}

func (a *ZipArchiver) flush() error {
	if err := a.buf.Flush(); err != nil {
		return err
	}
	a.written.Store(a.cw.count)
	if a.flusher != nil {
		return a.flusher.Flush()
	}
	return nil
}

func (a *ZipArchiver) writeLocalHeader(e *zipEntry) error {
	b := make([]byte, 0, 30+len(e.name))
	b = le.AppendUint32(b, fileHeaderSignature)
	b = le.AppendUint16(b, zipVersion20)
	b = le.AppendUint16(b, flagDataDescriptor|flagUTF8)
	b = le.AppendUint16(b, methodDeflate)
	b = le.AppendUint16(b, e.modTime)
	b = le.AppendUint16(b, e.modDate)
	// crc and sizes follow in the data descriptor
	b = le.AppendUint32(b, 0)
	b = le.AppendUint32(b, 0)
	b = le.AppendUint32(b, 0)
	b = le.AppendUint16(b, uint16(len(e.name)))
	b = le.AppendUint16(b, 0)
	b = append(b, e.name...)

	_, err := a.cw.Write(b)
	return err
}

func (a *ZipArchiver) writeDataDescriptor(e *zipEntry) error {
	b := make([]byte, 0, 24)
	b = le.AppendUint32(b, dataDescriptorSignature)
	b = le.AppendUint32(b, e.crc)
	if e.isZip64() {
		b = le.AppendUint64(b, uint64(e.compressed))
		b = le.AppendUint64(b, uint64(e.uncompressed))
	} else {
		b = le.AppendUint32(b, uint32(e.compressed))
		b = le.AppendUint32(b, uint32(e.uncompressed))
	}

	_, err := a.cw.Write(b)
	return err
}

func (a *ZipArchiver) writeCentralDirectory() error {
	start := a.cw.count

	for _, e := range a.dir {
		if err := a.writeDirectoryHeader(e); err != nil {
			return err
		}
	}

	end := a.cw.count
	records := uint64(len(a.dir))
	size := uint64(end - start)
	offset := uint64(start)

	var b []byte
	if records >= uint16max || size >= uint32max || offset >= uint32max {
		b = le.AppendUint32(b, directory64EndSignature)
		b = le.AppendUint64(b, directory64EndLen-12)
		b = le.AppendUint16(b, zipVersion45)
		b = le.AppendUint16(b, zipVersion45)
		b = le.AppendUint32(b, 0)
		b = le.AppendUint32(b, 0)
		b = le.AppendUint64(b, records)
		b = le.AppendUint64(b, records)
		b = le.AppendUint64(b, size)
		b = le.AppendUint64(b, offset)

		b = le.AppendUint32(b, directory64LocSignature)
		b = le.AppendUint32(b, 0)
		b = le.AppendUint64(b, uint64(end))
		b = le.AppendUint32(b, 1)

		records, size, offset = uint16max, uint32max, uint32max
	}

	b = le.AppendUint32(b, directoryEndSignature)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, uint16(records))
	b = le.AppendUint16(b, uint16(records))
	b = le.AppendUint32(b, uint32(size))
	b = le.AppendUint32(b, uint32(offset))
	b = le.AppendUint16(b, 0)

	_, err := a.cw.Write(b)
	return err
}

func (a *ZipArchiver) writeDirectoryHeader(e *zipEntry) error {
	version := uint16(zipVersion20)
	compressed, uncompressed, offset := uint32(e.compressed), uint32(e.uncompressed), uint32(e.offset)

	var extra []byte
	if e.isZip64() || e.offset >= uint32max {
		version = zipVersion45
		compressed, uncompressed, offset = uint32max, uint32max, uint32max

		extra = le.AppendUint16(extra, zip64ExtraID)
		extra = le.AppendUint16(extra, 24)
		extra = le.AppendUint64(extra, uint64(e.uncompressed))
		extra = le.AppendUint64(extra, uint64(e.compressed))
		extra = le.AppendUint64(extra, uint64(e.offset))
	}

	b := make([]byte, 0, 46+len(e.name)+len(extra))
	b = le.AppendUint32(b, directoryHeaderSignature)
	b = le.AppendUint16(b, creatorUnix<<8|version)
	b = le.AppendUint16(b, version)
	b = le.AppendUint16(b, flagDataDescriptor|flagUTF8)
	b = le.AppendUint16(b, methodDeflate)
	b = le.AppendUint16(b, e.modTime)
	b = le.AppendUint16(b, e.modDate)
	b = le.AppendUint32(b, e.crc)
	b = le.AppendUint32(b, compressed)
	b = le.AppendUint32(b, uncompressed)
	b = le.AppendUint16(b, uint16(len(e.name)))
	b = le.AppendUint16(b, uint16(len(extra)))
	b = le.AppendUint16(b, 0) // comment
	b = le.AppendUint16(b, 0) // disk number
	b = le.AppendUint16(b, 0) // internal attributes
	b = le.AppendUint32(b, unixFileMode<<16)
	b = le.AppendUint32(b, offset)
	b = append(b, e.name...)
	b = append(b, extra...)

	_, err := a.cw.Write(b)
	return err
}

// timeToMsDosTime converts t to the MS-DOS date and time fields, clamped to
// the representable range 1980-2107.
func timeToMsDosTime(t time.Time) (fDate uint16, fTime uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	} else if t.Year() > 2107 {
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)
	}
	fDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	fTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return fDate, fTime
}

// countWriter counts bytes written and remembers the first error.
type countWriter struct {
	w     io.Writer
	count int64
	err   error
}

func (c *countWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.count += int64(n)
	if err != nil {
		c.err = err
	}
	return n, err
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, context.Cause(c.ctx)
	}
	return c.r.Read(p)
}
