// Package csvsource adapts CSV files and streams to the engine's row
// sources. Plain files with a fresh index are exposed as indexed sources
// so the engine can split them across workers; compressed files and
// standard input are read sequentially.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colstats/internal/engine"
	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/compression"
	"github.com/ajitpratap0/colstats/pkg/csvindex"
	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// StdinPath names standard input.
const StdinPath = "-"

const utf8BOM = "\uFEFF"

// Options configures CSV parsing.
type Options struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// NoHeaders treats the first record as data. Columns are then labelled
	// by their 1-based position.
	NoHeaders bool
	// Flexible allows records with a varying number of fields.
	Flexible bool
	// LazyQuotes tolerates quotes in unquoted fields.
	LazyQuotes bool
	// IndexPath overrides the index location, <path>.idx by default.
	IndexPath string
}

// IndexOptions returns the csvindex options matching o.
func (o Options) IndexOptions() csvindex.Options {
	return csvindex.Options{Comma: o.Delimiter, LazyQuotes: o.LazyQuotes}
}

func (o Options) indexPath(path string) string {
	if o.IndexPath != "" {
		return o.IndexPath
	}
	return csvindex.Path(path)
}

func (o Options) newReader(r io.Reader, width int) *csv.Reader {
	rdr := csv.NewReader(r)
	if o.Delimiter != 0 {
		rdr.Comma = o.Delimiter
	}
	rdr.LazyQuotes = o.LazyQuotes
	rdr.ReuseRecord = true
	rdr.FieldsPerRecord = width
	if o.Flexible {
		rdr.FieldsPerRecord = -1
	}
	return rdr
}

// Input is a row source that holds open resources.
type Input interface {
	engine.Source
	Close() error
}

// Open opens path as an input. "-" reads standard input. A plain file with
// an index that is at least as new as the file is opened as an indexed
// source; a stale index is ignored with a warning.
func Open(path string, opts Options, logger *zap.Logger) (Input, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" || path == StdinPath {
		logger.Debug("reading standard input")
		return NewStream(os.Stdin, opts), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open input").
			WithDetail("path", path)
	}
	logger = logger.With(zap.String("path", path))
	logger.Debug("opening input", zap.String("size", humanize.Bytes(uint64(info.Size()))))

	file := NewFile(path, opts)
	if file.alg != compression.None {
		logger.Debug("compressed input is read sequentially", zap.String("compression", string(file.alg)))
		return file, nil
	}

	idxPath := opts.indexPath(path)
	fresh, err := csvindex.Fresh(path, idxPath)
	if err != nil {
		return nil, err
	}
	if !fresh {
		if _, statErr := os.Stat(idxPath); statErr == nil {
			logger.Warn("index is older than its data file, ignoring it", zap.String("index", idxPath))
		}
		return file, nil
	}

	indexed, err := NewIndexedFile(path, idxPath, opts)
	if err != nil {
		logger.Warn("unusable index, ignoring it", zap.String("index", idxPath), zap.Error(err))
		return file, nil
	}
	logger.Debug("using index",
		zap.String("index", idxPath),
		zap.String("records", humanize.Comma(indexed.idx.Records())))
	return indexed, nil
}

// File is a sequential source over a possibly compressed CSV file.
type File struct {
	path    string
	opts    Options
	alg     compression.Algorithm
	mu      sync.Mutex
	headers []string
	first   bool // headers have been read
}

// NewFile creates a sequential source for path. Compression is detected
// from the file extension.
func NewFile(path string, opts Options) *File {
	return &File{path: path, opts: opts, alg: compression.Detect(path)}
}

func (f *File) open() (io.Reader, []io.Closer, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open input").
			WithDetail("path", f.path)
	}
	dec, err := compression.OpenReader(f.alg, fh)
	if err != nil {
		fh.Close()
		return nil, nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to decompress input").
			WithDetail("path", f.path)
	}
	return dec, []io.Closer{dec, fh}, nil
}

// Headers reads the header row, or labels the columns of the first record
// when the file has no header row. An empty file has no columns.
func (f *File) Headers() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.first {
		return f.headers, nil
	}
	r, closers, err := f.open()
	if err != nil {
		return nil, err
	}
	defer closeAll(closers)

	rec, err := f.opts.newReader(r, -1).Read()
	switch {
	case errors.Is(err, io.EOF):
		f.headers = []string{}
	case err != nil:
		return nil, readError(err)
	default:
		f.headers = headerLabels(rec, f.opts.NoHeaders)
	}
	f.first = true
	return f.headers, nil
}

// Rows reads every data row from the start of the file.
func (f *File) Rows(ctx context.Context) (engine.RowIterator, error) {
	headers, err := f.Headers()
	if err != nil {
		return nil, err
	}
	r, closers, err := f.open()
	if err != nil {
		return nil, err
	}
	it := newRowIterator(f.opts.newReader(r, len(headers)), closers)
	if !f.opts.NoHeaders && len(headers) > 0 {
		if _, err := it.r.Read(); err != nil && !errors.Is(err, io.EOF) {
			it.Close()
			return nil, readError(err)
		}
	}
	return it, nil
}

// Close implements Input. A File holds no resources between calls.
func (f *File) Close() error {
	return nil
}

// IndexedFile is a plain CSV file with an index, readable from any row.
type IndexedFile struct {
	*File
	idx *csvindex.Index
}

// NewIndexedFile opens the index at indexPath for the CSV file at path.
func NewIndexedFile(path, indexPath string, opts Options) (*IndexedFile, error) {
	file := NewFile(path, opts)
	if file.alg != compression.None {
		return nil, colerrors.New(colerrors.ErrorTypeConfig, "compressed files cannot be indexed").
			WithDetail("path", path)
	}
	idx, err := csvindex.Open(indexPath)
	if err != nil {
		return nil, err
	}
	return &IndexedFile{File: file, idx: idx}, nil
}

// dataStart is the record number of the first data row.
func (f *IndexedFile) dataStart() int64 {
	if f.opts.NoHeaders {
		return 0
	}
	return 1
}

// Count is the number of indexed data rows.
func (f *IndexedFile) Count() (int64, error) {
	n := f.idx.Records() - f.dataStart()
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// OpenAt reads data rows starting at the zero-based data row offset.
func (f *IndexedFile) OpenAt(ctx context.Context, offset int64) (engine.RowIterator, error) {
	headers, err := f.Headers()
	if err != nil {
		return nil, err
	}
	pos, err := f.idx.Offset(offset + f.dataStart())
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open input").
			WithDetail("path", f.path)
	}
	if _, err := fh.Seek(pos, io.SeekStart); err != nil {
		fh.Close()
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to seek input").
			WithDetail("path", f.path).
			WithDetail("offset", pos)
	}
	return newRowIterator(f.opts.newReader(fh, len(headers)), []io.Closer{fh}), nil
}

// Close releases the index.
func (f *IndexedFile) Close() error {
	return f.idx.Close()
}

// Stream is a source over a reader that can only be consumed once, such as
// standard input.
type Stream struct {
	opts    Options
	rdr     *csv.Reader
	headers []string
	pending []string // first record when it is data
	first   bool
	used    bool
}

// NewStream creates a stream source over r.
func NewStream(r io.Reader, opts Options) *Stream {
	return &Stream{opts: opts, rdr: opts.newReader(r, -1)}
}

// Headers reads the first record. It is kept for Rows when it is data.
func (s *Stream) Headers() ([]string, error) {
	if s.first {
		return s.headers, nil
	}
	rec, err := s.rdr.Read()
	switch {
	case errors.Is(err, io.EOF):
		s.headers = []string{}
	case err != nil:
		return nil, readError(err)
	default:
		s.headers = headerLabels(rec, s.opts.NoHeaders)
		if s.opts.NoHeaders {
			s.pending = append([]string(nil), rec...)
		}
		if !s.opts.Flexible {
			s.rdr.FieldsPerRecord = len(rec)
		}
	}
	s.first = true
	return s.headers, nil
}

// Rows returns the remaining records. It may be called once.
func (s *Stream) Rows(ctx context.Context) (engine.RowIterator, error) {
	if s.used {
		return nil, colerrors.New(colerrors.ErrorTypeInternal, "stream input can only be read once")
	}
	if _, err := s.Headers(); err != nil {
		return nil, err
	}
	s.used = true
	it := newRowIterator(s.rdr, nil)
	it.pending = s.pending
	s.pending = nil
	return it, nil
}

// Close implements Input. The underlying reader is owned by the caller.
func (s *Stream) Close() error {
	return nil
}

type rowIterator struct {
	r       *csv.Reader
	closers []io.Closer
	pending []string
	row     engine.Row
}

func newRowIterator(r *csv.Reader, closers []io.Closer) *rowIterator {
	return &rowIterator{r: r, closers: closers}
}

// Next returns the next record. The returned row aliases the strings
// produced by the CSV reader and must not be modified.
func (it *rowIterator) Next() (engine.Row, error) {
	rec := it.pending
	it.pending = nil
	if rec == nil {
		var err error
		rec, err = it.r.Read()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, readError(err)
		}
	}
	it.row = it.row[:0]
	for _, field := range rec {
		it.row = append(it.row, stringpool.StringToBytes(field))
	}
	return it.row, nil
}

func (it *rowIterator) Close() error {
	return closeAll(it.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func headerLabels(rec []string, synthetic bool) []string {
	headers := make([]string, len(rec))
	for i, h := range rec {
		if synthetic {
			headers[i] = strconv.Itoa(i + 1)
			continue
		}
		if i == 0 && len(h) >= len(utf8BOM) && h[:len(utf8BOM)] == utf8BOM {
			h = h[len(utf8BOM):]
		}
		headers[i] = stringpool.ToValidUTF8(h)
	}
	return headers
}

func readError(err error) error {
	wrapped := colerrors.Wrap(err, colerrors.ErrorTypeData, "malformed CSV")
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		wrapped = wrapped.WithDetail("line", perr.Line).WithDetail("column", perr.Column)
	}
	return wrapped
}
