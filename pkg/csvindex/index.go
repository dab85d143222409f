// Package csvindex builds and reads random-access indexes of CSV files.
//
// An index file holds the byte offset of every CSV record (header row
// included) as a big-endian uint64, followed by the record count as a
// big-endian uint64. Seeking to record n is one 8-byte read plus a file
// seek, which lets parallel workers start anywhere in the file.
package csvindex

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
)

// Suffix is appended to a data file path to name its index.
const Suffix = ".idx"

const entrySize = 8

// Path returns the conventional index path of dataPath.
func Path(dataPath string) string {
	return dataPath + Suffix
}

// Options configures how records are delimited while indexing. They must
// match the options later used to read the data.
type Options struct {
	Comma      rune
	LazyQuotes bool
}

// Build reads CSV from r and writes its index to w. It returns the number
// of records indexed.
func Build(r io.Reader, opts Options, w io.Writer) (int64, error) {
	rdr := csv.NewReader(r)
	if opts.Comma != 0 {
		rdr.Comma = opts.Comma
	}
	rdr.LazyQuotes = opts.LazyQuotes
	rdr.FieldsPerRecord = -1
	rdr.ReuseRecord = true

	bw := bufio.NewWriterSize(w, 64*1024)
	var buf [entrySize]byte
	var count int64
	for {
		offset := rdr.InputOffset()
		_, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, colerrors.Wrap(err, colerrors.ErrorTypeData, "failed to read record").
				WithDetail("record", count)
		}
		binary.BigEndian.PutUint64(buf[:], uint64(offset))
		if _, err := bw.Write(buf[:]); err != nil {
			return count, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write index")
		}
		count++
	}
	binary.BigEndian.PutUint64(buf[:], uint64(count))
	if _, err := bw.Write(buf[:]); err != nil {
		return count, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write index")
	}
	if err := bw.Flush(); err != nil {
		return count, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write index")
	}
	return count, nil
}

// Create indexes the file at dataPath and writes the index to indexPath,
// replacing any previous index atomically.
func Create(dataPath, indexPath string, opts Options) (int64, error) {
	data, err := os.Open(dataPath)
	if err != nil {
		return 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open data file").
			WithDetail("path", dataPath)
	}
	defer data.Close()

	tmp, err := os.CreateTemp(filepath.Dir(indexPath), filepath.Base(indexPath)+".*.tmp")
	if err != nil {
		return 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to create index file").
			WithDetail("path", indexPath)
	}
	defer os.Remove(tmp.Name())

	count, err := Build(data, opts, tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write index file")
	}
	if err := os.Rename(tmp.Name(), indexPath); err != nil {
		return 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to install index file").
			WithDetail("path", indexPath)
	}
	return count, nil
}

// Fresh reports whether the index at indexPath exists and was written no
// earlier than the data file was last modified.
func Fresh(dataPath, indexPath string) (bool, error) {
	idx, err := os.Stat(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to stat index").
			WithDetail("path", indexPath)
	}
	data, err := os.Stat(dataPath)
	if err != nil {
		return false, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to stat data file").
			WithDetail("path", dataPath)
	}
	return !idx.ModTime().Before(data.ModTime()), nil
}

// Index is an open index file. It is safe for concurrent use.
type Index struct {
	f     *os.File
	count int64
}

// Open opens and validates the index at path.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open index").
			WithDetail("path", path)
	}
	idx, err := newIndex(f)
	if err != nil {
		f.Close()
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "invalid index").
			WithDetail("path", path)
	}
	return idx, nil
}

func newIndex(f *os.File) (*Index, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < entrySize || size%entrySize != 0 {
		return nil, colerrors.New(colerrors.ErrorTypeData, "index size is not a multiple of 8").
			WithDetail("size", size)
	}
	var buf [entrySize]byte
	if _, err := f.ReadAt(buf[:], size-entrySize); err != nil {
		return nil, err
	}
	count := int64(binary.BigEndian.Uint64(buf[:]))
	if count != size/entrySize-1 {
		return nil, colerrors.New(colerrors.ErrorTypeData, "index record count does not match its size").
			WithDetail("count", count).
			WithDetail("size", size)
	}
	return &Index{f: f, count: count}, nil
}

// Records is the number of indexed records, header row included.
func (i *Index) Records() int64 {
	return i.count
}

// Offset returns the byte offset of the record with zero-based position n.
func (i *Index) Offset(n int64) (int64, error) {
	if n < 0 || n >= i.count {
		return 0, colerrors.New(colerrors.ErrorTypeData, "record out of index range").
			WithDetail("record", n).
			WithDetail("records", i.count)
	}
	var buf [entrySize]byte
	if _, err := i.f.ReadAt(buf[:], n*entrySize); err != nil {
		return 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to read index entry").
			WithDetail("record", n)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// Close releases the index file.
func (i *Index) Close() error {
	return i.f.Close()
}
