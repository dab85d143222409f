// Package output renders finalized statistics as CSV, JSON or YAML.
//
// CSV output mirrors the records exactly: a header row followed by one row
// per column. JSON and YAML emit one object per column with keys in header
// order; numeric statistics become numbers and empty ones become null.
// NaN and infinities, which JSON cannot carry as numbers, are written as
// the strings "NaN", "+Inf" and "-Inf"; YAML uses .nan and .inf.
package output

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/compression"
	"github.com/ajitpratap0/colstats/pkg/stats"
)

// Formats.
const (
	CSV  = "csv"
	JSON = "json"
	YAML = "yaml"
)

// StdoutPath names standard output.
const StdoutPath = "-"

// Table is the finalized output of a run: one row per selected column.
type Table struct {
	// Header labels every row entry; Header[0] labels the column name.
	Header []string
	// Fields holds the selected column names.
	Fields []string
	// Records holds one finalized record per field.
	Records []stats.Record
}

// NewTable pairs column names with their records under the header row
// matching which.
func NewTable(which stats.Which, fields []string, records []stats.Record) (*Table, error) {
	header := stats.Headers(which)
	if len(fields) != len(records) {
		return nil, colerrors.New(colerrors.ErrorTypeInternal, "column names and records differ in length").
			WithDetail("fields", len(fields)).
			WithDetail("records", len(records))
	}
	for i, rec := range records {
		if len(rec) != len(header)-1 {
			return nil, colerrors.New(colerrors.ErrorTypeInternal, "record width does not match header").
				WithDetail("field", fields[i]).
				WithDetail("width", len(rec)).
				WithDetail("header", len(header))
		}
	}
	return &Table{Header: header, Fields: fields, Records: records}, nil
}

// Row returns row i with the column name first.
func (t *Table) Row(i int) []string {
	row := make([]string, 0, len(t.Header))
	row = append(row, t.Fields[i])
	return append(row, t.Records[i]...)
}

// Write renders t to w in format.
func Write(w io.Writer, format string, t *Table) error {
	var err error
	switch format {
	case CSV, "":
		err = writeCSV(w, t)
	case JSON:
		err = writeJSON(w, t)
	case YAML:
		err = writeYAML(w, t)
	default:
		return colerrors.New(colerrors.ErrorTypeConfig, "unsupported output format").
			WithDetail("format", format)
	}
	if err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write output").
			WithDetail("format", format)
	}
	return nil
}

func writeCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for i := range t.Records {
		if err := cw.Write(t.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// numeric reports whether the value under key is a number for a column of
// type typ.
func numeric(key, typ string) bool {
	switch key {
	case "mean", "stddev", "median", "cardinality":
		return true
	case "min", "max":
		ft, ok := stats.ParseFieldType(typ)
		return ok && ft.IsNumber()
	}
	return false
}

// nonFinite reports whether value is a NaN or infinite number and returns
// its YAML spelling.
func nonFinite(value string) (string, bool) {
	f, err := strconv.ParseFloat(value, 64)
	switch {
	case err != nil:
		return "", false
	case math.IsNaN(f):
		return ".nan", true
	case math.IsInf(f, 1):
		return ".inf", true
	case math.IsInf(f, -1):
		return "-.inf", true
	}
	return "", false
}

func writeJSON(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	for i := range t.Records {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString("\n  {")
		row := t.Row(i)
		typ := row[1]
		for j, key := range t.Header {
			if j > 0 {
				bw.WriteString(", ")
			}
			k, err := gojson.Marshal(key)
			if err != nil {
				return err
			}
			bw.Write(k)
			bw.WriteString(": ")

			var v []byte
			switch value := row[j]; {
			case value == "" && j > 0:
				v = []byte("null")
			case numeric(key, typ):
				if _, ok := nonFinite(value); ok {
					v, err = gojson.Marshal(value)
					break
				}
				v, err = gojson.Marshal(gojson.Number(value))
			default:
				v, err = gojson.Marshal(value)
			}
			if err != nil {
				return err
			}
			bw.Write(v)
		}
		bw.WriteString("}")
	}
	if len(t.Records) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

func writeYAML(w io.Writer, t *Table) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for i := range t.Records {
		row := t.Row(i)
		typ := row[1]
		obj := &yaml.Node{Kind: yaml.MappingNode}
		for j, key := range t.Header {
			val := &yaml.Node{Kind: yaml.ScalarNode, Value: row[j], Tag: "!!str"}
			switch {
			case row[j] == "" && j > 0:
				val.Tag, val.Value = "!!null", "null"
			case numeric(key, typ):
				val.Tag = ""
				if spelled, ok := nonFinite(row[j]); ok {
					val.Tag, val.Value = "!!float", spelled
				}
			}
			obj.Content = append(obj.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
		}
		doc.Content = append(doc.Content, obj)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Create opens path for writing, compressing by alg, or by the path's
// extension when alg is empty. "-" writes to standard output, which is
// left open by Close.
func Create(path string, alg compression.Algorithm, level compression.Level) (io.WriteCloser, error) {
	if path == "" || path == StdoutPath {
		if alg == "" {
			alg = compression.None
		}
		return compression.OpenWriter(alg, level, os.Stdout)
	}
	if alg == "" {
		alg = compression.Detect(path)
	}
	f, err := os.Create(path) //nolint:gosec // G304: output path comes from the command line
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to create output").
			WithDetail("path", path)
	}
	cw, err := compression.OpenWriter(alg, level, f)
	if err != nil {
		f.Close()
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to open output compressor").
			WithDetail("path", path)
	}
	return &fileWriter{WriteCloser: cw, file: f}, nil
}

// fileWriter closes the compressor before the file beneath it.
type fileWriter struct {
	io.WriteCloser
	file *os.File
}

func (w *fileWriter) Close() error {
	err := w.WriteCloser.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
