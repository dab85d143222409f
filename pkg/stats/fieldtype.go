package stats

import (
	"errors"
	"strconv"
	"unicode/utf8"

	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// FieldType is the inferred kind of a column given the samples seen so far.
type FieldType uint8

const (
	// Unknown marks a column containing bytes that are not valid UTF-8.
	Unknown FieldType = iota
	// Null is the type of an empty field.
	Null
	// Unicode is any valid text that is not a number.
	Unicode
	// Float is a number that does not parse as a 64-bit integer.
	Float
	// Integer is a number that parses as a 64-bit integer.
	Integer
)

// InitialType is the type of a column before any sample has been observed.
//
// Inference starts from the most specific type and relaxes as
// counter-examples arrive, so a column made only of empty fields reports
// Integer unless Which.EmptyAsNull is set.
const InitialType = Integer

// Infer classifies a single field.
func Infer(sample []byte) FieldType {
	if len(sample) == 0 {
		return Null
	}
	if !utf8.Valid(sample) {
		return Unknown
	}
	s := stringpool.BytesToString(sample)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer
	}
	if _, err := parseFloat(s); err == nil {
		return Float
	}
	return Unicode
}

// parseFloat is strconv.ParseFloat except that magnitudes beyond float64
// parse as ±Inf instead of failing.
func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && errors.Is(err, strconv.ErrRange) {
		return f, nil
	}
	return f, err
}

// Join returns the least specific type consistent with both a and b.
// It is commutative, associative and idempotent. Null is the identity and
// Unknown absorbs everything.
func Join(a, b FieldType) FieldType {
	switch {
	case a == b:
		return a
	case a == Null:
		return b
	case b == Null:
		return a
	case a == Unknown || b == Unknown:
		return Unknown
	case a == Unicode || b == Unicode:
		return Unicode
	default:
		// the only remaining pair is {Integer, Float}
		return Float
	}
}

// IsNumber reports whether t is Integer or Float.
func (t FieldType) IsNumber() bool {
	return t == Integer || t == Float
}

// IsNull reports whether t is Null.
func (t FieldType) IsNull() bool {
	return t == Null
}

func (t FieldType) String() string {
	switch t {
	case Unknown:
		return "Unknown"
	case Null:
		return "NULL"
	case Unicode:
		return "Unicode"
	case Float:
		return "Float"
	case Integer:
		return "Integer"
	default:
		return "FieldType(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseFieldType is the inverse of FieldType.String. It accepts the
// rendered names case-insensitively plus "null".
func ParseFieldType(s string) (FieldType, bool) {
	switch stringpool.ToLower(s) {
	case "unknown":
		return Unknown, true
	case "null":
		return Null, true
	case "unicode":
		return Unicode, true
	case "float":
		return Float, true
	case "integer":
		return Integer, true
	}
	return Unknown, false
}
