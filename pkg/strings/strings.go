// Package strings provides zero-copy string utilities with pooled builders
// used on the hot path of column aggregation.
package strings

import (
	"fmt"
	"sync"
	"unicode/utf8"
	"unsafe"
)

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice while the string is in use, and copy it
// (see Clone) before retaining it.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes converts a string to a byte slice without allocation.
// The returned slice must never be written to.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Clone creates a copy of a string (useful when you need to own the memory)
func Clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return BytesToString(b)
}

// TrimSpace removes leading and trailing ASCII whitespace
func TrimSpace(s string) string {
	start := 0
	end := len(s)

	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}

	return s[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// ToLower lowercases ASCII letters. It returns s unchanged, without
// allocating, when there is nothing to lower.
func ToLower(s string) string {
	i := 0
	for i < len(s) && !('A' <= s[i] && s[i] <= 'Z') {
		i++
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return BytesToString(b)
}

// ToValidUTF8 decodes s lossily: every invalid byte sequence becomes
// U+FFFD. Valid input is returned as is.
func ToValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	b := GetBuilder()
	defer PutBuilder(b)
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			b.WriteString("\uFFFD")
		} else {
			b.WriteString(s[:size])
		}
		s = s[size:]
	}
	return Clone(b.String())
}

// Builder provides efficient string building with zero-copy operations
type Builder struct {
	buf []byte
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// Write implements io.Writer interface
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the built string using zero-copy conversion
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Len returns the current length
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// maxPooledCapacity keeps builders that grew on one long value out of the pool.
const maxPooledCapacity = 16 * 1024

var builderPool = sync.Pool{
	New: func() interface{} {
		return &Builder{buf: make([]byte, 0, 256)}
	},
}

// GetBuilder retrieves an empty pooled builder
func GetBuilder() *Builder {
	builder := builderPool.Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the pool
func PutBuilder(builder *Builder) {
	if builder == nil || cap(builder.buf) > maxPooledCapacity {
		return
	}
	builder.Reset()
	builderPool.Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	builder := GetBuilder()
	defer PutBuilder(builder)

	fmt.Fprintf(builder, format, args...)

	return Clone(builder.String())
}
