// Package selection parses column selections such as
//
//	name,3,first-last,"a, b",dup[1],-2,5-,!id
//
// and resolves them against a header row.
//
// A selection is a comma separated list of items. An item is a field or an
// inclusive range of fields written start-end, where either end may be
// omitted to mean the first or last column. A field is a 1-based column
// index, a column name, or a double-quoted name ("" escapes a quote) for
// names containing commas, dashes or brackets. A name may be followed by
// [n] to pick its n-th occurrence (0-based) when headers repeat. Ranges
// whose start lies after their end select columns in reverse. A leading !
// inverts the selection: every column not named, in header order.
package selection

import (
	"strconv"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// field refers to one column, by index or by name.
type field struct {
	index int    // 1-based; 0 when name is used
	name  string // column name
	nth   int    // occurrence of name
}

// item is a single field (start == end, !isRange) or an inclusive range
// whose missing ends are nil.
type item struct {
	start, end *field
	isRange    bool
}

// Selection is a parsed column selection. The zero value selects every
// column.
type Selection struct {
	items  []item
	invert bool
	raw    string
}

// All selects every column in header order.
func All() *Selection {
	return &Selection{}
}

// Parse parses a selection expression. The empty string selects every
// column.
func Parse(s string) (*Selection, error) {
	sel := &Selection{raw: s}
	p := &parser{src: s}
	if p.peek() == '!' {
		sel.invert = true
		p.pos++
	}
	if p.eof() {
		if sel.invert {
			return nil, p.errorf("inverted selection selects nothing")
		}
		return sel, nil
	}
	for {
		it, err := p.item()
		if err != nil {
			return nil, err
		}
		sel.items = append(sel.items, it)
		if p.eof() {
			return sel, nil
		}
		if p.peek() != ',' {
			return nil, p.errorf("expected ','")
		}
		p.pos++
	}
}

// String returns the expression the selection was parsed from.
func (s *Selection) String() string {
	return s.raw
}

// Select resolves the selection against headers into 0-based column
// positions, in selection order.
func (s *Selection) Select(headers []string) ([]int, error) {
	if len(s.items) == 0 && !s.invert {
		all := make([]int, len(headers))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	var picked []int
	for _, it := range s.items {
		cols, err := it.resolve(headers)
		if err != nil {
			return nil, err
		}
		picked = append(picked, cols...)
	}
	if !s.invert {
		return picked, nil
	}

	excluded := make(map[int]struct{}, len(picked))
	for _, c := range picked {
		excluded[c] = struct{}{}
	}
	inverted := make([]int, 0, len(headers)-len(excluded))
	for i := range headers {
		if _, ok := excluded[i]; !ok {
			inverted = append(inverted, i)
		}
	}
	return inverted, nil
}

func (it item) resolve(headers []string) ([]int, error) {
	if len(headers) == 0 {
		return nil, colerrors.New(colerrors.ErrorTypeConfig, "cannot select columns of an input without columns")
	}
	if !it.isRange {
		c, err := it.start.resolve(headers)
		if err != nil {
			return nil, err
		}
		return []int{c}, nil
	}

	first, last := 0, len(headers)-1
	var err error
	if it.start != nil {
		if first, err = it.start.resolve(headers); err != nil {
			return nil, err
		}
	}
	if it.end != nil {
		if last, err = it.end.resolve(headers); err != nil {
			return nil, err
		}
	}

	step := 1
	if first > last {
		step = -1
	}
	cols := make([]int, 0, (last-first)*step+1)
	for c := first; ; c += step {
		cols = append(cols, c)
		if c == last {
			return cols, nil
		}
	}
}

func (f *field) resolve(headers []string) (int, error) {
	if f.index > 0 {
		if f.index > len(headers) {
			return 0, colerrors.New(colerrors.ErrorTypeConfig, "column index out of range").
				WithDetail("index", f.index).
				WithDetail("columns", len(headers))
		}
		return f.index - 1, nil
	}
	seen := 0
	for i, h := range headers {
		if h != f.name {
			continue
		}
		if seen == f.nth {
			return i, nil
		}
		seen++
	}
	return 0, colerrors.New(colerrors.ErrorTypeConfig, "column not found").
		WithDetail("name", f.name).
		WithDetail("occurrence", f.nth)
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(msg string) error {
	return colerrors.New(colerrors.ErrorTypeConfig, "invalid selection: "+msg).
		WithDetail("selection", p.src).
		WithDetail("position", p.pos)
}

func (p *parser) item() (item, error) {
	var it item
	if p.peek() != '-' {
		f, err := p.field()
		if err != nil {
			return it, err
		}
		it.start = f
	}
	if p.peek() != '-' {
		if it.start == nil {
			return it, p.errorf("expected a column")
		}
		it.end = it.start
		return it, nil
	}
	p.pos++
	it.isRange = true
	if p.eof() || p.peek() == ',' {
		if it.start == nil {
			return it, p.errorf("range has neither start nor end")
		}
		return it, nil
	}
	f, err := p.field()
	if err != nil {
		return it, err
	}
	it.end = f
	return it, nil
}

func (p *parser) field() (*field, error) {
	var name string
	if p.peek() == '"' {
		quoted, err := p.quoted()
		if err != nil {
			return nil, err
		}
		name = quoted
	} else {
		start := p.pos
		for !p.eof() {
			c := p.peek()
			if c == ',' || c == '-' || c == '[' {
				break
			}
			p.pos++
		}
		name = stringpool.TrimSpace(p.src[start:p.pos])
		if name == "" {
			return nil, p.errorf("empty column name")
		}
		if n, err := strconv.Atoi(name); err == nil && p.peek() != '[' {
			if n < 1 {
				return nil, p.errorf("column indices start at 1")
			}
			return &field{index: n}, nil
		}
	}

	f := &field{name: name}
	if p.peek() == '[' {
		p.pos++
		start := p.pos
		for !p.eof() && p.peek() != ']' {
			p.pos++
		}
		if p.eof() {
			return nil, p.errorf("unclosed '['")
		}
		n, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil || n < 0 {
			return nil, p.errorf("occurrence must be a non-negative integer")
		}
		p.pos++
		f.nth = n
	}
	return f, nil
}

// quoted reads a double-quoted name starting at the opening quote.
func (p *parser) quoted() (string, error) {
	p.pos++
	b := stringpool.GetBuilder()
	defer stringpool.PutBuilder(b)
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		if c != '"' {
			b.WriteString(p.src[p.pos-1 : p.pos])
			continue
		}
		if p.peek() == '"' {
			p.pos++
			b.WriteString(`"`)
			continue
		}
		return stringpool.Clone(b.String()), nil
	}
	return "", p.errorf("unterminated quoted name")
}
