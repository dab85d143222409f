package stats

// Which selects the sub-aggregators a Column maintains. It is a plain
// comparable value: columns built from different Which values cannot be
// merged.
type Which struct {
	// IncludeNulls counts empty fields of numeric columns toward the
	// population used for mean and stddev.
	IncludeNulls bool `yaml:"include_nulls" json:"include_nulls"`
	// Range tracks min and max.
	Range bool `yaml:"range" json:"range"`
	// Dist tracks mean and stddev.
	Dist bool `yaml:"dist" json:"dist"`
	// Cardinality counts distinct values. Buffers every field.
	Cardinality bool `yaml:"cardinality" json:"cardinality"`
	// Median buffers every numeric field.
	Median bool `yaml:"median" json:"median"`
	// Mode buffers every field.
	Mode bool `yaml:"mode" json:"mode"`
	// EmptyAsNull reports NULL for a column that never saw a non-empty
	// field instead of InitialType.
	EmptyAsNull bool `yaml:"empty_as_null" json:"empty_as_null"`
}

// DefaultWhich enables the statistics that need no sample buffering.
func DefaultWhich() Which {
	return Which{Range: true, Dist: true}
}

// Buffered reports whether any statistic needs every sample kept in memory.
func (w Which) Buffered() bool {
	return w.Cardinality || w.Median || w.Mode
}

// Headers returns the output header row matching the records produced by
// columns configured with w. The first entry labels the column name.
func Headers(w Which) []string {
	h := []string{"field", "type", "min", "max", "mean", "stddev"}
	if w.Median {
		h = append(h, "median")
	}
	if w.Mode {
		h = append(h, "mode")
	}
	if w.Cardinality {
		h = append(h, "cardinality")
	}
	return h
}
