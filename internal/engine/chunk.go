package engine

// Chunk is a contiguous range of data rows handled by one parallel task.
type Chunk struct {
	Index int   // position of the chunk in the plan
	Start int64 // zero-based offset of the first row
	Len   int64 // number of rows
}

// PlanChunks splits rows into consecutive chunks of size rows each; the
// last chunk may be shorter. A plan for zero rows is empty.
func PlanChunks(rows, size int64) []Chunk {
	if rows <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	count := (rows + size - 1) / size

	chunks := make([]Chunk, count)
	for i := range chunks {
		start := int64(i) * size
		n := size
		if start+n > rows {
			n = rows - start
		}
		chunks[i] = Chunk{Index: i, Start: start, Len: n}
	}
	return chunks
}

// ChunkSize is ceil(rows/workers), never less than one.
func ChunkSize(rows int64, workers int) int64 {
	w := int64(workers)
	if w < 1 {
		w = 1
	}
	size := (rows + w - 1) / w
	if size < 1 {
		size = 1
	}
	return size
}
