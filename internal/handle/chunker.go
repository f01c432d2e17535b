package handle

import (
	"github.com/google/uuid"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// Partition splits the handle's line range into ceil(totalLines/chunkSize)
// contiguous chunks and registers them. The ranges are a pure function of
// (file line count, chunkSize): repeated calls with identical parameters
// yield identical ranges, though the opaque ids differ per call.
//
// Fails CHUNK_BUDGET_EXCEEDED when the partition needs more than budget
// chunks; no chunks are registered in that case.
func (t *Table) Partition(handleID string, chunkSize, budget int) ([]*Chunk, error) {
	h, err := t.Get(handleID)
	if err != nil {
		return nil, err
	}
	if chunkSize < 1 {
		return nil, fault.New(fault.CodeChunkBudgetExceeded, "chunk_size must be positive, got %d", chunkSize)
	}
	if budget < 1 {
		return nil, fault.New(fault.CodeChunkBudgetExceeded, "budget must be positive, got %d", budget)
	}

	if err := t.verifyFresh(h); err != nil {
		return nil, err
	}

	totalLines, err := CountLines(h.Path)
	if err != nil {
		return nil, err
	}

	needed := (totalLines + chunkSize - 1) / chunkSize
	if totalLines == 0 {
		needed = 1 // an empty file still partitions into one empty chunk
	}
	if needed > budget {
		return nil, fault.New(fault.CodeChunkBudgetExceeded,
			"partition needs %d chunks, budget is %d", needed, budget)
	}

	chunks := make([]*Chunk, 0, needed)
	for i := 0; i < needed; i++ {
		start := i*chunkSize + 1
		end := start + chunkSize - 1
		if end > totalLines {
			end = totalLines
		}
		if totalLines == 0 {
			start, end = 1, 1
		}
		chunks = append(chunks, &Chunk{
			ID:        uuid.NewString(),
			HandleID:  h.ID,
			Index:     i,
			StartLine: start,
			EndLine:   end,
		})
	}

	t.mu.Lock()
	for _, c := range chunks {
		t.chunks[c.ID] = c
	}
	t.mu.Unlock()

	return chunks, nil
}
