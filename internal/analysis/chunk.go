package analysis

// ChunkText splits text into overlapping windows for provider submission.
// Each chunk holds at most size characters and starts overlap characters
// before the previous chunk's end. Text at or under size yields one chunk.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
