package types

// Confidence bands a query answer by how decisive the retrieval scores were
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Source is one retrieved chunk backing an answer, ordered by descending
// similarity in QueryResult.Sources.
type Source struct {
	FilePath   string  `json:"file_path"`
	ChunkName  string  `json:"chunk_name,omitempty"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Similarity float64 `json:"similarity"`
}

// QueryResult is the ephemeral outcome of one question. It is never
// persisted.
type QueryResult struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Confidence Confidence `json:"confidence"`

	// Found is false when no chunk cleared the similarity threshold;
	// Answer then states that no relevant code was found.
	Found bool `json:"found"`

	// Degraded is true when answer synthesis failed and Sources carry the
	// raw ranked chunks without synthesized prose.
	Degraded bool `json:"degraded"`
}
