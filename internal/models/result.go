package models

// RetrievalResult is a single query-time hit. It is recomputed on every
// query and never persisted.
type RetrievalResult struct {
	Fragment   Fragment `json:"fragment"`
	Similarity float64  `json:"similarity"`
	Rank       int      `json:"rank"`
}

// QueryAnswer is the output of the full question-answering pipeline.
type QueryAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Sources lists the distinct source documents behind the answer, sorted.
	Sources        []string `json:"sources"`
	RetrievedCount int      `json:"retrieved_count"`
	// ContextChars is the length in runes of the assembled grounding context.
	ContextChars int `json:"context_chars"`
}
