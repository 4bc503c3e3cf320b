package models

// Index states reported by Status.
const (
	IndexStateOnline = "online"
	IndexStateEmpty  = "empty"
)

// IndexStatus describes the embedding index.
type IndexStatus struct {
	State          string `json:"state"`
	FragmentCount  int    `json:"fragment_count"`
	EmbeddingModel string `json:"embedding_model"`
}

// BackendStatus describes the completion backend as of the last probe.
type BackendStatus struct {
	State           string   `json:"state"`
	BaseURL         string   `json:"base_url"`
	ActiveModel     string   `json:"active_model"`
	AvailableModels []string `json:"available_models"`
}

// Status is the aggregated service snapshot returned by the status endpoint.
type Status struct {
	Index   IndexStatus   `json:"index"`
	Backend BackendStatus `json:"backend"`
	Sources []string      `json:"sources"`
}
