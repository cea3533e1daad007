package core

// VectorRecord is a single embedded chunk handed to a VectorStore.
type VectorRecord struct {
	ID         string
	Collection string
	Text       string
	Embedding  []float32
	Metadata   map[string]any
}

// RetrievedResult is one similarity-search hit. Results are ordered by
// decreasing Score.
type RetrievedResult struct {
	Content  string
	Metadata map[string]any
	Score    float32
}

// IngestionResult carries what the caller needs to persist a Document record.
type IngestionResult struct {
	FilePath       string `json:"file_path"`
	FileType       string `json:"file_type"`
	CollectionName string `json:"collection_name"`
	NumChunks      int    `json:"num_chunks"`
}

// Source is a retrieved passage as exposed to API clients.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// QueryResult is built fresh for every query and never persisted.
type QueryResult struct {
	Query      string   `json:"query"`
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	NumResults int      `json:"num_results"`
}
