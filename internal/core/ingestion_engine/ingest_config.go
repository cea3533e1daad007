package ingestion_engine

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize:      characters per chunk (1000).
// ChunkOverlap:   characters shared by consecutive chunks (200).
// EmbedBatchSize: chunks sent to the embedding provider per request.
// Workers:        embedding requests in flight for one document.
// TempDir:        where uploads are staged; empty means os.TempDir().
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	Workers        int
	TempDir        string
}

// DefaultIngestConfig returns the settings used when nothing is configured.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		EmbedBatchSize: 16,
		Workers:        4,
	}
}

func (c *IngestConfig) normalize() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// IngestRequest is one upload handed to the ingestor.
type IngestRequest struct {
	Content     []byte
	Filename    string
	Title       string
	Description string
}
