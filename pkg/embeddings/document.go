package embeddings

const (
	MetaFilename       = "filename"
	MetaEmbeddingModel = "embedding_model"
)

type Document struct {
	Id        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float64         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Distance is set on query results only.
	Distance float64 `json:"-"`
}

// Filename returns the originating file name, or "unknown" when the
// metadata doesn't carry one.
func (d *Document) Filename() string {
	if name, ok := d.Metadata[MetaFilename]; ok && name != "" {
		return name
	}
	return "unknown"
}
