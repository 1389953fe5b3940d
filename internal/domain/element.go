package domain

// VectorDims is the fixed dimensionality of every embedding vector in the
// corpus. Documents indexed with a different width are a schema fault.
const VectorDims = 1024

// BusinessVisibleToAll is the sentinel business id marking an element as
// visible to every caller. The index also stores null with the same meaning.
const BusinessVisibleToAll = "0"

// Command is a named action attached to an element.
type Command struct {
	CommandName string `json:"commandName"`
	CommandUrl  string `json:"commandUrl"`
}

// Element is the indexed retrieval unit ("document" in the search index).
// FulltextVect and FulltextVectFT are the standard and fine-tuned dense
// vectors; an element with non-empty fulltext carries at least one of them
// after indexing.
type Element struct {
	ID                 string    `json:"id"`
	Scope              string    `json:"scope"`
	BusinessID         string    `json:"businessId,omitempty"`
	ExternalID         string    `json:"externalId,omitempty"`
	ChunkSection       string    `json:"chunkSection,omitempty"`
	Title              string    `json:"title"`
	Fulltext           string    `json:"fulltext"`
	Commands           []Command `json:"commands,omitempty"`
	LiveDataURL        string    `json:"liveDataUrl,omitempty"`
	LiveDataTemplate   string    `json:"liveDataTemplate,omitempty"`
	LiveDataValidation string    `json:"liveDataValidation,omitempty"`
	FulltextVect       []float64 `json:"fulltextVect,omitempty"`
	FulltextVectFT     []float64 `json:"fulltextVectFT,omitempty"`
}

// VectorField selects one of the two dense vector fields of an element.
// It replaces by-name reflective field access: the field set is closed.
type VectorField int

const (
	// FieldStandard is the standard-model vector field.
	FieldStandard VectorField = iota
	// FieldFineTuned is the fine-tuned-model vector field.
	FieldFineTuned
)

// Name returns the index field name.
func (f VectorField) Name() string {
	if f == FieldFineTuned {
		return "fulltextVectFT"
	}
	return "fulltextVect"
}

// Vector returns the element's vector for the given field, nil when absent.
func (e *Element) Vector(f VectorField) []float64 {
	if f == FieldFineTuned {
		return e.FulltextVectFT
	}
	return e.FulltextVect
}

// SetVector assigns the element's vector for the given field.
func (e *Element) SetVector(f VectorField, v []float64) {
	if f == FieldFineTuned {
		e.FulltextVectFT = v
		return
	}
	e.FulltextVect = v
}

// ScoredElement pairs an element with its raw backend relevance score.
// Instances live for one request only and are never persisted.
type ScoredElement struct {
	Element Element
	Score   float64
}

// Image is the indexed unit of the image collection.
type Image struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	BusinessID string    `json:"businessId,omitempty"`
	Title      string    `json:"title,omitempty"`
	Fulltext   string    `json:"fulltext,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	ElementID  string    `json:"elementId,omitempty"`
	ImageVect  []float64 `json:"imageVect,omitempty"`
}

// ScoredImage pairs an image with its raw backend score.
type ScoredImage struct {
	Image Image
	Score float64
}
