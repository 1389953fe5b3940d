package querent

// SearchRequest carries the parameters shared by the query endpoints.
type SearchRequest struct {
	Query             string `json:"query"`
	Scope             string `json:"scope,omitempty"`
	BusinessID        string `json:"businessId"`
	UserID            string `json:"userId"`
	Type              string `json:"type,omitempty"`
	QueryNegative     string `json:"queryNegative,omitempty"`
	GroupByExternalID bool   `json:"groupByExternalId,omitempty"`
}

// Command is an action attached to an element.
type Command struct {
	CommandName string `json:"commandName"`
	CommandUrl  string `json:"commandUrl"`
}

// Result is a single ranked search hit.
type Result struct {
	ID             string    `json:"id"`
	Scope          string    `json:"scope"`
	BusinessID     string    `json:"businessId,omitempty"`
	Title          string    `json:"title"`
	Fulltext       string    `json:"fulltext"`
	FulltextLive   string    `json:"fulltextLive,omitempty"`
	Commands       []Command `json:"commands,omitempty"`
	RelevanceScore int       `json:"relevanceScore"`
}

// ImageResult is a single ranked image hit.
type ImageResult struct {
	ID             string `json:"id"`
	Scope          string `json:"scope"`
	Title          string `json:"title,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	ElementID      string `json:"elementId,omitempty"`
	RelevanceScore int    `json:"relevanceScore"`
}

// Chunk is one member of an aggregated group.
type Chunk struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ChunkSection string  `json:"chunkSection,omitempty"`
	Fulltext     string  `json:"fulltext"`
	Score        float64 `json:"score"`
}

// Group is an aggregation of chunks sharing an external ID.
type Group struct {
	ExternalID       string  `json:"externalId"`
	AvgScore         float64 `json:"avgScore"`
	MaxPositiveScore float64 `json:"maxPositiveScore,omitempty"`
	MaxNegativeScore float64 `json:"maxNegativeScore,omitempty"`
	Chunks           []Chunk `json:"chunks"`
}

// DeepResult is one streamed deep-search finding. ParentLevel is nil for
// first-level results and carries the parent element ID for expansions.
type DeepResult struct {
	ID          string    `json:"id"`
	Commands    []Command `json:"commands"`
	Summary     string    `json:"summary"`
	ParentLevel *string   `json:"parentLevel"`
}

// Element is a retrievable knowledge element.
type Element struct {
	ID                 string    `json:"id,omitempty"`
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
}

// ReembedReport summarizes a bulk re-embedding run.
type ReembedReport struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// HealthReport is the service health snapshot. Per-component checks map
// to "ok" or "error".
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
