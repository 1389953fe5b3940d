package domain

// Live-data auth types a scope may declare.
const (
	AuthTypeNone     = "none"
	AuthTypeBusiness = "business"
	AuthTypeUser     = "user"
)

// Scope is a configuration record owned by the configuration collaborator.
// querent reads scopes, never writes them.
type Scope struct {
	ScopeID          string `json:"scopeId"`
	ScopeType        string `json:"scopeType"`
	LiveDataAuthType string `json:"scopeDataLiveAuthType"`
	LiveDataAuthMeth string `json:"scopeDataLiveAuthMethod"`
	Name             string `json:"name"`
	Description      string `json:"descriptionFullText"`
	// Embedding is the scope's default embedding mode for indexing:
	// standard, fine-tuned, or mixed.
	Embedding string `json:"embedding,omitempty"`
}

// AuthCredential resolves a (businessId|userId, scopeId) pair to the API key
// used for bearer-authenticated live-data fetches.
type AuthCredential struct {
	UserID     string `json:"userId,omitempty"`
	BusinessID string `json:"businessId,omitempty"`
	ScopeID    string `json:"scopeId"`
	APIKey     string `json:"apiKey"`
}
