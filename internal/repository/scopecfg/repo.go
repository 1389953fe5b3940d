// Package scopecfg reads scope configurations and live-data auth credentials
// from the configuration collaborator's store. All reads are point lookups;
// the records are written elsewhere and treated as immutable here.
package scopecfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tanagra-labs/querent/internal/db"
	"github.com/tanagra-labs/querent/internal/domain"
)

// DefaultKeyPrefix namespaces the collaborator's records.
const DefaultKeyPrefix = "querent:"

// Repo resolves scope and credential records.
type Repo struct {
	store  db.Reader
	prefix string
}

// New creates a repo over the given store. An empty prefix falls back to
// DefaultKeyPrefix.
func New(store db.Reader, prefix string) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repo{store: store, prefix: prefix}
}

// GetScope returns the scope configuration for the given id.
func (r *Repo) GetScope(ctx context.Context, scopeID string) (domain.Scope, error) {
	var scope domain.Scope
	err := r.getJSON(ctx, r.prefix+"scope:"+scopeID, &scope)
	if errors.Is(err, db.ErrKeyNotFound) {
		return domain.Scope{}, fmt.Errorf("%w: %s", domain.ErrScopeNotFound, scopeID)
	}
	if err != nil {
		return domain.Scope{}, err
	}
	return scope, nil
}

// GetBusinessAuth resolves the API key for a (businessId, scopeId) pair.
func (r *Repo) GetBusinessAuth(ctx context.Context, businessID, scopeID string) (domain.AuthCredential, error) {
	return r.getCredential(ctx, r.prefix+"auth:business:"+businessID+":"+scopeID)
}

// GetUserAuth resolves the API key for a (userId, scopeId) pair.
func (r *Repo) GetUserAuth(ctx context.Context, userID, scopeID string) (domain.AuthCredential, error) {
	return r.getCredential(ctx, r.prefix+"auth:user:"+userID+":"+scopeID)
}

func (r *Repo) getCredential(ctx context.Context, key string) (domain.AuthCredential, error) {
	var cred domain.AuthCredential
	err := r.getJSON(ctx, key, &cred)
	if errors.Is(err, db.ErrKeyNotFound) {
		return domain.AuthCredential{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.AuthCredential{}, err
	}
	return cred, nil
}

func (r *Repo) getJSON(ctx context.Context, key string, dst any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
