// Package credentials implements domain.CredentialLookup against Postgres:
// one row per (owner, capability) naming the provider adapter to use and
// the secret it needs.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/sqlinline"
)

// Store is a pgx/v5-backed domain.CredentialLookup.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Lookup satisfies domain.CredentialLookup. A missing row is not an error —
// it returns nil, which callers treat as "no credential configured": the
// direct/refine handlers and the Orchestrator's phases report a
// NoCredentialsError, and cost estimation leaves that capability out.
func (s *Store) Lookup(ownerID string, capability domain.Capability) (*domain.Credential, error) {
	ctx := context.Background()
	row := s.sql.QueryRow(ctx, sqlinline.QSelectCredential, ownerID, string(capability))
	var (
		provider, endpoint, token, model, quality string
		extraJSON                                  []byte
	)
	err := row.Scan(&provider, &endpoint, &token, &model, &quality, &extraJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cred := &domain.Credential{
		Provider: provider,
		Endpoint: endpoint,
		Token:    strings.TrimSpace(token),
		Model:    model,
		Quality:  quality,
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &cred.Extra); err != nil {
			return nil, err
		}
	}
	return cred, nil
}

// Set upserts the credential an owner uses for a capability. Used by the
// credential-management CLI and any future admin endpoint.
func (s *Store) Set(ctx context.Context, ownerID string, capability domain.Capability, cred domain.Credential) error {
	if strings.TrimSpace(cred.Provider) == "" {
		return errors.New("credentials: provider is required")
	}
	extraJSON, err := json.Marshal(cred.Extra)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertCredential,
		ownerID, string(capability), cred.Provider, cred.Endpoint, cred.Token, cred.Model, cred.Quality, extraJSON,
	)
	return err
}

var _ domain.CredentialLookup = (*Store)(nil)
