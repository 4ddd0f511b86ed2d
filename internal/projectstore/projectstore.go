// Package projectstore persists Project records, namespaced by owner.
package projectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/sqlinline"
)

// Store is a pgx/v5-backed domain.ProjectRepository.
type Store struct {
	runner *infra.SQLRunner
}

func New(runner *infra.SQLRunner) *Store {
	return &Store{runner: runner}
}

func (s *Store) Create(ctx context.Context, project *domain.Project) error {
	configJSON, err := json.Marshal(project.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.runner.Exec(ctx, sqlinline.QProjectInsert,
		project.ID, project.OwnerID, project.Name, project.Concept, project.Style,
		project.TargetDuration, project.AspectRatio, configJSON,
	)
	return err
}

func (s *Store) GetByID(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	row := s.runner.QueryRow(ctx, sqlinline.QProjectGet, projectID, ownerID)
	project, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return project, err
}

func (s *Store) UpdatePlan(ctx context.Context, ownerID, projectID string, plan *domain.Plan) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.runner.Exec(ctx, sqlinline.QProjectUpdatePlan, projectID, ownerID, planJSON)
	return err
}

func (s *Store) Approve(ctx context.Context, ownerID, projectID string) error {
	tag, err := s.runner.Exec(ctx, sqlinline.QProjectApprove, projectID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ValidationError{Kind: domain.ValidationShape, Message: "project has no plan to approve"}
	}
	return nil
}

func (s *Store) SetActiveJob(ctx context.Context, ownerID, projectID, jobID string) error {
	_, err := s.runner.Exec(ctx, sqlinline.QProjectSetActiveJob, projectID, ownerID, jobID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		project              domain.Project
		configJSON, planJSON []byte
		activeJobID          *string
	)
	err := row.Scan(
		&project.ID, &project.OwnerID, &project.Name, &project.Concept, &project.Style,
		&project.TargetDuration, &project.AspectRatio, &configJSON, &project.CreatedAt, &project.UpdatedAt,
		&planJSON, &project.PlanApproved, &activeJobID,
	)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &project.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(planJSON) > 0 {
		var plan domain.Plan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		project.Plan = &plan
	}
	if activeJobID != nil {
		project.ActiveJobID = *activeJobID
	}
	return &project, nil
}

var _ domain.ProjectRepository = (*Store)(nil)
