package domain

import "time"

// Project is the owning record for a Plan and, once generation starts, a Job.
// A Project holds exactly one live Plan at a time; refine replaces it in
// place. Once PlanApproved is true the Plan is frozen (see spec.md §3).
type Project struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	Name          string    `json:"name" validate:"required"`
	Concept       string    `json:"concept" validate:"required"`
	Style         string    `json:"style,omitempty"`
	TargetDuration float64  `json:"targetDuration" validate:"required,gt=0"`
	AspectRatio   string    `json:"aspectRatio" validate:"required,oneof=16:9 9:16 1:1"`
	Config        Constraints `json:"config"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Plan         *Plan  `json:"plan,omitempty"`
	PlanApproved bool   `json:"planApproved"`
	ActiveJobID  string `json:"activeJobId,omitempty"`
}
