// Package common holds value types shared by DTOs, repositories, and domain
// entities across the MolPrep-Engine pipeline.
package common

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// ID is a string alias for UUID v4.
type ID string

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// BaseEntity carries identity and audit metadata for domain entities and DTOs.
type BaseEntity struct {
	ID        ID        `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Touch updates the audit timestamps, setting CreatedAt on first call.
func (e *BaseEntity) Touch(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Version++
}

// Pagination defines parameters for paginated requests.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}

// Validate checks pagination bounds, applying no defaults.
func (p Pagination) Validate() error {
	if p.Page < 1 {
		return errors.InvalidParam("page must be >= 1")
	}
	if p.PageSize < 1 || p.PageSize > 1000 {
		return errors.InvalidParam("page_size must be in [1, 1000]")
	}
	return nil
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// SortOrder defines the direction of sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)
