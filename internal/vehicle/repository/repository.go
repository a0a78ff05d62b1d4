package repository

import (
	"context"
	"time"

	"fleet-management/backend/internal/vehicle/domain"
)

// Paging bounds for List.
const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// SortField orders a List by one column.
type SortField struct {
	Field string
	Desc  bool
}

// Sortable lists the fields List may be ordered by.
var Sortable = map[string]bool{
	"plate_number": true,
	"model":        true,
	"manufacturer": true,
	"year":         true,
	"type":         true,
	"created_at":   true,
	"updated_at":   true,
}

// ListQuery filters and pages List. Status is empty, domain.StatusAssigned or domain.StatusUnassigned.
// Without Sort the newest vehicles come first.
type ListQuery struct {
	Status string
	Sort   []SortField
	Limit  int
	Offset int
}

// Repository persists vehicles.
type Repository interface {
	// Create inserts v. Returns domain.ErrPlateTaken, domain.ErrDriverNotFound or
	// domain.ErrDriverAlreadyAssigned on constraint violations.
	Create(ctx context.Context, v *domain.Vehicle) error
	// GetByID returns the vehicle with its driver populated, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)
	List(ctx context.Context, q ListQuery) ([]*domain.Vehicle, error)
	// Update writes every mutable field of v. Returns domain.ErrNotFound when v does not exist.
	Update(ctx context.Context, v *domain.Vehicle) error
	// Delete removes the vehicle. Deleting a missing vehicle is not an error.
	Delete(ctx context.Context, id string) error
	// SetDriver assigns driverID to the vehicle, or clears the assignment when driverID is nil.
	SetDriver(ctx context.Context, id string, driverID *string, now time.Time) error
	// ExistsByDriver reports whether any vehicle has driverID assigned.
	ExistsByDriver(ctx context.Context, driverID string) (bool, error)
}
