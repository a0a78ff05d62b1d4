// Package service implements vehicle management and driver assignment.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	userdomain "fleet-management/backend/internal/user/domain"
	"fleet-management/backend/internal/vehicle/domain"
	"fleet-management/backend/internal/vehicle/repository"
)

const (
	DefaultPage  = 1
	DefaultLimit = repository.DefaultLimit
)

var tracer = otel.Tracer("fleet-management/backend/internal/vehicle/service")

// DriverLookup resolves drivers. GetByID returns (nil, nil) for an unknown id.
type DriverLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// CreateInput is a new vehicle. DriverID is optional.
type CreateInput struct {
	PlateNumber  string
	Model        string
	Manufacturer string
	Year         int
	Type         domain.Type
	SIMNumber    string
	DeviceID     string
	DriverID     *string
}

// UpdateInput is a partial update; nil fields are left unchanged. The plate number cannot change.
type UpdateInput struct {
	Model        *string
	Manufacturer *string
	Year         *int
	Type         *domain.Type
	SIMNumber    *string
	DeviceID     *string
	DriverID     *string
}

// ListParams pages and filters List. Sort is a comma-separated field list; a leading "-" sorts descending.
type ListParams struct {
	Page   int
	Limit  int
	Sort   string
	Status string
}

type Service struct {
	vehicles repository.Repository
	drivers  DriverLookup
	now      func() time.Time
}

func NewService(vehicles repository.Repository, drivers DriverLookup) *Service {
	return &Service{vehicles: vehicles, drivers: drivers, now: time.Now}
}

// NewServiceWithClock is NewService with an injectable clock, for tests.
func NewServiceWithClock(vehicles repository.Repository, drivers DriverLookup, now func() time.Time) *Service {
	return &Service{vehicles: vehicles, drivers: drivers, now: now}
}

// Create validates and stores a vehicle. An assigned driver must exist and not drive another vehicle.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Vehicle, error) {
	ctx, span := tracer.Start(ctx, "vehicle.Create")
	defer span.End()

	now := s.now().UTC()
	v := &domain.Vehicle{
		ID:           uuid.New().String(),
		PlateNumber:  in.PlateNumber,
		Model:        in.Model,
		Manufacturer: in.Manufacturer,
		Year:         in.Year,
		Type:         in.Type,
		SIMNumber:    in.SIMNumber,
		DeviceID:     in.DeviceID,
		DriverID:     in.DriverID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	v.Normalize()
	if err := v.Validate(now); err != nil {
		return nil, err
	}
	if v.DriverID != nil {
		d, err := s.driver(ctx, *v.DriverID)
		if err != nil {
			return nil, err
		}
		v.Driver = d
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("vehicle.id", v.ID))
	return v, nil
}

// List returns one page of vehicles.
func (s *Service) List(ctx context.Context, p ListParams) ([]*domain.Vehicle, error) {
	ctx, span := tracer.Start(ctx, "vehicle.List")
	defer span.End()

	switch p.Status {
	case "", domain.StatusAssigned, domain.StatusUnassigned:
	default:
		return nil, fmt.Errorf("%w: status must be %s or %s", domain.ErrInvalid, domain.StatusAssigned, domain.StatusUnassigned)
	}
	sort, err := ParseSort(p.Sort)
	if err != nil {
		return nil, err
	}
	page := p.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := p.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, repository.MaxLimit)
	if page-1 > math.MaxInt/limit {
		return nil, fmt.Errorf("%w: page out of range", domain.ErrInvalid)
	}

	return s.vehicles.List(ctx, repository.ListQuery{
		Status: p.Status,
		Sort:   sort,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
}

// Get returns the vehicle with its driver, or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	ctx, span := startWithVehicle(ctx, "vehicle.Get", id)
	defer span.End()

	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

// Update applies a partial update and returns the stored vehicle.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Vehicle, error) {
	ctx, span := startWithVehicle(ctx, "vehicle.Update", id)
	defer span.End()

	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Model != nil {
		v.Model = *in.Model
	}
	if in.Manufacturer != nil {
		v.Manufacturer = *in.Manufacturer
	}
	if in.Year != nil {
		v.Year = *in.Year
	}
	if in.Type != nil {
		v.Type = *in.Type
	}
	if in.SIMNumber != nil {
		v.SIMNumber = *in.SIMNumber
	}
	if in.DeviceID != nil {
		v.DeviceID = *in.DeviceID
	}
	if in.DriverID != nil {
		d, err := s.driver(ctx, *in.DriverID)
		if err != nil {
			return nil, err
		}
		v.DriverID = in.DriverID
		v.Driver = d
	}

	now := s.now().UTC()
	v.UpdatedAt = now
	v.Normalize()
	if err := v.Validate(now); err != nil {
		return nil, err
	}
	if err := s.vehicles.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes the vehicle. Deleting an unknown id succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := startWithVehicle(ctx, "vehicle.Delete", id)
	defer span.End()
	return s.vehicles.Delete(ctx, id)
}

// AssignDriver assigns driverID to the vehicle. The driver must exist and must not be assigned
// to any vehicle, including this one.
func (s *Service) AssignDriver(ctx context.Context, id, driverID string) (*domain.Vehicle, error) {
	ctx, span := startWithVehicle(ctx, "vehicle.AssignDriver", id)
	defer span.End()

	d, err := s.driver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	assigned, err := s.vehicles.ExistsByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if assigned {
		return nil, domain.ErrDriverAlreadyAssigned
	}
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	// the unique index still rejects a concurrent assignment of the same driver
	if err := s.vehicles.SetDriver(ctx, id, &driverID, now); err != nil {
		return nil, err
	}
	v.DriverID = &driverID
	v.Driver = d
	v.UpdatedAt = now
	return v, nil
}

// UnassignDriver clears the vehicle's driver. Returns domain.ErrNoDriverAssigned when there is none.
func (s *Service) UnassignDriver(ctx context.Context, id string) (*domain.Vehicle, error) {
	ctx, span := startWithVehicle(ctx, "vehicle.UnassignDriver", id)
	defer span.End()

	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.DriverID == nil {
		return nil, domain.ErrNoDriverAssigned
	}
	now := s.now().UTC()
	if err := s.vehicles.SetDriver(ctx, id, nil, now); err != nil {
		return nil, err
	}
	v.DriverID = nil
	v.Driver = nil
	v.UpdatedAt = now
	return v, nil
}

func (s *Service) driver(ctx context.Context, id string) (*domain.Driver, error) {
	u, err := s.drivers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrDriverNotFound
	}
	return &domain.Driver{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}, nil
}

// ParseSort parses "year,-created_at" into sort fields. Empty input yields no fields.
func ParseSort(s string) ([]repository.SortField, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []repository.SortField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := repository.SortField{Field: part}
		if rest, ok := strings.CutPrefix(part, "-"); ok {
			f = repository.SortField{Field: rest, Desc: true}
		}
		if !repository.Sortable[f.Field] {
			return nil, fmt.Errorf("%w: cannot sort by %q", domain.ErrInvalid, f.Field)
		}
		out = append(out, f)
	}
	return out, nil
}

func startWithVehicle(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("vehicle.id", id)))
}
