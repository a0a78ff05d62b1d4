package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Vehicle is a fleet vehicle, optionally assigned to one driver (a user).
type Vehicle struct {
	ID           string
	PlateNumber  string
	Model        string
	Manufacturer string
	Year         int
	Type         Type
	SIMNumber    string
	DeviceID     string // GPS device
	DriverID     *string
	// Driver is populated on single-vehicle reads when a driver is assigned.
	Driver    *Driver
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Driver is the assigned user as shown alongside a vehicle.
type Driver struct {
	ID    string
	Name  string
	Email string
	Phone string
}

type Type string

const (
	TypeCar        Type = "car"
	TypeBus        Type = "bus"
	TypeTruck      Type = "truck"
	TypeVan        Type = "van"
	TypeMotorcycle Type = "motorcycle"
)

// Valid reports whether t is a known vehicle type.
func (t Type) Valid() bool {
	switch t {
	case TypeCar, TypeBus, TypeTruck, TypeVan, TypeMotorcycle:
		return true
	}
	return false
}

// Assignment status filter values.
const (
	StatusAssigned   = "assigned"
	StatusUnassigned = "unassigned"
)

// MinYear is the oldest manufacturing year accepted.
const MinYear = 1900

var (
	ErrNotFound              = errors.New("no vehicle found with that id")
	ErrPlateTaken            = errors.New("vehicle with this plate number already exists")
	ErrDriverNotFound        = errors.New("driver not found")
	ErrDriverAlreadyAssigned = errors.New("driver is already assigned to another vehicle")
	ErrNoDriverAssigned      = errors.New("no driver is currently assigned to this vehicle")
	// ErrInvalid wraps every field validation failure.
	ErrInvalid = errors.New("invalid vehicle")
)

// MaxYear is the newest manufacturing year accepted at now: next year's models are allowed.
func MaxYear(now time.Time) int {
	return now.Year() + 1
}

// Normalize trims the free-text fields.
func (v *Vehicle) Normalize() {
	v.PlateNumber = strings.TrimSpace(v.PlateNumber)
	v.Model = strings.TrimSpace(v.Model)
	v.Manufacturer = strings.TrimSpace(v.Manufacturer)
	v.SIMNumber = strings.TrimSpace(v.SIMNumber)
	v.DeviceID = strings.TrimSpace(v.DeviceID)
}

// Validate checks the vehicle for persistence at time now. Returns an error wrapping ErrInvalid
// describing the first failure.
func (v *Vehicle) Validate(now time.Time) error {
	switch {
	case v.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalid)
	case v.PlateNumber == "":
		return fmt.Errorf("%w: a vehicle must have a plate number", ErrInvalid)
	case v.Model == "":
		return fmt.Errorf("%w: a vehicle must have a model", ErrInvalid)
	case v.Manufacturer == "":
		return fmt.Errorf("%w: a vehicle must have a manufacturer", ErrInvalid)
	case v.Year < MinYear:
		return fmt.Errorf("%w: year must be %d or later", ErrInvalid, MinYear)
	case v.Year > MaxYear(now):
		return fmt.Errorf("%w: year cannot be in the future", ErrInvalid)
	case !v.Type.Valid():
		return fmt.Errorf("%w: invalid vehicle type %q", ErrInvalid, v.Type)
	case v.DriverID != nil && *v.DriverID == "":
		return fmt.Errorf("%w: driver id must not be empty", ErrInvalid)
	}
	return nil
}
