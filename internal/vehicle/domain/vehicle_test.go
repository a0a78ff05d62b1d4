package domain

import (
	"errors"
	"testing"
	"time"
)

func validVehicle() *Vehicle {
	return &Vehicle{ID: "v1", PlateNumber: "ABC-1234", Model: "Corolla", Manufacturer: "Toyota", Year: 2023, Type: TypeCar}
}

func TestVehicle_Validate(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	empty := ""
	tests := []struct {
		name   string
		mutate func(v *Vehicle)
		ok     bool
	}{
		{"valid", func(v *Vehicle) {}, true},
		{"next year allowed", func(v *Vehicle) { v.Year = 2027 }, true},
		{"oldest year allowed", func(v *Vehicle) { v.Year = MinYear }, true},
		{"missing id", func(v *Vehicle) { v.ID = "" }, false},
		{"missing plate", func(v *Vehicle) { v.PlateNumber = "" }, false},
		{"missing model", func(v *Vehicle) { v.Model = "" }, false},
		{"missing manufacturer", func(v *Vehicle) { v.Manufacturer = "" }, false},
		{"too old", func(v *Vehicle) { v.Year = 1899 }, false},
		{"future", func(v *Vehicle) { v.Year = 2028 }, false},
		{"bad type", func(v *Vehicle) { v.Type = "tank" }, false},
		{"empty driver id", func(v *Vehicle) { v.DriverID = &empty }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validVehicle()
			tt.mutate(v)
			err := v.Validate(now)
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestVehicle_Normalize(t *testing.T) {
	v := &Vehicle{PlateNumber: "  ABC-1 ", Model: " X ", Manufacturer: "Y ", SIMNumber: " 89 ", DeviceID: " GPS "}
	v.Normalize()
	if v.PlateNumber != "ABC-1" || v.Model != "X" || v.Manufacturer != "Y" || v.SIMNumber != "89" || v.DeviceID != "GPS" {
		t.Errorf("Normalize = %+v", v)
	}
}

func TestType_Valid(t *testing.T) {
	for _, typ := range []Type{TypeCar, TypeBus, TypeTruck, TypeVan, TypeMotorcycle} {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if Type("Car").Valid() {
		t.Error("types are case-sensitive")
	}
}
