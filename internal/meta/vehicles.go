package meta

import (
	"sort"

	"github.com/openuav/buildforge/internal/domain"
)

// Vehicle is one buildable firmware flavour. BuildTarget is the argument
// handed to the toolchain's build step.
type Vehicle struct {
	Name        string `json:"name"`
	BuildTarget string `json:"build_target"`
}

// VehicleCatalog validates vehicle ids on submission and supplies the
// toolchain target for each. The set is fixed at startup.
type VehicleCatalog struct {
	byName map[string]Vehicle
}

// DefaultVehicles is the standard vehicle lineup.
func DefaultVehicles() []Vehicle {
	return []Vehicle{
		{Name: "Copter", BuildTarget: "copter"},
		{Name: "Plane", BuildTarget: "plane"},
		{Name: "Rover", BuildTarget: "rover"},
		{Name: "Sub", BuildTarget: "sub"},
		{Name: "Heli", BuildTarget: "heli"},
		{Name: "Blimp", BuildTarget: "blimp"},
		{Name: "Tracker", BuildTarget: "antennatracker"},
	}
}

// NewVehicleCatalog creates a catalog of the given vehicles.
func NewVehicleCatalog(vehicles []Vehicle) *VehicleCatalog {
	byName := make(map[string]Vehicle, len(vehicles))
	for _, vehicle := range vehicles {
		byName[vehicle.Name] = vehicle
	}
	return &VehicleCatalog{byName: byName}
}

// Names returns all vehicle names, sorted.
func (c *VehicleCatalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the vehicle with the given name, or ErrUnknownVehicle.
func (c *VehicleCatalog) Lookup(name string) (Vehicle, error) {
	vehicle, ok := c.byName[name]
	if !ok {
		return Vehicle{}, domain.ErrUnknownVehicle
	}
	return vehicle, nil
}
