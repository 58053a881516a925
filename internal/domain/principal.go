package domain

import "slices"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

// Principal is the caller identity proven by a capability token.
// Drivers carry the ids of the vehicles they are assigned to.
type Principal struct {
	Subject    string
	Role       Role
	VehicleIDs []string
}

func (p Principal) IsZero() bool { return p.Subject == "" && p.Role == "" }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanReportFor reports whether the principal may push location or incident
// updates for the vehicle.
func (p Principal) CanReportFor(vehicleID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleDriver:
		return slices.Contains(p.VehicleIDs, vehicleID)
	default:
		return false
	}
}
