package domain

import "time"

// Role is the logical function of a device on the bus.
type Role string

const (
	RoleGridMeter  Role = "grid"
	RoleInverter   Role = "inverter"
	RolePVInverter Role = "pvinverter"
)

// DeviceCandidate is one entry of the ordered discovery list of a role.
type DeviceCandidate struct {
	Role       Role   `mapstructure:"role"`
	ServiceID  string `mapstructure:"service"`
	ObjectPath string `mapstructure:"path"`
	// Invert flips the sign of the value read, for meters reporting import as positive
	Invert bool `mapstructure:"invert"`
}

// Endpoint is a candidate that answered a probe.
type Endpoint struct {
	Role       Role
	ServiceID  string
	ObjectPath string
	Invert     bool
	ResolvedAt time.Time
}

func EndpointFromCandidate(c DeviceCandidate, at time.Time) Endpoint {
	return Endpoint{
		Role:       c.Role,
		ServiceID:  c.ServiceID,
		ObjectPath: c.ObjectPath,
		Invert:     c.Invert,
		ResolvedAt: at,
	}
}

// Normalize applies the endpoint sign convention. Positive = export / discharge.
func (e Endpoint) Normalize(value float64) float64 {
	if e.Invert {
		return -value
	}
	return value
}

type PowerReading struct {
	Watts     float64
	Source    []Endpoint
	Timestamp time.Time
}

// LimitState survives between iterations. Known is false until the first successful write.
type LimitState struct {
	LastAppliedW float64
	Known        bool
	TargetW      float64
}

// Previous returns the last applied limit, or fallback when none was applied yet.
func (s LimitState) Previous(fallback float64) float64 {
	if !s.Known {
		return fallback
	}
	return s.LastAppliedW
}

// WriteTarget addresses a writable bus item. An empty ServiceID means the
// service of the endpoint resolved for the actuated role.
type WriteTarget struct {
	ServiceID string `mapstructure:"service"`
	Path      string `mapstructure:"path"`
}

func (t WriteTarget) Service(ep Endpoint) string {
	if t.ServiceID == "" {
		return ep.ServiceID
	}
	return t.ServiceID
}
