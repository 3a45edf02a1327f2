package boost

// Status is the lifecycle state of a boost.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusStopped   Status = "stopped"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusActive, StatusExpired, StatusStopped:
		return true
	}
	return false
}

// Live reports whether the status occupies its scope for conflict purposes.
// Only scheduled and active boosts block other admissions.
func (s Status) Live() bool {
	return s == StatusScheduled || s == StatusActive
}

// Deletable reports whether a boost in this status may be soft-deleted.
func (s Status) Deletable() bool {
	return s == StatusDraft || s == StatusExpired
}

// CanStop reports whether a vendor may manually stop a boost in this status.
// The precondition is exact: only a currently active boost can be stopped.
func (s Status) CanStop() bool {
	return s == StatusActive
}

// AdminTarget reports whether s is a status an admin override may force.
// The override is an escape hatch limited to the three settled targets; it
// bypasses the time-driven rules and must be audited by the caller.
func AdminTarget(s Status) bool {
	return s == StatusActive || s == StatusExpired || s == StatusStopped
}
