// Package boost defines the promotional boost model, its lifecycle rules and
// the scope conflict predicate.
package boost

import "time"

// Type identifies the kind of promotional placement.
type Type string

const (
	TypeFeatured  Type = "featured"
	TypeTopOfList Type = "top_of_list"
	TypeHighlight Type = "highlight"
)

// Types lists every known boost type.
var Types = []Type{TypeFeatured, TypeTopOfList, TypeHighlight}

// ValidType reports whether t is a known boost type.
func ValidType(t Type) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ScopeType identifies what the scope ids refer to.
type ScopeType string

const (
	ScopeProduct  ScopeType = "product"
	ScopeCategory ScopeType = "category"
)

// ValidScopeType reports whether st is a known scope type.
func ValidScopeType(st ScopeType) bool {
	return st == ScopeProduct || st == ScopeCategory
}

// DurationUnit is the unit a boost window is expressed in.
type DurationUnit string

const (
	UnitDay  DurationUnit = "day"
	UnitHour DurationUnit = "hour"
)

// Duration is the requested length of a boost window.
type Duration struct {
	Value int          `json:"value"`
	Unit  DurationUnit `json:"unit"`
}

// Window returns the end instant for a window starting at start. Day and hour
// units each have their own path.
func (d Duration) Window(start time.Time) time.Time {
	switch d.Unit {
	case UnitHour:
		return start.Add(time.Duration(d.Value) * time.Hour)
	default:
		return start.AddDate(0, 0, d.Value)
	}
}

// Valid reports whether the duration is usable: value at least 1 and a known
// unit.
func (d Duration) Valid() bool {
	return d.Value >= 1 && (d.Unit == UnitDay || d.Unit == UnitHour)
}

// Boost is one promotional grant over a scope for a time window.
type Boost struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendorId"`
	Type      Type      `json:"boost_type"`
	ScopeType ScopeType `json:"scope_type"`
	ScopeIDs  []string  `json:"scope_ids"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Duration  Duration  `json:"duration"`
	Price     int64     `json:"price"`
	Priority  int       `json:"priority"`
	Status    Status    `json:"status"`
	Deleted   bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConflictsWith reports whether two boosts collide: same vendor, boost type
// and scope type, with at least one shared scope id. Status and the exclusion
// of the candidate itself are handled by the caller; time windows are
// deliberately not compared, so back-to-back windows over the same scope
// still conflict while either holds a live status.
func (b Boost) ConflictsWith(other Boost) bool {
	if b.VendorID != other.VendorID || b.Type != other.Type || b.ScopeType != other.ScopeType {
		return false
	}
	return scopesIntersect(b.ScopeIDs, other.ScopeIDs)
}

func scopesIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Patch carries optional replacement fields for an update. Absent fields keep
// their current value; present fields are validated exactly as on creation.
type Patch struct {
	Type      *Type      `json:"boost_type"`
	ScopeType *ScopeType `json:"scope_type"`
	ScopeIDs  []string   `json:"scope_ids"`
	Duration  *Duration  `json:"duration"`
	Price     *int64     `json:"price"`
	Priority  *int       `json:"priority"`
	StartDate *time.Time `json:"start_date"`
}
