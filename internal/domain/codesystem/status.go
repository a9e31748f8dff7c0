package codesystem

import "strings"

// Concept status values reported by normalized and universal code systems.
const (
	StatusActive     = "ACTIVE"
	StatusObsolete   = "OBSOLETE"
	StatusRemapped   = "REMAPPED"
	StatusQuantified = "QUANTIFIED"
	StatusRetired    = "RETIRED"
	StatusAlien      = "ALIEN"
	StatusUnknown    = "UNKNOWN"
	StatusNotCurrent = "NOTCURRENT"
)

// NormalizeStatus upper-cases and trims a status value.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// HasRemaps reports whether a concept in this status may point at successor
// concepts.
func HasRemaps(status string) bool {
	switch NormalizeStatus(status) {
	case "", StatusActive, StatusRetired, StatusAlien, StatusUnknown:
		return false
	}
	return true
}

// HasHistory reports whether a concept in this status must be resolved
// through its historical lineage rather than live relationships.
func HasHistory(status string) bool {
	switch NormalizeStatus(status) {
	case StatusRetired, StatusAlien, StatusUnknown:
		return true
	}
	return false
}

// IsLive reports whether the concept is still its own active code.
func IsLive(status string) bool {
	switch NormalizeStatus(status) {
	case StatusActive, StatusRetired:
		return true
	}
	return false
}
