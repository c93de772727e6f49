package contracts

import "time"

// Sulfur limits in hundredths of a percent (100 => 0.10%).
const (
	ECALimit    uint64 = 100
	NonECALimit uint64 = 500
)

// Notice messages filed for each kind of violation.
const (
	MessageECAViolation    = "Non-compliance: Exceeds 0.10% sulfur limit in ECA."
	MessageNonECAViolation = "Non-compliance: Exceeds 0.50% sulfur limit outside ECA."
)

// Reading is a sulfur measurement as submitted by a vessel owner.
type Reading struct {
	VesselID      string `json:"vessel_id"`
	SulfurContent uint64 `json:"sulfur_content"`
	Position      string `json:"position"`
	IsECA         bool   `json:"is_eca"`
	PortState     string `json:"port_state"`
}

// EmissionRecord is an accepted reading with its compliance verdict.
// Records are immutable once appended to a vessel's history.
type EmissionRecord struct {
	ID            string    `json:"id"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	VesselID      string    `json:"vessel_id"`
	SulfurContent uint64    `json:"sulfur_content"`
	Position      string    `json:"position"`
	IsECA         bool      `json:"is_eca"`
	IsCompliant   bool      `json:"is_compliant"`
	PortState     string    `json:"port_state"`
	PrevHash      string    `json:"prev_hash"`
	Hash          string    `json:"hash"`
}

// Threshold returns the applicable sulfur limit.
func Threshold(isECA bool) uint64 {
	if isECA {
		return ECALimit
	}
	return NonECALimit
}

// IsCompliant is the whole compliance policy: the reading must not exceed
// the limit for its zone. The boundary value is compliant.
func IsCompliant(isECA bool, sulfurContent uint64) bool {
	return sulfurContent <= Threshold(isECA)
}

// ViolationMessage returns the fixed notice text for a violation in the zone.
func ViolationMessage(isECA bool) string {
	if isECA {
		return MessageECAViolation
	}
	return MessageNonECAViolation
}

// EmissionRecorded is published to subscribers after a recording commits.
type EmissionRecorded struct {
	RecordID      string    `json:"record_id"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	VesselID      string    `json:"vessel_id"`
	SulfurContent uint64    `json:"sulfur_content"`
	Position      string    `json:"position"`
	IsECA         bool      `json:"is_eca"`
	IsCompliant   bool      `json:"is_compliant"`
	PortState     string    `json:"port_state"`
}

// RecordedEvent builds the subscriber event for a committed record.
func RecordedEvent(rec EmissionRecord) EmissionRecorded {
	return EmissionRecorded{
		RecordID:      rec.ID,
		Sequence:      rec.Sequence,
		Timestamp:     rec.Timestamp,
		VesselID:      rec.VesselID,
		SulfurContent: rec.SulfurContent,
		Position:      rec.Position,
		IsECA:         rec.IsECA,
		IsCompliant:   rec.IsCompliant,
		PortState:     rec.PortState,
	}
}
