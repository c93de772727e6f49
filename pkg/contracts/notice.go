package contracts

import "time"

// ComplianceNotice is the audit record filed for a non-compliant reading.
type ComplianceNotice struct {
	ID        string    `json:"id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	VesselID  string    `json:"vessel_id"`
	RecordID  string    `json:"record_id,omitempty"`
	Message   string    `json:"message"`
	FlagState string    `json:"flag_state"` // copied from the registry at filing time
	PortState string    `json:"port_state"` // copied from the triggering reading
	FiledBy   Identity  `json:"filed_by"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// NoticeDraft carries the caller-supplied notice fields.
type NoticeDraft struct {
	VesselID  string
	RecordID  string
	Message   string
	FlagState string
	PortState string
}

// GenesisHash is the PrevHash of the first entry of every chain.
const GenesisHash = "genesis"
