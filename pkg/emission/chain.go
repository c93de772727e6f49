package emission

import (
	"fmt"
	"time"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/canonicalize"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// Hash computes the chain hash of rec. The Hash field itself is not covered.
func Hash(rec contracts.EmissionRecord) (string, error) {
	hashable := struct {
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
	}{
		ID:            rec.ID,
		Sequence:      rec.Sequence,
		Timestamp:     rec.Timestamp.UTC(),
		VesselID:      rec.VesselID,
		SulfurContent: rec.SulfurContent,
		Position:      rec.Position,
		IsECA:         rec.IsECA,
		IsCompliant:   rec.IsCompliant,
		PortState:     rec.PortState,
		PrevHash:      rec.PrevHash,
	}
	h, err := canonicalize.CanonicalHash(hashable)
	if err != nil {
		return "", fmt.Errorf("emission: hash: %w", err)
	}
	return h, nil
}

// VerifyChain checks a vessel's history: sequence numbering, the verdict of
// each record and the hash links.
func VerifyChain(vesselID string, history []contracts.EmissionRecord) error {
	expectedPrev := contracts.GenesisHash
	for i, rec := range history {
		if rec.VesselID != vesselID {
			return fmt.Errorf("%w: record %d belongs to vessel %s", contracts.ErrChainBroken, i, rec.VesselID)
		}
		if rec.Sequence != uint64(i)+1 {
			return fmt.Errorf("%w: vessel %s record %d has sequence %d", contracts.ErrChainBroken, vesselID, i, rec.Sequence)
		}
		if rec.IsCompliant != contracts.IsCompliant(rec.IsECA, rec.SulfurContent) {
			return fmt.Errorf("%w: vessel %s record %d has a wrong verdict", contracts.ErrChainBroken, vesselID, rec.Sequence)
		}
		if rec.PrevHash != expectedPrev {
			return fmt.Errorf("%w: vessel %s record %d has prev_hash %s but expected %s",
				contracts.ErrChainBroken, vesselID, rec.Sequence, rec.PrevHash, expectedPrev)
		}
		computed, err := Hash(rec)
		if err != nil {
			return fmt.Errorf("%w: vessel %s record %d: %w", contracts.ErrChainBroken, vesselID, rec.Sequence, err)
		}
		if computed != rec.Hash {
			return fmt.Errorf("%w: vessel %s record %d hash mismatch (computed %s, stored %s)",
				contracts.ErrChainBroken, vesselID, rec.Sequence, computed, rec.Hash)
		}
		expectedPrev = rec.Hash
	}
	return nil
}
