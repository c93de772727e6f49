package notice

import (
	"fmt"
	"time"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/canonicalize"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// Hash computes the chain hash of n. The Hash field itself is not covered.
func Hash(n contracts.ComplianceNotice) (string, error) {
	hashable := struct {
		ID        string    `json:"id"`
		Sequence  uint64    `json:"sequence"`
		Timestamp time.Time `json:"timestamp"`
		VesselID  string    `json:"vessel_id"`
		RecordID  string    `json:"record_id"`
		Message   string    `json:"message"`
		FlagState string    `json:"flag_state"`
		PortState string    `json:"port_state"`
		FiledBy   string    `json:"filed_by"`
		PrevHash  string    `json:"prev_hash"`
	}{
		ID:        n.ID,
		Sequence:  n.Sequence,
		Timestamp: n.Timestamp.UTC(),
		VesselID:  n.VesselID,
		RecordID:  n.RecordID,
		Message:   n.Message,
		FlagState: n.FlagState,
		PortState: n.PortState,
		FiledBy:   string(n.FiledBy),
		PrevHash:  n.PrevHash,
	}
	h, err := canonicalize.CanonicalHash(hashable)
	if err != nil {
		return "", fmt.Errorf("notice: hash: %w", err)
	}
	return h, nil
}

// VerifyChain checks sequence numbering and hash links of notices in filing order.
func VerifyChain(notices []contracts.ComplianceNotice) error {
	expectedPrev := contracts.GenesisHash
	for i, n := range notices {
		if n.Sequence != uint64(i)+1 {
			return fmt.Errorf("%w: notice %d has sequence %d", contracts.ErrChainBroken, i, n.Sequence)
		}
		if n.PrevHash != expectedPrev {
			return fmt.Errorf("%w: notice %d has prev_hash %s but expected %s",
				contracts.ErrChainBroken, n.Sequence, n.PrevHash, expectedPrev)
		}
		computed, err := Hash(n)
		if err != nil {
			return fmt.Errorf("%w: notice %d: %w", contracts.ErrChainBroken, n.Sequence, err)
		}
		if computed != n.Hash {
			return fmt.Errorf("%w: notice %d hash mismatch (computed %s, stored %s)",
				contracts.ErrChainBroken, n.Sequence, computed, n.Hash)
		}
		expectedPrev = n.Hash
	}
	return nil
}
