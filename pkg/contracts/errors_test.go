package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerErrorMatchesKind(t *testing.T) {
	err := Reject(ErrNotVesselOwner, "record emission", "IMO1234567", "intruder", "")
	wrapped := fmt.Errorf("submit: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotVesselOwner)
	assert.NotErrorIs(t, wrapped, ErrUnregisteredVessel)
	assert.Equal(t, ErrNotVesselOwner, KindOf(wrapped))
	assert.Contains(t, err.Error(), "IMO1234567")
	assert.Contains(t, err.Error(), "intruder")
}

func TestLedgerErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("registry offline")
	err := &LedgerError{Kind: ErrNotVesselOwner, Op: "record emission", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNotVesselOwner)
	assert.Contains(t, err.Error(), "registry offline")
}

func TestKindOfUnknown(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("boom")))
	assert.Nil(t, KindOf(nil))
}

func TestCompliancePolicy(t *testing.T) {
	tests := []struct {
		name   string
		isECA  bool
		sulfur uint64
		want   bool
	}{
		{"eca under", true, 90, true},
		{"eca boundary", true, 100, true},
		{"eca over", true, 101, false},
		{"eca scenario", true, 170, false},
		{"open sea boundary", false, 500, true},
		{"open sea over", false, 501, false},
		{"zero", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCompliant(tt.isECA, tt.sulfur))
		})
	}
	assert.Equal(t, MessageECAViolation, ViolationMessage(true))
	assert.Equal(t, MessageNonECAViolation, ViolationMessage(false))
}
