//go:build property
// +build property

package emission

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// TestComplianceVerdictProperty verifies the verdict for arbitrary readings.
// Property: IsCompliant == (sulfur <= (isECA ? 100 : 500)), and exactly one
// notice exists per violation.
func TestComplianceVerdictProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("verdict follows the zone limit", prop.ForAll(
		func(sulfur uint64, isECA bool) bool {
			f := newMemoryFixture(t)
			rec, err := f.ledger.RecordEmission(context.Background(), owner, reading(sulfur, isECA))
			if err != nil {
				return false
			}
			limit := uint64(500)
			if isECA {
				limit = 100
			}
			if rec.IsCompliant != (sulfur <= limit) {
				return false
			}

			notices := f.allNotices(t)
			if rec.IsCompliant {
				return len(notices) == 0
			}
			return len(notices) == 1 &&
				notices[0].FlagState == flagState &&
				notices[0].PortState == portState &&
				notices[0].Message == contracts.ViolationMessage(isECA)
		},
		gen.UInt64Range(0, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestHistoryGrowthProperty verifies that each accepted reading appends
// exactly one record to the end of its vessel's history.
func TestHistoryGrowthProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("history grows by one in submission order", prop.ForAll(
		func(levels []uint64) bool {
			f := newMemoryFixture(t)
			ctx := context.Background()
			violations := 0
			for i, s := range levels {
				if _, err := f.ledger.RecordEmission(ctx, owner, reading(s, i%2 == 0)); err != nil {
					return false
				}
				if !contracts.IsCompliant(i%2 == 0, s) {
					violations++
				}
				if len(f.history(t, vesselID)) != i+1 {
					return false
				}
			}
			history := f.history(t, vesselID)
			for i, rec := range history {
				if rec.SulfurContent != levels[i] {
					return false
				}
			}
			return len(f.allNotices(t)) == violations && f.ledger.VerifyHistory(ctx, vesselID) == nil
		},
		gen.SliceOf(gen.UInt64Range(0, 800)),
	))

	properties.TestingRun(t)
}

// TestNonOwnerRejectionProperty verifies that a non-owner is always rejected
// as a non-owner with no effect, whatever the reading's other fields hold.
func TestNonOwnerRejectionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("non-owner rejected without side effects", prop.ForAll(
		func(caller string, sulfur uint64, isECA bool, position, port string) bool {
			id := contracts.Identity(caller)
			if id == owner {
				return true
			}
			f := newMemoryFixture(t)
			r := reading(sulfur, isECA)
			r.Position = position
			r.PortState = port
			_, err := f.ledger.RecordEmission(context.Background(), id, r)
			return contracts.KindOf(err) == contracts.ErrNotVesselOwner &&
				len(f.history(t, vesselID)) == 0 &&
				len(f.allNotices(t)) == 0
		},
		gen.OneGenOf(gen.Const(""), gen.AlphaString().Map(func(s string) string { return "0x" + s }), gen.AnyString()),
		gen.UInt64(),
		gen.Bool(),
		gen.OneGenOf(gen.AnyString(), gen.IntRange(0, 600).Map(func(n int) string { return strings.Repeat("N", n) })),
		gen.OneGenOf(gen.AnyString(), gen.Const("USA\r\n"), gen.Const("")),
	))

	properties.TestingRun(t)
}
