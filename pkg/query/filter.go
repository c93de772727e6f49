// Package query filters ledger entries with CEL expressions, e.g.
//
//	notice.flag_state == "Panama" && notice.port_state == "USA"
//	record.is_eca && record.sulfur_content > 100
package query

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// Evaluator compiles and caches filter expressions.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("notice", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Evaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile: filter must be boolean, got %s", out)
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}

func (e *Evaluator) match(prg cel.Program, input map[string]any) (bool, error) {
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

// Notices returns the notices matching expr, in input order. An empty
// expression matches everything.
func (e *Evaluator) Notices(expr string, notices []contracts.ComplianceNotice) ([]contracts.ComplianceNotice, error) {
	if expr == "" {
		return notices, nil
	}
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.ComplianceNotice, 0)
	for _, n := range notices {
		ok, err := e.match(prg, map[string]any{"notice": noticeVars(n), "record": map[string]any{}})
		if err != nil {
			return nil, fmt.Errorf("notice %d: %w", n.Sequence, err)
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Records returns the records matching expr, in input order.
func (e *Evaluator) Records(expr string, records []contracts.EmissionRecord) ([]contracts.EmissionRecord, error) {
	if expr == "" {
		return records, nil
	}
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.EmissionRecord, 0)
	for _, r := range records {
		ok, err := e.match(prg, map[string]any{"record": recordVars(r), "notice": map[string]any{}})
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.Sequence, err)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Counters are exposed as uint so values past MaxInt64 keep their order;
// cross-type comparisons let filters use plain int literals.
func noticeVars(n contracts.ComplianceNotice) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"sequence":   n.Sequence,
		"timestamp":  n.Timestamp,
		"vessel_id":  n.VesselID,
		"record_id":  n.RecordID,
		"message":    n.Message,
		"flag_state": n.FlagState,
		"port_state": n.PortState,
		"filed_by":   string(n.FiledBy),
	}
}

func recordVars(r contracts.EmissionRecord) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"sequence":       r.Sequence,
		"timestamp":      r.Timestamp,
		"vessel_id":      r.VesselID,
		"sulfur_content": r.SulfurContent,
		"position":       r.Position,
		"is_eca":         r.IsECA,
		"is_compliant":   r.IsCompliant,
		"port_state":     r.PortState,
	}
}
