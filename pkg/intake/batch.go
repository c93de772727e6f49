// Package intake replays batches of readings, one JSON object per line,
// through the emission ledger.
package intake

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/time/rate"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
)

// maxLineBytes bounds a single batch line.
const maxLineBytes = 64 * 1024

// Line is one submission in a batch file.
type Line struct {
	Caller contracts.Identity `json:"caller"`
	contracts.Reading
}

// LineError is a rejected batch line.
type LineError struct {
	Line int   `json:"line"`
	Err  error `json:"-"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// Result summarizes a batch.
type Result struct {
	Accepted   int         `json:"accepted"`
	Violations int         `json:"violations"`
	Rejected   []LineError `json:"-"`
}

// Importer validates and submits batch lines at a bounded rate.
type Importer struct {
	recorder emission.Recorder
	schema   *jsonschema.Schema
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewImporter creates an importer submitting at most perSecond readings per
// second, with bursts of burst. perSecond <= 0 disables pacing.
func NewImporter(recorder emission.Recorder, perSecond float64, burst int) (*Importer, error) {
	schema, err := compileReadingSchema()
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Importer{
		recorder: recorder,
		schema:   schema,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   slog.Default().With("component", "intake"),
	}, nil
}

// Import reads lines from r and records each one. Lines that fail
// validation or are rejected by the ledger are collected in the result;
// any other error stops the batch.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		line, err := im.parse(raw)
		if err != nil {
			res.Rejected = append(res.Rejected, LineError{Line: lineNo, Err: err})
			continue
		}

		if err := im.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("intake: line %d: %w", lineNo, err)
		}

		rec, err := im.recorder.RecordEmission(ctx, line.Caller, line.Reading)
		if err != nil {
			if contracts.KindOf(err) == nil {
				return res, fmt.Errorf("intake: line %d: %w", lineNo, err)
			}
			res.Rejected = append(res.Rejected, LineError{Line: lineNo, Err: err})
			continue
		}
		res.Accepted++
		if !rec.IsCompliant {
			res.Violations++
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("intake: read batch: %w", err)
	}

	im.logger.InfoContext(ctx, "batch imported",
		"accepted", res.Accepted,
		"violations", res.Violations,
		"rejected", len(res.Rejected),
	)
	return res, nil
}

func (im *Importer) parse(raw []byte) (Line, error) {
	doc, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Line{}, contracts.Reject(contracts.ErrInvalidInput, "import", "", "", "malformed JSON: "+err.Error())
	}
	if err := im.schema.Validate(doc); err != nil {
		return Line{}, contracts.Reject(contracts.ErrInvalidInput, "import", "", "", err.Error())
	}

	var line Line
	if err := json.Unmarshal(raw, &line); err != nil {
		return Line{}, contracts.Reject(contracts.ErrInvalidInput, "import", "", "", err.Error())
	}
	return line, nil
}
