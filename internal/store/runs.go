package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/literal"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Run is one row of the history.
type Run struct {
	ID       string
	Seq      int64
	Scenario string
	Status   harness.Status
	Reason   string

	// Manifest is the scenario as JSON with the program inlined.
	Manifest []byte

	ProgramFingerprint string
	ConfigFingerprint  string
	OutputFingerprint  string

	Outputs   [][]*literal.Literal
	Transfers int64
	Bytes     int64
	Duration  time.Duration

	RecordedAt time.Time
}

// FromOutcome builds the history row of a run of s.
func FromOutcome(s *harness.Scenario, o *harness.Outcome) (Run, error) {
	manifest := *s
	if o.Program != "" {
		manifest.Program, manifest.ProgramFile, manifest.Dir = o.Program, "", ""
	} else if inlined, err := s.Inline(); err == nil {
		manifest = *inlined
	}
	data, err := json.Marshal(&manifest)
	if err != nil {
		return Run{}, errors.Wrap(err, "encoding manifest")
	}
	return Run{
		ID:                 o.RunID,
		Scenario:           o.Scenario,
		Status:             o.Status,
		Reason:             o.Reason,
		Manifest:           data,
		ProgramFingerprint: o.ProgramFingerprint,
		ConfigFingerprint:  o.ConfigFingerprint,
		OutputFingerprint:  o.OutputFingerprint,
		Outputs:            o.Outputs,
		Transfers:          o.Stats.Transfers,
		Bytes:              o.Stats.Bytes,
		Duration:           o.Duration,
	}, nil
}

// LoadScenario decodes the stored manifest.
func (r Run) LoadScenario() (*harness.Scenario, error) {
	s, err := harness.ParseJSON(r.Manifest)
	return s, errors.WithMessagef(err, "run %s", r.ID)
}

// RecordRun appends r and returns the stored row with Seq and RecordedAt set.
// Recording an id twice is an error.
func (s *Store) RecordRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		return r, errors.New("record run: empty id")
	}
	outputs := r.Outputs
	if outputs == nil {
		outputs = [][]*literal.Literal{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return r, errors.Wrap(err, "record run: encoding outputs")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return r, errors.Wrap(err, "record run: begin tx")
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM runs").Scan(&r.Seq); err != nil {
		return r, errors.Wrap(err, "record run: next seq")
	}
	r.RecordedAt = s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, scenario, status, reason, manifest, program_fingerprint, config_fingerprint,
		 output_fingerprint, outputs, transfers, bytes, duration_ns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.Scenario,
		string(r.Status),
		r.Reason,
		string(r.Manifest),
		r.ProgramFingerprint,
		r.ConfigFingerprint,
		r.OutputFingerprint,
		string(outputsJSON),
		r.Transfers,
		r.Bytes,
		int64(r.Duration),
		r.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return r, errors.Wrapf(err, "record run %s", r.ID)
	}
	if err := tx.Commit(); err != nil {
		return r, errors.Wrap(err, "record run: commit")
	}
	return r, nil
}

const runColumns = `id, seq, scenario, status, reason, manifest, program_fingerprint, config_fingerprint,
	output_fingerprint, outputs, transfers, bytes, duration_ns, recorded_at`

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return r, err
}

// LatestRun returns the most recent run of scenario, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context, scenario string) (Run, error) {
	runs, err := s.ListRuns(ctx, Filter{Scenario: scenario, Limit: 1})
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, errors.Wrapf(ErrNotFound, "scenario %s", scenario)
	}
	return runs[0], nil
}

// Filter selects runs for ListRuns. Zero fields match everything.
type Filter struct {
	Scenario string
	Status   harness.Status
	Limit    int
}

// ListRuns returns matching runs, newest first.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	var where []string
	var args []any
	if f.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, f.Scenario)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                         Run
		status, manifest, outputs string
		recordedAt                string
		durationNanos             int64
	)
	err := row.Scan(&r.ID, &r.Seq, &r.Scenario, &status, &r.Reason, &manifest,
		&r.ProgramFingerprint, &r.ConfigFingerprint, &r.OutputFingerprint,
		&outputs, &r.Transfers, &r.Bytes, &durationNanos, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, errors.Wrap(err, "scan run")
	}
	r.Status = harness.Status(status)
	r.Manifest = []byte(manifest)
	r.Duration = time.Duration(durationNanos)
	if r.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return r, errors.Wrapf(err, "run %s: recorded_at", r.ID)
	}
	if err := json.Unmarshal([]byte(outputs), &r.Outputs); err != nil {
		return r, errors.Wrapf(err, "run %s: outputs", r.ID)
	}
	if len(r.Outputs) == 0 {
		r.Outputs = nil
	}
	return r, nil
}
