package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

var ErrRunNotFound = errors.New("run not found")

// Run summarises one detection over one recording.
type Run struct {
	RunID            string    `json:"run_id"`
	Source           string    `json:"source"`
	Channel          string    `json:"channel"`
	SampleRate       float64   `json:"sample_rate"`
	NSamples         int       `json:"n_samples"`
	FirstSample      int       `json:"first_sample"`
	Threshold        string    `json:"threshold"`
	LFreq            float64   `json:"l_freq"`
	HFreq            float64   `json:"h_freq"`
	TStart           float64   `json:"tstart"`
	AveragePulse     float64   `json:"average_pulse"`
	NEvents          int       `json:"n_events"`
	SelectedFraction float64   `json:"selected_fraction"`
	Degenerate       bool      `json:"degenerate"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Run) String() string {
	return fmt.Sprintf("Run %s: source=%s channel=%s events=%d pulse=%.1f/min threshold=%s",
		r.RunID, r.Source, r.Channel, r.NEvents, r.AveragePulse, r.Threshold)
}

// NewRun summarises a FindEvents result for storage.
func NewRun(source string, rec *recording.Recording, res *ecg.Result, o ecg.Options) *Run {
	run := &Run{
		Source:       source,
		Channel:      res.ChannelName,
		SampleRate:   rec.Rate,
		NSamples:     rec.Len(),
		FirstSample:  rec.FirstSample,
		Threshold:    o.Threshold.String(),
		LFreq:        o.LFreq,
		HFreq:        o.HFreq,
		TStart:       o.TStart,
		AveragePulse: res.AveragePulse,
		NEvents:      len(res.Events),
		Degenerate:   res.Detection.Degenerate,
	}
	if sel := res.Detection.Selected; sel >= 0 && sel < len(res.Detection.Candidates) {
		run.SelectedFraction = res.Detection.Candidates[sel].Fraction
	}
	return run
}

// Candidate is the stored summary of one threshold candidate.
type Candidate struct {
	Index      int     `json:"index"`
	Fraction   float64 `json:"fraction"`
	Threshold  float64 `json:"threshold"`
	NPeaks     int     `json:"n_peaks"`
	NEvents    int     `json:"n_events"`
	Rate       float64 `json:"rate"`
	Degenerate bool    `json:"degenerate"`
	Selected   bool    `json:"selected"`
}

// RecordRun stores run together with its events and candidates in one
// transaction. An empty RunID is filled with a new UUID; a zero
// CreatedAt with the current time. The run id is returned.
func (db *DB) RecordRun(run *Run, table events.Table, det *qrs.Detection) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.NEvents = len(table)

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (
			run_id, source, channel, sample_rate, n_samples, first_sample,
			threshold, l_freq, h_freq, tstart, average_pulse, n_events,
			selected_fraction, degenerate, created_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.Channel, run.SampleRate, run.NSamples, run.FirstSample,
		run.Threshold, run.LFreq, run.HFreq, run.TStart, run.AveragePulse, run.NEvents,
		run.SelectedFraction, run.Degenerate, float64(run.CreatedAt.UnixNano())/1e9,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	evStmt, err := tx.Prepare(`INSERT INTO events (run_id, sample, prev, code) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer evStmt.Close()
	for _, ev := range table {
		if _, err := evStmt.Exec(run.RunID, ev.Sample, ev.Prev, ev.Code); err != nil {
			return "", fmt.Errorf("failed to insert event %d: %w", ev.Sample, err)
		}
	}

	if det != nil {
		cStmt, err := tx.Prepare(`INSERT INTO candidates (
				run_id, idx, fraction, threshold, n_peaks, n_events, rate, degenerate, selected
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer cStmt.Close()
		for i, c := range det.Candidates {
			if _, err := cStmt.Exec(run.RunID, i, c.Fraction, c.Threshold, len(c.Peaks), len(c.Events),
				c.Rate, c.Degenerate, i == det.Selected); err != nil {
				return "", fmt.Errorf("failed to insert candidate %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.RunID, nil
}

const runColumns = `run_id, source, channel, sample_rate, n_samples, first_sample,
	threshold, l_freq, h_freq, tstart, average_pulse, n_events,
	selected_fraction, degenerate, created_unix`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r       Run
		created float64
	)
	err := s.Scan(&r.RunID, &r.Source, &r.Channel, &r.SampleRate, &r.NSamples, &r.FirstSample,
		&r.Threshold, &r.LFreq, &r.HFreq, &r.TStart, &r.AveragePulse, &r.NEvents,
		&r.SelectedFraction, &r.Degenerate, &created)
	if err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(0, int64(created*1e9))
	return r, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run returns one run by id.
func (db *DB) Run(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Events returns the event table of a run in sample order.
func (db *DB) Events(runID string) (events.Table, error) {
	rows, err := db.Query(`SELECT sample, prev, code FROM events WHERE run_id = ? ORDER BY sample`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := events.Table{}
	for rows.Next() {
		var r events.Record
		if err := rows.Scan(&r.Sample, &r.Prev, &r.Code); err != nil {
			return nil, err
		}
		table = append(table, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// Candidates returns the threshold candidates of a run in evaluation
// order.
func (db *DB) Candidates(runID string) ([]Candidate, error) {
	rows, err := db.Query(`SELECT idx, fraction, threshold, n_peaks, n_events, rate, degenerate, selected
		FROM candidates WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Index, &c.Fraction, &c.Threshold, &c.NPeaks, &c.NEvents, &c.Rate, &c.Degenerate, &c.Selected); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRun removes a run and, through the foreign keys, its events and
// candidates.
func (db *DB) DeleteRun(id string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
