// Package store persists harvested alignment QA results in sqlite so
// that results from many pipeline runs can be queried together and fed
// into the summary dashboard.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcara/alignqa/internal/monitoring"
)

// Record is one harvested alignment result.
type Record struct {
	RecordID  string `json:"record_id"`
	RunID     string `json:"run_id"`
	ImgName   string `json:"imgname"`
	AlignedTo string `json:"aligned_to"`
	Status    string `json:"status"`

	Telescope  string  `json:"telescope"`
	Instrument string  `json:"instrument"`
	Detector   string  `json:"detector"`
	Filter     string  `json:"filter"`
	Aperture   string  `json:"aperture"`
	DateObs    string  `json:"dateobs"`
	ExpTime    float64 `json:"exptime"`

	NMatches int     `json:"nmatches"`
	RMSX     float64 `json:"rms_x"`
	RMSY     float64 `json:"rms_y"`
	XSh      float64 `json:"xsh"`
	YSh      float64 `json:"ysh"`
	Rot      float64 `json:"rot"`
	Scale    float64 `json:"scale"`
	Skew     float64 `json:"skew"`

	CreatedAt int64 `json:"created_at"`
}

// ResultStore provides persistence for harvested QA records.
type ResultStore struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS alignment_results (
		record_id  TEXT PRIMARY KEY,
		run_id     TEXT NOT NULL,
		imgname    TEXT NOT NULL,
		aligned_to TEXT,
		status     TEXT NOT NULL,
		telescope  TEXT,
		instrument TEXT,
		detector   TEXT,
		filter     TEXT,
		aperture   TEXT,
		dateobs    TEXT,
		exptime    DOUBLE,
		nmatches   INTEGER,
		rms_x      DOUBLE,
		rms_y      DOUBLE,
		xsh        DOUBLE,
		ysh        DOUBLE,
		rot        DOUBLE,
		scale      DOUBLE,
		skew       DOUBLE,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alignment_results_run
		ON alignment_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_alignment_results_img
		ON alignment_results(imgname);
`

// Open opens (creating if needed) a result store at the given path.
func Open(path string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create result schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *ResultStore) Close() error { return s.db.Close() }

// Insert persists a record. Empty RecordID and CreatedAt are filled in.
func (s *ResultStore) Insert(rec *Record) error {
	if rec.RecordID == "" {
		rec.RecordID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO alignment_results (
				record_id, run_id, imgname, aligned_to, status,
				telescope, instrument, detector, filter, aperture, dateobs, exptime,
				nmatches, rms_x, rms_y, xsh, ysh, rot, scale, skew, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RecordID, rec.RunID, rec.ImgName, rec.AlignedTo, rec.Status,
			rec.Telescope, rec.Instrument, rec.Detector, rec.Filter, rec.Aperture,
			rec.DateObs, rec.ExpTime,
			rec.NMatches, rec.RMSX, rec.RMSY, rec.XSh, rec.YSh,
			rec.Rot, rec.Scale, rec.Skew, rec.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert record for %s: %w", rec.ImgName, err)
	}
	return nil
}

// List returns records for one run, or for all runs when runID is
// empty, newest first.
func (s *ResultStore) List(runID string) ([]*Record, error) {
	query := `
		SELECT record_id, run_id, imgname, aligned_to, status,
			telescope, instrument, detector, filter, aperture, dateobs, exptime,
			nmatches, rms_x, rms_y, xsh, ysh, rot, scale, skew, created_at
		FROM alignment_results`
	args := []interface{}{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Successful returns all SUCCESS records, newest first.
func (s *ResultStore) Successful() ([]*Record, error) {
	all, err := s.List("")
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range all {
		if r.Status == "SUCCESS" {
			out = append(out, r)
		}
	}
	return out, nil
}

// Detectors returns the distinct detectors present in the store.
func (s *ResultStore) Detectors() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT detector FROM alignment_results
		WHERE detector != '' ORDER BY detector`)
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan detector: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var r Record
	var alignedTo, telescope, instrument, detector, filter, aperture, dateobs sql.NullString
	var exptime, rmsx, rmsy, xsh, ysh, rot, scale, skew sql.NullFloat64
	var nmatches sql.NullInt64
	err := rows.Scan(
		&r.RecordID, &r.RunID, &r.ImgName, &alignedTo, &r.Status,
		&telescope, &instrument, &detector, &filter, &aperture, &dateobs, &exptime,
		&nmatches, &rmsx, &rmsy, &xsh, &ysh, &rot, &scale, &skew, &r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan record row: %w", err)
	}
	r.AlignedTo = alignedTo.String
	r.Telescope = telescope.String
	r.Instrument = instrument.String
	r.Detector = detector.String
	r.Filter = filter.String
	r.Aperture = aperture.String
	r.DateObs = dateobs.String
	r.ExpTime = exptime.Float64
	r.NMatches = int(nmatches.Int64)
	r.RMSX = rmsx.Float64
	r.RMSY = rmsy.Float64
	r.XSh = xsh.Float64
	r.YSh = ysh.Float64
	r.Rot = rot.Float64
	r.Scale = scale.Float64
	r.Skew = skew.Float64
	return &r, nil
}

// retryOnBusy retries a write a few times when sqlite reports the
// database as locked by another writer.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "SQLITE_BUSY") {
			return err
		}
		delay := time.Duration(i+1) * 50 * time.Millisecond
		monitoring.Warnf("sqlite busy, retrying in %v", delay)
		time.Sleep(delay)
	}
	return err
}
