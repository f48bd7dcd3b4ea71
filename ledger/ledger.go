// Package ledger records training and evaluation runs in a sqlite database.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trainings (
	training_id    TEXT PRIMARY KEY,
	variant        TEXT NOT NULL,
	out_dir        TEXT NOT NULL,
	model_path     TEXT NOT NULL,
	seed           INTEGER NOT NULL,
	params_json    TEXT,
	n_train        INTEGER NOT NULL,
	n_test         INTEGER NOT NULL,
	best_iteration INTEGER NOT NULL,
	test_auc       REAL NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS evaluations (
	evaluation_id TEXT PRIMARY KEY,
	variant       TEXT NOT NULL,
	model_path    TEXT NOT NULL,
	grp           TEXT NOT NULL,
	events        INTEGER NOT NULL,
	out_file      TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trainings_variant ON trainings (variant, created_at);
`

// Training is one bdtmaker run.
type Training struct {
	TrainingID    string
	Variant       string
	OutDir        string
	ModelPath     string
	Seed          uint64
	Params        any
	ParamsJSON    json.RawMessage
	NTrain        int
	NTest         int
	BestIteration int
	TestAUC       float64
	CreatedAt     int64
}

// Evaluation is one bdteval run over a sample group.
type Evaluation struct {
	EvaluationID string
	Variant      string
	ModelPath    string
	Group        string
	Events       int64
	OutFile      string
	CreatedAt    int64
}

type Ledger struct {
	db *sql.DB
}

func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open ledger %q: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordTraining inserts t. Missing ids and timestamps are filled in.
// Params, when set, is stored as JSON.
func (l *Ledger) RecordTraining(t *Training) error {
	if t.TrainingID == "" {
		t.TrainingID = uuid.New().String()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixNano()
	}
	if t.Params != nil && len(t.ParamsJSON) == 0 {
		raw, err := json.Marshal(t.Params)
		if err != nil {
			return fmt.Errorf("could not encode training parameters: %w", err)
		}
		t.ParamsJSON = raw
	}

	var params any
	if len(t.ParamsJSON) > 0 {
		params = string(t.ParamsJSON)
	}
	_, err := l.db.Exec(`
		INSERT INTO trainings (
			training_id, variant, out_dir, model_path, seed, params_json,
			n_train, n_test, best_iteration, test_auc, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TrainingID, t.Variant, t.OutDir, t.ModelPath, int64(t.Seed), params,
		t.NTrain, t.NTest, t.BestIteration, t.TestAUC, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not record training: %w", err)
	}
	return nil
}

func (l *Ledger) RecordEvaluation(e *Evaluation) error {
	if e.EvaluationID == "" {
		e.EvaluationID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixNano()
	}
	_, err := l.db.Exec(`
		INSERT INTO evaluations (
			evaluation_id, variant, model_path, grp, events, out_file, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EvaluationID, e.Variant, e.ModelPath, e.Group, e.Events, e.OutFile, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not record evaluation: %w", err)
	}
	return nil
}

// Trainings returns the training runs of variant, newest first. An empty
// variant selects all runs.
func (l *Ledger) Trainings(variant string) ([]*Training, error) {
	rows, err := l.db.Query(`
		SELECT training_id, variant, out_dir, model_path, seed, params_json,
		       n_train, n_test, best_iteration, test_auc, created_at
		FROM trainings
		WHERE ? = '' OR variant = ?
		ORDER BY created_at DESC, rowid DESC`, variant, variant)
	if err != nil {
		return nil, fmt.Errorf("query trainings: %w", err)
	}
	defer rows.Close()

	var out []*Training
	for rows.Next() {
		var (
			t      Training
			seed   int64
			params sql.NullString
		)
		err := rows.Scan(
			&t.TrainingID, &t.Variant, &t.OutDir, &t.ModelPath, &seed, &params,
			&t.NTrain, &t.NTest, &t.BestIteration, &t.TestAUC, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan training: %w", err)
		}
		t.Seed = uint64(seed)
		if params.Valid {
			t.ParamsJSON = json.RawMessage(params.String)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Evaluations returns the evaluation runs that used model, newest first.
func (l *Ledger) Evaluations(model string) ([]*Evaluation, error) {
	rows, err := l.db.Query(`
		SELECT evaluation_id, variant, model_path, grp, events, out_file, created_at
		FROM evaluations
		WHERE model_path = ?
		ORDER BY created_at DESC, rowid DESC`, model)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		var e Evaluation
		err := rows.Scan(&e.EvaluationID, &e.Variant, &e.ModelPath, &e.Group, &e.Events, &e.OutFile, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
