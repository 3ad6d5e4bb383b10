package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"healthrisk/db"
	"healthrisk/ml"
)

// Result is one evaluated (task, candidate) pair.
type Result struct {
	Task       string  `json:"task"`
	Model      string  `json:"model"`
	Kind       string  `json:"kind"`
	R2         float64 `json:"r2"`
	RMSE       float64 `json:"rmse"`
	Selected   bool    `json:"selected"`
	Error      string  `json:"error,omitempty"`
	FitSeconds float64 `json:"fit_seconds"`

	err error
}

func (r Result) Failed() bool {
	return r.Error != ""
}

// Selection names the model persisted for one task.
type Selection struct {
	Task     string  `json:"task"`
	Model    string  `json:"model"`
	Kind     string  `json:"kind"`
	R2       float64 `json:"r2"`
	RMSE     float64 `json:"rmse"`
	Artifact string  `json:"artifact"`
}

// Report is the evaluation summary of one training run.
type Report struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Seed         int64         `json:"seed"`
	TestRatio    float64       `json:"test_ratio"`
	Observations ml.DropReport `json:"observations"`
	TrainRows    int           `json:"train_rows"`
	TestRows     int           `json:"test_rows"`
	Results      []Result      `json:"results"`
	Selected     []Selection   `json:"selected"`
}

// Sort orders results by task, then R² descending. Failed candidates go
// last within their task; equal scores keep evaluation order.
func (r *Report) Sort() {
	sort.SliceStable(r.Results, func(i, j int) bool {
		a, b := r.Results[i], r.Results[j]
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		if a.Failed() != b.Failed() {
			return !a.Failed()
		}
		return a.R2 > b.R2
	})
}

// CandidateErrors combines every candidate failure into one error, or nil.
func (r *Report) CandidateErrors() error {
	var errs error
	for _, result := range r.Results {
		if !result.Failed() {
			continue
		}
		err := result.err
		if err == nil {
			err = errors.New(result.Error)
		}
		errs = multierr.Append(errs, fmt.Errorf("%s/%s: %w", result.Task, result.Model, err))
	}
	return errs
}

// TrainingLogs converts the results into training_log rows.
func (r *Report) TrainingLogs() []db.TrainingLog {
	entries := make([]db.TrainingLog, 0, len(r.Results))
	for _, result := range r.Results {
		entry := db.TrainingLog{
			RunID:      r.RunID,
			Task:       result.Task,
			ModelName:  result.Model,
			Selected:   result.Selected,
			Error:      result.Error,
			TrainedAt:  r.StartedAt,
			DataPoints: r.Observations.Kept,
		}
		if !result.Failed() {
			r2, rmse := result.R2, result.RMSE
			entry.R2, entry.RMSE = &r2, &rmse
		}
		entries = append(entries, entry)
	}
	return entries
}

// Save writes the report as indented JSON.
func (r *Report) Save(path string) error {
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// WriteText prints the report as a human-readable table.
func (r *Report) WriteText(w io.Writer) error {
	p := message.NewPrinter(language.English)
	obs := r.Observations
	if _, err := p.Fprintf(w, "run %s: %d rows loaded, %d kept, %d dropped (%d malformed blood pressure, %d missing values)\n",
		r.RunID, obs.Total, obs.Kept, obs.Dropped(), obs.MalformedBloodPressure, obs.MissingValues); err != nil {
		return err
	}
	if _, err := p.Fprintf(w, "partition: %d train / %d test, seed %d\n\n", r.TrainRows, r.TestRows, r.Seed); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tMODEL\tR2\tRMSE\t")
	for _, result := range r.Results {
		if result.Failed() {
			fmt.Fprintf(tw, "%s\t%s\tfailed: %s\t\t\n", result.Task, result.Model, result.Error)
			continue
		}
		marker := ""
		if result.Selected {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%s\n", result.Task, result.Model, result.R2, result.RMSE, marker)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, selection := range r.Selected {
		if _, err := p.Fprintf(w, "\n%s: selected %s (R2 %.4f) -> %s", selection.Task, selection.Model, selection.R2, selection.Artifact); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
