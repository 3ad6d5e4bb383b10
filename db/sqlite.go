package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"healthrisk/ml"
)

var ErrPatientNotFound = errors.New("patient not found")

const schema = `
CREATE TABLE IF NOT EXISTS Patients (
    patient_id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT,
    last_name TEXT,
    gender TEXT,
    date_of_birth TEXT,
    check_in_status TEXT
);
CREATE TABLE IF NOT EXISTS Appointments (
    appointment_id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id INTEGER,
    appointment_date TEXT,
    doctor_name TEXT,
    status TEXT,
    FOREIGN KEY(patient_id) REFERENCES Patients(patient_id)
);
CREATE TABLE IF NOT EXISTS LabReports (
    report_id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id INTEGER,
    report_type TEXT,
    report_date TEXT,
    result TEXT,
    FOREIGN KEY(patient_id) REFERENCES Patients(patient_id)
);
CREATE TABLE IF NOT EXISTS Vitals (
    vital_id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id INTEGER,
    record_date TEXT,
    blood_pressure TEXT,
    heart_rate INTEGER,
    glucose_level INTEGER,
    bmi REAL,
    hemoglobin REAL,
    cholesterol INTEGER,
    FOREIGN KEY(patient_id) REFERENCES Patients(patient_id)
);
CREATE TABLE IF NOT EXISTS Users (
    user_id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT UNIQUE NOT NULL,
    password TEXT NOT NULL,
    role TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS RiskScores (
    risk_id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id INTEGER,
    score_date TEXT,
    heart_disease_risk REAL,
    diabetes_risk REAL,
    FOREIGN KEY(patient_id) REFERENCES Patients(patient_id)
);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    task TEXT NOT NULL,
    model_name TEXT NOT NULL,
    r2 REAL,
    rmse REAL,
    selected INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    trained_at TEXT NOT NULL,
    data_points INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vitals_patient_date ON Vitals(patient_id, record_date);
CREATE INDEX IF NOT EXISTS idx_riskscores_patient_date ON RiskScores(patient_id, score_date);
`

// observationQuery yields one row per visit: a Vitals row joined to the
// RiskScores row of the same patient and date. Age is whole years at query time.
const observationQuery = `
SELECT
    CAST((julianday('now') - julianday(p.date_of_birth)) / 365.25 AS INT) AS age,
    v.blood_pressure,
    v.heart_rate,
    v.glucose_level,
    v.bmi,
    v.hemoglobin,
    v.cholesterol,
    rs.heart_disease_risk,
    rs.diabetes_risk
FROM Vitals v
JOIN Patients p ON v.patient_id = p.patient_id
JOIN RiskScores rs ON rs.patient_id = v.patient_id AND rs.score_date = v.record_date
ORDER BY v.vital_id`

// Store is the SQLite-backed schema store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	store := &Store{db: database}
	if err := store.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates every table and index that does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// LoadObservations reads every joined visit row for training. Values are
// returned as stored; cleaning is left to ml.BuildFeatures.
func (s *Store) LoadObservations(ctx context.Context) ([]ml.RawObservation, error) {
	rows, err := s.db.QueryContext(ctx, observationQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	observations := make([]ml.RawObservation, 0)
	for rows.Next() {
		var (
			age, heartRate, glucose, bmi, hemoglobin, cholesterol sql.NullFloat64
			heartRisk, diabetesRisk                                sql.NullFloat64
			bloodPressure                                          sql.NullString
		)
		if err := rows.Scan(&age, &bloodPressure, &heartRate, &glucose, &bmi, &hemoglobin, &cholesterol,
			&heartRisk, &diabetesRisk); err != nil {
			return nil, err
		}
		observations = append(observations, ml.RawObservation{
			Age:              nullable(age),
			BloodPressure:    bloodPressure.String,
			HeartRate:        nullable(heartRate),
			GlucoseLevel:     nullable(glucose),
			BMI:              nullable(bmi),
			Hemoglobin:       nullable(hemoglobin),
			Cholesterol:      nullable(cholesterol),
			HeartDiseaseRisk: nullable(heartRisk),
			DiabetesRisk:     nullable(diabetesRisk),
		})
	}
	return observations, rows.Err()
}

// LatestObservation returns the most recent vitals of a patient, unlabelled.
func (s *Store) LatestObservation(ctx context.Context, patientID int64) (ml.RawObservation, error) {
	var (
		age, heartRate, glucose, bmi, hemoglobin, cholesterol sql.NullFloat64
		bloodPressure                                          sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT
            CAST((julianday('now') - julianday(p.date_of_birth)) / 365.25 AS INT),
            v.blood_pressure, v.heart_rate, v.glucose_level, v.bmi, v.hemoglobin, v.cholesterol
        FROM Vitals v
        JOIN Patients p ON v.patient_id = p.patient_id
        WHERE v.patient_id = ?
        ORDER BY v.record_date DESC, v.vital_id DESC
        LIMIT 1`, patientID).Scan(&age, &bloodPressure, &heartRate, &glucose, &bmi, &hemoglobin, &cholesterol)
	if errors.Is(err, sql.ErrNoRows) {
		return ml.RawObservation{}, fmt.Errorf("%w: no vitals for patient %d", ErrPatientNotFound, patientID)
	}
	if err != nil {
		return ml.RawObservation{}, err
	}
	return ml.RawObservation{
		Age:           nullable(age),
		BloodPressure: bloodPressure.String,
		HeartRate:     nullable(heartRate),
		GlucoseLevel:  nullable(glucose),
		BMI:           nullable(bmi),
		Hemoglobin:    nullable(hemoglobin),
		Cholesterol:   nullable(cholesterol),
	}, nil
}

// InsertPatientRecords writes patients and all their visit rows in one
// transaction and fills in the generated patient IDs.
func (s *Store) InsertPatientRecords(ctx context.Context, records []PatientRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := map[string]string{
		"patient": `INSERT INTO Patients (first_name, last_name, gender, date_of_birth, check_in_status)
            VALUES (?, ?, ?, ?, ?)`,
		"appointment": `INSERT INTO Appointments (patient_id, appointment_date, doctor_name, status)
            VALUES (?, ?, ?, ?)`,
		"lab": `INSERT INTO LabReports (patient_id, report_type, report_date, result)
            VALUES (?, ?, ?, ?)`,
		"vital": `INSERT INTO Vitals (patient_id, record_date, blood_pressure, heart_rate,
            glucose_level, bmi, hemoglobin, cholesterol)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"risk": `INSERT INTO RiskScores (patient_id, score_date, heart_disease_risk, diabetes_risk)
            VALUES (?, ?, ?, ?)`,
	}
	prepared := make(map[string]*sql.Stmt, len(statements))
	for name, query := range statements {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		prepared[name] = stmt
	}

	for i := range records {
		record := &records[i]
		p := record.Patient
		result, err := prepared["patient"].ExecContext(ctx,
			p.FirstName, p.LastName, p.Gender, p.DateOfBirth.Format(DateLayout), p.CheckInStatus)
		if err != nil {
			return err
		}
		patientID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		record.Patient.ID = patientID

		for _, visit := range record.Visits {
			a, l, v, r := visit.Appointment, visit.LabReport, visit.Vital, visit.RiskScore
			if _, err := prepared["appointment"].ExecContext(ctx,
				patientID, a.Date.Format(DateTimeLayout), a.DoctorName, a.Status); err != nil {
				return err
			}
			if _, err := prepared["lab"].ExecContext(ctx,
				patientID, l.Type, l.Date.Format(DateTimeLayout), l.Result); err != nil {
				return err
			}
			if _, err := prepared["vital"].ExecContext(ctx,
				patientID, v.RecordDate.Format(DateTimeLayout), v.BloodPressure, v.HeartRate,
				v.GlucoseLevel, v.BMI, v.Hemoglobin, v.Cholesterol); err != nil {
				return err
			}
			if _, err := prepared["risk"].ExecContext(ctx,
				patientID, r.ScoreDate.Format(DateTimeLayout), r.HeartDiseaseRisk, r.DiabetesRisk); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// SaveRiskScore stores a scored pair for an existing patient.
func (s *Store) SaveRiskScore(ctx context.Context, patientID int64, score RiskScore) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM Patients WHERE patient_id = ?`, patientID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrPatientNotFound, patientID)
	}
	if err != nil {
		return err
	}
	if score.ScoreDate.IsZero() {
		score.ScoreDate = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO RiskScores (patient_id, score_date, heart_disease_risk, diabetes_risk)
        VALUES (?, ?, ?, ?)`,
		patientID, score.ScoreDate.Format(DateTimeLayout), score.HeartDiseaseRisk, score.DiabetesRisk)
	return err
}

func (s *Store) SaveTrainingLog(ctx context.Context, entries []TrainingLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO training_log (run_id, task, model_name, r2, rmse, selected, error, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			entry.RunID, entry.Task, entry.ModelName, nullFloat(entry.R2), nullFloat(entry.RMSE),
			entry.Selected, entry.Error, entry.TrainedAt.UTC().Format(time.RFC3339), entry.DataPoints); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, task, model_name, r2, rmse, selected, error, trained_at, data_points
        FROM training_log
        ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log       TrainingLog
			r2, rmse  sql.NullFloat64
			message   sql.NullString
			trainedAt string
		)
		if err := rows.Scan(&log.RunID, &log.Task, &log.ModelName, &r2, &rmse, &log.Selected,
			&message, &trainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		log.R2 = nullable(r2)
		log.RMSE = nullable(rmse)
		log.Error = message.String
		if log.TrainedAt, err = time.Parse(time.RFC3339, trainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// TableCounts returns the row count of every user table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(names))
	for _, name := range names {
		var count int
		// names come from sqlite_master, not from user input
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+name+`"`).Scan(&count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	return counts, nil
}

func nullable(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
