package db

import "time"

// Timestamp layouts used for the text date columns.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

type Patient struct {
	ID            int64     `json:"patient_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Gender        string    `json:"gender"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	CheckInStatus string    `json:"check_in_status"`
}

type Appointment struct {
	Date       time.Time `json:"appointment_date"`
	DoctorName string    `json:"doctor_name"`
	Status     string    `json:"status"`
}

type LabReport struct {
	Type   string    `json:"report_type"`
	Date   time.Time `json:"report_date"`
	Result string    `json:"result"`
}

type Vital struct {
	RecordDate    time.Time `json:"record_date"`
	BloodPressure string    `json:"blood_pressure"`
	HeartRate     int       `json:"heart_rate"`
	GlucoseLevel  int       `json:"glucose_level"`
	BMI           float64   `json:"bmi"`
	Hemoglobin    float64   `json:"hemoglobin"`
	Cholesterol   int       `json:"cholesterol"`
}

type RiskScore struct {
	ScoreDate        time.Time `json:"score_date"`
	HeartDiseaseRisk float64   `json:"heart_disease_risk"`
	DiabetesRisk     float64   `json:"diabetes_risk"`
}

// Visit groups the rows written for one patient visit; all share one date.
type Visit struct {
	Appointment Appointment
	LabReport   LabReport
	Vital       Vital
	RiskScore   RiskScore
}

type PatientRecord struct {
	Patient Patient
	Visits  []Visit
}

type TrainingLog struct {
	RunID      string    `json:"run_id"`
	Task       string    `json:"task"`
	ModelName  string    `json:"model_name"`
	R2         *float64  `json:"r2,omitempty"`
	RMSE       *float64  `json:"rmse,omitempty"`
	Selected   bool      `json:"selected"`
	Error      string    `json:"error,omitempty"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}
