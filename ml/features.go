package ml

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Column order of every feature vector handed to a model.
const (
	FeatureAge = iota
	FeatureSystolic
	FeatureDiastolic
	FeatureHeartRate
	FeatureGlucose
	FeatureBMI
	FeatureHemoglobin
	FeatureCholesterol
	FeatureCount
)

var (
	ErrMalformedBloodPressure = errors.New("blood pressure must be systolic/diastolic")
	ErrMissingValue           = errors.New("observation has a missing value")
)

func FeatureNames() []string {
	return []string{"age", "systolic", "diastolic", "heart_rate", "glucose_level", "bmi", "hemoglobin", "cholesterol"}
}

// RawObservation is one joined (patient, visit) row as read from storage.
// Nil pointers are SQL NULLs.
type RawObservation struct {
	Age              *float64
	BloodPressure    string
	HeartRate        *float64
	GlucoseLevel     *float64
	BMI              *float64
	Hemoglobin       *float64
	Cholesterol      *float64
	HeartDiseaseRisk *float64
	DiabetesRisk     *float64
}

// Observation is a cleaned row ready for training or scoring.
type Observation struct {
	Age              float64 `json:"age"`
	Systolic         float64 `json:"systolic"`
	Diastolic        float64 `json:"diastolic"`
	HeartRate        float64 `json:"heart_rate"`
	GlucoseLevel     float64 `json:"glucose_level"`
	BMI              float64 `json:"bmi"`
	Hemoglobin       float64 `json:"hemoglobin"`
	Cholesterol      float64 `json:"cholesterol"`
	HeartDiseaseRisk float64 `json:"heart_disease_risk"`
	DiabetesRisk     float64 `json:"diabetes_risk"`
}

func FeatureVector(o Observation) []float64 {
	return []float64{o.Age, o.Systolic, o.Diastolic, o.HeartRate, o.GlucoseLevel, o.BMI, o.Hemoglobin, o.Cholesterol}
}

// FeatureTable is the numeric training table: one feature row and two labels
// per observation, aligned by index.
type FeatureTable struct {
	Features     [][]float64
	HeartRisk    []float64
	DiabetesRisk []float64
	Observations []Observation
}

func (t *FeatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Features)
}

// DropReport counts the rows BuildFeatures excluded and why.
type DropReport struct {
	Total                  int `json:"total"`
	Kept                   int `json:"kept"`
	MalformedBloodPressure int `json:"malformed_blood_pressure"`
	MissingValues          int `json:"missing_values"`
}

func (r DropReport) Dropped() int {
	return r.MalformedBloodPressure + r.MissingValues
}

// ParseBloodPressure splits "systolic/diastolic" into its two numbers.
func ParseBloodPressure(value string) (systolic, diastolic float64, err error) {
	left, right, ok := strings.Cut(value, "/")
	if !ok {
		return 0, 0, ErrMalformedBloodPressure
	}
	systolic, err = strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return 0, 0, ErrMalformedBloodPressure
	}
	diastolic, err = strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return 0, 0, ErrMalformedBloodPressure
	}
	return systolic, diastolic, nil
}

// BuildFeatures cleans raw rows into a FeatureTable. Rows with an unparseable
// blood pressure or any missing value are skipped, never reported as errors;
// the DropReport carries the counts.
func BuildFeatures(rows []RawObservation) (*FeatureTable, DropReport) {
	report := DropReport{Total: len(rows)}
	table := &FeatureTable{
		Features:     make([][]float64, 0, len(rows)),
		HeartRisk:    make([]float64, 0, len(rows)),
		DiabetesRisk: make([]float64, 0, len(rows)),
		Observations: make([]Observation, 0, len(rows)),
	}

	for _, row := range rows {
		systolic, diastolic, err := ParseBloodPressure(row.BloodPressure)
		if err != nil {
			report.MalformedBloodPressure++
			continue
		}
		observation, ok := completeObservation(row, systolic, diastolic)
		if !ok {
			report.MissingValues++
			continue
		}
		table.Features = append(table.Features, FeatureVector(observation))
		table.HeartRisk = append(table.HeartRisk, observation.HeartDiseaseRisk)
		table.DiabetesRisk = append(table.DiabetesRisk, observation.DiabetesRisk)
		table.Observations = append(table.Observations, observation)
	}

	report.Kept = table.Len()
	return table, report
}

// FeatureRow turns a single unlabelled row into a feature vector for scoring.
func FeatureRow(row RawObservation) ([]float64, error) {
	systolic, diastolic, err := ParseBloodPressure(row.BloodPressure)
	if err != nil {
		return nil, err
	}
	zero := 0.0
	row.HeartDiseaseRisk, row.DiabetesRisk = &zero, &zero
	observation, ok := completeObservation(row, systolic, diastolic)
	if !ok {
		return nil, ErrMissingValue
	}
	return FeatureVector(observation), nil
}

func completeObservation(row RawObservation, systolic, diastolic float64) (Observation, bool) {
	fields := []*float64{
		row.Age, row.HeartRate, row.GlucoseLevel, row.BMI,
		row.Hemoglobin, row.Cholesterol, row.HeartDiseaseRisk, row.DiabetesRisk,
	}
	for _, field := range fields {
		if field == nil || math.IsNaN(*field) || math.IsInf(*field, 0) {
			return Observation{}, false
		}
	}
	if math.IsNaN(systolic) || math.IsInf(systolic, 0) || math.IsNaN(diastolic) || math.IsInf(diastolic, 0) {
		return Observation{}, false
	}
	return Observation{
		Age:              *row.Age,
		Systolic:         systolic,
		Diastolic:        diastolic,
		HeartRate:        *row.HeartRate,
		GlucoseLevel:     *row.GlucoseLevel,
		BMI:              *row.BMI,
		Hemoglobin:       *row.Hemoglobin,
		Cholesterol:      *row.Cholesterol,
		HeartDiseaseRisk: *row.HeartDiseaseRisk,
		DiabetesRisk:     *row.DiabetesRisk,
	}, true
}
