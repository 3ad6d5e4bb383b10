package synth

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"healthrisk/db"
)

const (
	minAge        = 20
	maxAge        = 85
	visitWindow   = 180
	secondsPerDay = 24 * 60 * 60
)

var (
	genders          = []string{"Male", "Female"}
	checkInStatuses  = []string{"Checked-in", "Not Checked-in"}
	appointmentState = []string{"Scheduled", "Completed", "Missed"}
	labReportTypes   = []string{"Blood Test", "X-ray", "ECG"}
	labResults       = []string{"Normal", "Abnormal"}
)

// Generator produces plausible patients with visit histories. The same seed
// and reference time always yield the same records.
type Generator struct {
	faker  *gofakeit.Faker
	visits int
	now    time.Time
}

func NewGenerator(seed uint64, visitsPerPatient int, now time.Time) (*Generator, error) {
	if visitsPerPatient < 0 {
		return nil, fmt.Errorf("visits per patient must be non-negative, got %d", visitsPerPatient)
	}
	return &Generator{
		faker:  gofakeit.New(seed),
		visits: visitsPerPatient,
		now:    now.Truncate(time.Second),
	}, nil
}

// Batch returns n freshly generated patient records.
func (g *Generator) Batch(n int) []db.PatientRecord {
	records := make([]db.PatientRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, g.Patient())
	}
	return records
}

// Patient generates one patient and all of their visits.
func (g *Generator) Patient() db.PatientRecord {
	dob := g.dateOfBirth()
	age := math.Floor(g.now.Sub(dob).Hours() / 24 / 365.25)

	record := db.PatientRecord{
		Patient: db.Patient{
			FirstName:     g.faker.FirstName(),
			LastName:      g.faker.LastName(),
			Gender:        g.faker.RandomString(genders),
			DateOfBirth:   dob,
			CheckInStatus: g.faker.RandomString(checkInStatuses),
		},
		Visits: make([]db.Visit, 0, g.visits),
	}

	seen := make(map[int64]struct{}, g.visits)
	for i := 0; i < g.visits; i++ {
		date := g.visitDate(seen)
		vital := db.Vital{
			RecordDate:   date,
			HeartRate:    g.faker.Number(60, 100),
			GlucoseLevel: g.faker.Number(70, 200),
			BMI:          round1(g.faker.Float64Range(18, 35)),
			Hemoglobin:   round1(g.faker.Float64Range(10, 17)),
			Cholesterol:  g.faker.Number(150, 280),
		}
		systolic, diastolic := g.faker.Number(100, 160), g.faker.Number(60, 100)
		vital.BloodPressure = fmt.Sprintf("%d/%d", systolic, diastolic)
		heart := HeartRisk(age, float64(systolic), float64(diastolic), float64(vital.HeartRate), vital.BMI, float64(vital.Cholesterol))
		diabetes := DiabetesRisk(age, float64(vital.GlucoseLevel), vital.BMI, vital.Hemoglobin)

		record.Visits = append(record.Visits, db.Visit{
			Appointment: db.Appointment{
				Date:       date,
				DoctorName: g.faker.Name(),
				Status:     g.faker.RandomString(appointmentState),
			},
			LabReport: db.LabReport{
				Type:   g.faker.RandomString(labReportTypes),
				Date:   date,
				Result: g.faker.RandomString(labResults),
			},
			Vital:     vital,
			RiskScore: db.RiskScore{ScoreDate: date, HeartDiseaseRisk: heart, DiabetesRisk: diabetes},
		})
	}
	return record
}

// dateOfBirth picks a calendar date giving an age between minAge and maxAge.
func (g *Generator) dateOfBirth() time.Time {
	earliest := g.now.AddDate(-maxAge, 0, 0)
	latest := g.now.AddDate(-minAge, 0, 0)
	dob := g.faker.DateRange(earliest, latest)
	return time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, g.now.Location())
}

// visitDate picks a second within the last visitWindow days that no earlier
// visit of the same patient used, so each visit joins to exactly one score.
func (g *Generator) visitDate(seen map[int64]struct{}) time.Time {
	for {
		offset := g.faker.Number(0, visitWindow)*secondsPerDay + g.faker.Number(0, secondsPerDay-1)
		date := g.now.Add(-time.Duration(offset) * time.Second)
		if _, ok := seen[date.Unix()]; ok {
			continue
		}
		seen[date.Unix()] = struct{}{}
		return date
	}
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
