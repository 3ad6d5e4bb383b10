package synth

import "math"

// HeartRisk is the fixed linear heart-disease label used for synthetic
// patients, clamped to [0, 1] and rounded to two decimals.
func HeartRisk(age, systolic, diastolic, heartRate, bmi, cholesterol float64) float64 {
	score := 0.02*age +
		0.015*systolic +
		0.01*diastolic +
		0.02*heartRate +
		0.03*bmi +
		0.025*cholesterol/10
	return clamp01(round2(score / 10))
}

// DiabetesRisk is the matching label for diabetes.
func DiabetesRisk(age, glucose, bmi, hemoglobin float64) float64 {
	score := 0.03*age +
		0.05*glucose +
		0.04*bmi -
		0.02*hemoglobin
	return clamp01(round2(score / 15))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func clamp01(value float64) float64 {
	return math.Min(math.Max(value, 0), 1)
}
