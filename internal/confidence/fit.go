package confidence

import "math"

// Fit performs Platt-scaling calibration: it finds A, B minimizing the
// negative log-likelihood of sigmoid(A*score+B) against binary labels.
// This is the optional enhancement named in spec.md §4.3 — Calculate must
// work correctly with DefaultCalibration() (Calibration{A:1, B:0, Temperature:1})
// regardless of whether Fit has ever been called.
//
// scores and labels must be the same non-zero length; labels are 1.0 for
// "classification was correct", 0.0 otherwise. Uses a fixed number of
// gradient-descent steps rather than a convergence tolerance, since this
// is run offline/periodically, not on the classification hot path.
func Fit(scores []float64, labels []float64) (Calibration, error) {
	if len(scores) == 0 || len(scores) != len(labels) {
		return Calibration{}, errMismatchedFitInput
	}

	a, b := 1.0, 0.0
	const (
		iterations   = 500
		learningRate = 0.01
	)

	n := float64(len(scores))
	for iter := 0; iter < iterations; iter++ {
		var gradA, gradB float64
		for i, s := range scores {
			p := sigmoid(a*s + b)
			diff := p - labels[i]
			gradA += diff * s
			gradB += diff
		}
		a -= learningRate * gradA / n
		b -= learningRate * gradB / n
	}

	return Calibration{A: a, B: b, Temperature: 1.0}, nil
}

type fitError string

func (e fitError) Error() string { return string(e) }

var errMismatchedFitInput = fitError("confidence: scores and labels must be non-empty and equal length")

// NegativeLogLikelihood reports the NLL of a calibration against a
// validation set; useful for comparing a freshly fit calibration to the
// defaults before swapping it in.
func NegativeLogLikelihood(calib Calibration, scores []float64, labels []float64) float64 {
	var nll float64
	for i, s := range scores {
		p := sigmoid(calib.A*s + calib.B)
		p = math.Min(math.Max(p, 1e-9), 1-1e-9)
		if labels[i] >= 0.5 {
			nll -= math.Log(p)
		} else {
			nll -= math.Log(1 - p)
		}
	}
	return nll
}
