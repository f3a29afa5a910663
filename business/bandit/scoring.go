package bandit

import "math"

// ucbScore = theta·x + alpha * sqrt(x^T A^-1 x)
func ucbScore(theta, x [linUCBFeatureDim]float64, AInv [linUCBFeatureDim][linUCBFeatureDim]float64, alpha float64) float64 {
	mean := dot(theta, x)
	tmp := matVecMul(AInv, x)
	uncertainty := math.Sqrt(dot(x, tmp))
	return mean + alpha*uncertainty
}
