package stats

import "math"

// SignificanceTest performs a two-proportion z-test with a pooled standard
// error. Returns the confidence (0-1) that variant A converts better than
// variant B.
func SignificanceTest(aConv, aVisitors, bConv, bVisitors int) float64 {
	// Without data on both sides there is nothing to compare.
	if aVisitors == 0 || bVisitors == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aVisitors)
	pB := float64(bConv) / float64(bVisitors)

	// Pooled proportion under the null hypothesis pA = pB
	pooled := float64(aConv+bConv) / float64(aVisitors+bVisitors)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aVisitors) + 1/float64(bVisitors)))
	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		default:
			return 0.5
		}
	}

	z := (pA - pB) / se

	// P(Z < z) is the confidence that A beats B.
	return normalCDF(z)
}

// normalCDF approximates the standard normal cumulative distribution
// function using Abramowitz and Stegun formula 7.1.26.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
