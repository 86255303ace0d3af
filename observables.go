package unbias

import (
	"fmt"
	"math"
)

//WeightedMean returns the average of values under the unbiased frame
//weights exp(logW). The weights do not need to be normalized.
func WeightedMean(values, logW []float64) (float64, error) {
	if len(values) != len(logW) {
		return 0, fmt.Errorf("unbias.WeightedMean: %d values but %d log-weights", len(values), len(logW))
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("unbias.WeightedMean: empty input")
	}
	//max-shifted exponentials, the usual defense for raw logW coming from
	//an unnormalized source
	m := math.Inf(-1)
	for _, v := range logW {
		if v > m {
			m = v
		}
	}
	var num, den float64
	for i, v := range values {
		w := math.Exp(logW[i] - m)
		num += v * w
		den += w
	}
	return num / den, nil
}

//Populations returns the unbiased probability of finding the system inside
//and outside the state defined by inState, evaluated on the reaction
//coordinate series obs under the frame weights exp(logW). The two values
//sum to 1.
func Populations(obs, logW []float64, inState func(float64) bool) (in, out float64, err error) {
	if inState == nil {
		return 0, 0, fmt.Errorf("unbias.Populations: nil state predicate")
	}
	ind := make([]float64, len(obs))
	for i, v := range obs {
		if inState(v) {
			ind[i] = 1.0
		}
	}
	in, err = WeightedMean(ind, logW)
	if err != nil {
		return 0, 0, err
	}
	return in, 1 - in, nil
}

//FreeEnergyDiff returns the free-energy difference -kT*log(pIn/pOut)
//between the state with population pIn and its complement with population
//pOut, in the energy units of kT.
func FreeEnergyDiff(kT, pIn, pOut float64) float64 {
	return -kT * math.Log(pIn/pOut)
}

//Window returns a predicate that is true for min < x < max. It is the
//usual way of defining a state on a reaction coordinate (e.g. the cis
//basin of a dihedral).
func Window(min, max float64) func(float64) bool {
	return func(x float64) bool {
		return x > min && x < max
	}
}
