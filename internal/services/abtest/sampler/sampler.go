// Package sampler draws random variates from the distributions the
// evaluator needs: standard normal, gamma, and beta. The beta sampler is
// the workhorse; it drives the Monte Carlo comparison of variant
// conversion posteriors.
package sampler

import (
	"math"
	"math/rand"
)

// Sampler draws variates from a single pseudo-random source. It caches the
// spare draw produced by the polar normal transform, so it is not safe for
// concurrent use; give each evaluation its own Sampler.
type Sampler struct {
	rng *rand.Rand

	spare    float64
	hasSpare bool
}

// New returns a Sampler backed by the given seed.
func New(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Normal draws a standard normal variate using the polar Box-Muller
// transform. Each accepted pair yields two variates; the second is cached
// and returned by the next call.
func (s *Sampler) Normal() float64 {
	if s.hasSpare {
		s.hasSpare = false
		return s.spare
	}

	var u, v, q float64
	for {
		u = 2*s.rng.Float64() - 1
		v = 2*s.rng.Float64() - 1
		q = u*u + v*v
		if q > 0 && q < 1 {
			break
		}
	}

	f := math.Sqrt(-2 * math.Log(q) / q)
	s.spare = v * f
	s.hasSpare = true
	return u * f
}

// Gamma draws from Gamma(shape, scale) using the Marsaglia-Tsang method.
// Shapes below one are boosted via the standard power transform.
func (s *Sampler) Gamma(shape, scale float64) float64 {
	if shape < 1 {
		// Gamma(a) = Gamma(a+1) * U^(1/a) for a < 1.
		u := s.rng.Float64()
		return s.Gamma(shape+1, scale) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = s.Normal()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v

		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return scale * d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return scale * d * v
		}
	}
}

// Beta draws from Beta(alpha, beta) as the ratio of two unit-scale gamma
// variates.
func (s *Sampler) Beta(alpha, beta float64) float64 {
	x := s.Gamma(alpha, 1)
	y := s.Gamma(beta, 1)
	return x / (x + y)
}
