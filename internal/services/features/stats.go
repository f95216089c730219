package features

import (
	"math"
	"time"
)

// varianceEpsilon treats near-constant series as having no variance.
const varianceEpsilon = 1e-12

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Pearson computes the linear correlation of xs and ys over their common length.
// It returns 0 for fewer than two samples or when either side has no variance.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n < 2 {
		return 0
	}
	mx := Mean(xs[:n])
	my := Mean(ys[:n])
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx <= varianceEpsilon || vy <= varianceEpsilon {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	// clamp rounding noise
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// WindowDelta returns mean(last w) - mean(previous w).
// ok is false when xs holds fewer than 2*w values.
func WindowDelta(xs []float64, w int) (delta float64, ok bool) {
	if w <= 0 || len(xs) < 2*w {
		return 0, false
	}
	n := len(xs)
	recent := Mean(xs[n-w:])
	prior := Mean(xs[n-2*w : n-w])
	return recent - prior, true
}

// Pair holds indexes into two series that were matched as simultaneous.
type Pair struct {
	A int
	B int
}

// AlignByTime matches two time-ordered timestamp series. Points closer than tol are
// treated as simultaneous and each point is used at most once; unmatched points are dropped.
func AlignByTime(a, b []time.Time, tol time.Duration) []Pair {
	pairs := make([]Pair, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		d := a[i].Sub(b[j])
		if d < 0 {
			d = -d
		}
		switch {
		case d <= tol:
			pairs = append(pairs, Pair{A: i, B: j})
			i++
			j++
		case a[i].Before(b[j]):
			i++
		default:
			j++
		}
	}
	return pairs
}

// LeadLag searches lags in [-maxLag, maxLag] and returns the lag whose cross-correlation
// has the largest magnitude. A positive lag means xs moves before ys by that many periods.
// Lags with fewer than minOverlap overlapping samples are skipped. Ties keep the smaller |lag|.
func LeadLag(xs, ys []float64, maxLag, minOverlap int) (lag int, corr float64) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if minOverlap < 2 {
		minOverlap = 2
	}
	best := -1.0
	for step := 0; step <= maxLag; step++ {
		for _, k := range []int{step, -step} {
			if step == 0 && k < 0 {
				continue
			}
			overlap := n - abs(k)
			if overlap < minOverlap {
				continue
			}
			var x, y []float64
			if k >= 0 {
				x, y = xs[:overlap], ys[k:k+overlap]
			} else {
				x, y = xs[-k:-k+overlap], ys[:overlap]
			}
			r := Pearson(x, y)
			if math.Abs(r) > best {
				best = math.Abs(r)
				lag, corr = k, r
			}
		}
	}
	return lag, corr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
