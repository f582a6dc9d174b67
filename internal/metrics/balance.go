package metrics

import (
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// WaterBalance returns the relative closure error of a run:
// (storage change - (P - Q - AET)*dt) / total input. Storage is the sum
// of all storages before and after the run.
func WaterBalance(p, q, aet dynamo.Series, dt, storageStart, storageEnd float64) float64 {
	in := p.Sum() * dt
	out := (q.Sum() + aet.Sum()) * dt
	residual := (storageEnd - storageStart) - (in - out)
	scale := math.Max(in, storageStart)
	if scale == 0 {
		return math.Abs(residual)
	}
	return math.Abs(residual) / scale
}

// TotalStorage sums every state of a state map. Lag buffers hold water in
// transit and count as storage.
func TotalStorage(states map[string]float64) float64 {
	total := 0.0
	for _, v := range states {
		total += v
	}
	return total
}
