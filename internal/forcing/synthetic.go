package forcing

import (
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Synthetic generates n days of forcing: storms arrive at random with
// exponential depths and PET follows a seasonal cycle. The same seed always
// gives the same table.
func Synthetic(n int, seed int64) *Data {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	d := &Data{
		Dates: make([]time.Time, n),
		P:     make(dynamo.Series, n),
		PET:   make(dynamo.Series, n),
	}
	for i := 0; i < n; i++ {
		d.Dates[i] = start.AddDate(0, 0, i)
		if rng.Float64() < 0.3 {
			d.P[i] = rng.ExpFloat64() * 8
		}
		doy := float64(d.Dates[i].YearDay())
		d.PET[i] = 2 + 1.5*math.Sin(2*math.Pi*(doy-80)/365)
	}
	return d
}
