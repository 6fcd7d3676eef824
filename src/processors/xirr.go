package processors

import (
	"math"
	"sort"
	"time"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

const (
	DefaultXIRRGuess = 0.1

	xirrMaxIterations = 50
	xirrNPVTolerance  = 0.01   // EUR
	xirrRateTolerance = 0.0001 // absolute change between iterates
	daysPerYear       = 365.0

	// XIRRReliableLimit: results beyond ±10 000% come from a diverged solve.
	XIRRReliableLimit = 10000.0
)

type datedFlow struct {
	amount float64
	years  float64
}

// XIRR estimates the annualized money-weighted return, in percent, of flows
// plus a terminal flow of currentValue dated now. Deposits must be negative.
//
// Newton-Raphson runs for at most 50 iterations and stops once |NPV| < 0.01
// or the rate moves by less than 0.0001. No convergence is guaranteed: a
// diverging solve returns its last iterate, see XIRRReliable. Empty flows or
// a zero current value return 0 without iterating.
func XIRR(flows []models.CashFlow, currentValue float64, now time.Time, guess float64) float64 {
	if len(flows) == 0 || currentValue == 0 {
		return 0
	}

	type point struct {
		amount float64
		date   time.Time
	}
	points := make([]point, 0, len(flows)+1)
	for _, f := range flows {
		d := utils.ParseDate(f.Date)
		if d.IsZero() || f.Amount == 0 || math.IsNaN(f.Amount) {
			continue
		}
		points = append(points, point{amount: f.Amount, date: d})
	}
	if len(points) == 0 {
		return 0
	}
	points = append(points, point{amount: currentValue, date: utils.TruncateDay(now)})
	sort.SliceStable(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

	first := points[0].date
	dated := make([]datedFlow, len(points))
	for i, p := range points {
		dated[i] = datedFlow{amount: p.amount, years: float64(utils.DaysBetween(first, p.date)) / daysPerYear}
	}

	rate := guess
	for i := 0; i < xirrMaxIterations; i++ {
		value, derivative := npv(dated, rate)
		if math.Abs(value) < xirrNPVTolerance {
			break
		}
		if derivative == 0 || math.IsNaN(derivative) || math.IsInf(derivative, 0) {
			break
		}
		next := rate - value/derivative
		// (1+rate)^t is undefined below -100%; step halfway towards -1 instead.
		if next <= -1 {
			next = (rate - 1) / 2
		}
		if math.Abs(next-rate) < xirrRateTolerance {
			rate = next
			break
		}
		rate = next
	}

	return utils.Finite(rate * 100)
}

// npv returns NPV(rate) and its analytic derivative.
func npv(flows []datedFlow, rate float64) (value, derivative float64) {
	base := 1 + rate
	for _, f := range flows {
		discount := math.Pow(base, f.years)
		value += f.amount / discount
		derivative -= f.years * f.amount / (discount * base)
	}
	return value, derivative
}

// XIRRReliable reports whether an XIRR percentage is plausible enough to show.
func XIRRReliable(pct float64) bool {
	return !math.IsNaN(pct) && math.Abs(pct) <= XIRRReliableLimit
}
