package features

import (
	"math"
	"sort"
	"time"

	"EnerCast/internal/domain/models"
	domsvc "EnerCast/internal/domain/service"
)

// RollingWindow is the number of hourly observations in the rolling statistics.
const RollingWindow = 24

// ResampleHourly averages points into hourly buckets from the first to the last
// observed hour. Hours without readings are NaN.
func ResampleHourly(points []models.MeasurementPoint) ([]time.Time, []float64) {
	if len(points) == 0 {
		return nil, nil
	}
	sums := make(map[time.Time]float64, len(points))
	counts := make(map[time.Time]int, len(points))
	first := points[0].Timestamp.Truncate(time.Hour)
	last := first
	for _, p := range points {
		b := p.Timestamp.Truncate(time.Hour)
		sums[b] += p.Value
		counts[b]++
		if b.Before(first) {
			first = b
		}
		if b.After(last) {
			last = b
		}
	}

	n := int(last.Sub(first)/time.Hour) + 1
	ts := make([]time.Time, n)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		b := first.Add(time.Duration(i) * time.Hour)
		ts[i] = b
		if c := counts[b]; c > 0 {
			vals[i] = sums[b] / float64(c)
		} else {
			vals[i] = math.NaN()
		}
	}
	return ts, vals
}

// Interpolate fills NaN gaps linearly in time between the nearest known
// neighbours. Leading and trailing gaps take the nearest known value.
func Interpolate(ts []time.Time, vals []float64) {
	prev := -1
	for i := range vals {
		if math.IsNaN(vals[i]) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			span := ts[i].Sub(ts[prev]).Seconds()
			for j := prev + 1; j < i; j++ {
				w := ts[j].Sub(ts[prev]).Seconds() / span
				vals[j] = vals[prev] + w*(vals[i]-vals[prev])
			}
		} else if prev < 0 {
			for j := 0; j < i; j++ {
				vals[j] = vals[i]
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(vals); j++ {
			vals[j] = vals[prev]
		}
	}
}

// Preprocess turns raw measurements into hourly feature rows.
func Preprocess(points []models.MeasurementPoint) []domsvc.HourlyFeatures {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]models.MeasurementPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	ts, vals := ResampleHourly(sorted)
	Interpolate(ts, vals)

	out := make([]domsvc.HourlyFeatures, len(vals))
	for i := range vals {
		lo := i - RollingWindow + 1
		if lo < 0 {
			lo = 0
		}
		mean, std := MeanStd(vals[lo : i+1])
		wd := ts[i].Weekday()
		out[i] = domsvc.HourlyFeatures{
			Timestamp:     ts[i],
			Value:         vals[i],
			Hour:          ts[i].Hour(),
			DayOfWeek:     wd,
			IsWeekend:     IsWeekend(ts[i]),
			RollingMean24: mean,
			RollingStd24:  std,
		}
	}
	return out
}

// MeanStd returns the mean and sample standard deviation of xs.
// The deviation is zero for fewer than two values.
func MeanStd(xs []float64) (float64, float64) {
	return meanStd(xs, 1)
}

// MeanPopStd returns the mean and population standard deviation of xs.
func MeanPopStd(xs []float64) (float64, float64) {
	return meanStd(xs, 0)
}

func meanStd(xs []float64, ddof int) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-ddof))
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// TailValues returns the last n values of the feature rows.
func TailValues(rows []domsvc.HourlyFeatures, n int) []float64 {
	if n > len(rows) {
		n = len(rows)
	}
	out := make([]float64, 0, n)
	for _, r := range rows[len(rows)-n:] {
		out = append(out, r.Value)
	}
	return out
}
