package forecasting

import (
	"math"
	"math/rand/v2"
	"time"

	"EnerCast/internal/domain/models"
	domsvc "EnerCast/internal/domain/service"
	"EnerCast/internal/services/features"
)

// NoiseFunc returns a random perturbation with the given standard deviation.
type NoiseFunc func(stddev float64) float64

// GaussianNoise draws from N(0, stddev) truncated to three deviations.
func GaussianNoise(stddev float64) float64 {
	if stddev <= 0 {
		return 0
	}
	z := rand.NormFloat64()
	if z > 3 {
		z = 3
	} else if z < -3 {
		z = -3
	}
	return z * stddev
}

// SelectModel resolves a preference to a concrete model. "auto" picks the
// long-horizon model for horizons over a day.
func SelectModel(pref models.ModelPreference, hoursAhead int) models.ModelType {
	switch models.ModelType(pref) {
	case models.ModelLSTM, models.ModelXGBoost:
		return models.ModelType(pref)
	}
	if hoursAhead > 24 {
		return models.ModelLSTM
	}
	return models.ModelXGBoost
}

// profile holds the shape parameters of a heuristic predictor.
type profile struct {
	model        models.ModelType
	dayFactor    float64
	nightFactor  float64
	weekendScale float64
	confStart    float64
	confDecay    float64
	accBase      float64
	accPerHour   float64
}

// heuristic is a stand-in predictor: a recent level modulated by time of day and
// weekend, plus bounded noise.
type heuristic struct {
	profile
	base  func(history []domsvc.HourlyFeatures) (level, noiseStd float64)
	noise NoiseFunc
}

// NewLongHorizon returns the long-horizon ("LSTM") predictor. The level is the
// mean of the last 24 hours and noise scales with its deviation.
func NewLongHorizon(noise NoiseFunc) domsvc.Predictor {
	return &heuristic{
		profile: profile{
			model:        models.ModelLSTM,
			dayFactor:    1.2,
			nightFactor:  0.8,
			weekendScale: 0.85,
			confStart:    0.95,
			confDecay:    0.15,
			accBase:      0.88,
			accPerHour:   1.0 / 1000,
		},
		base: func(h []domsvc.HourlyFeatures) (float64, float64) {
			mean, std := features.MeanPopStd(features.TailValues(h, features.RollingWindow))
			return mean, std * 0.1
		},
		noise: noise,
	}
}

// NewShortHorizon returns the short-horizon ("XGBoost") predictor. The level is
// the last rolling 24 hour mean.
func NewShortHorizon(noise NoiseFunc) domsvc.Predictor {
	return &heuristic{
		profile: profile{
			model:        models.ModelXGBoost,
			dayFactor:    1.3,
			nightFactor:  0.7,
			weekendScale: 0.8,
			confStart:    0.90,
			confDecay:    0.20,
			accBase:      0.85,
			accPerHour:   1.0 / 1200,
		},
		base: func(h []domsvc.HourlyFeatures) (float64, float64) {
			if len(h) == 0 {
				return 0, 0
			}
			level := h[len(h)-1].RollingMean24
			return level, level * 0.05
		},
		noise: noise,
	}
}

func (p *heuristic) Model() models.ModelType { return p.model }

func (p *heuristic) Predict(history []domsvc.HourlyFeatures, hoursAhead int) ([]models.ForecastPoint, float64) {
	if len(history) == 0 || hoursAhead <= 0 {
		return nil, 0
	}
	level, noiseStd := p.base(history)
	last := history[len(history)-1].Timestamp

	out := make([]models.ForecastPoint, hoursAhead)
	for i := 0; i < hoursAhead; i++ {
		ts := last.Add(time.Duration(i+1) * time.Hour)
		factor := p.nightFactor
		if h := ts.Hour(); h >= 8 && h <= 18 {
			factor = p.dayFactor
		}
		if features.IsWeekend(ts) {
			factor *= p.weekendScale
		}
		v := level * factor
		if p.noise != nil {
			v += p.noise(noiseStd)
		}
		conf := p.confStart - float64(i)/float64(hoursAhead)*p.confDecay
		out[i] = models.ForecastPoint{
			Timestamp:  ts,
			Value:      math.Max(0, v),
			Confidence: math.Round(conf*1000) / 1000,
		}
	}
	return out, p.accBase - float64(hoursAhead)*p.accPerHour
}
