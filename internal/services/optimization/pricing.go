package optimization

// Pricing is the static tariff table, in currency per kWh unless noted.
type Pricing struct {
	Peak         float64
	OffPeak      float64
	SuperOffPeak float64
	// DemandCharge is per kW of peak demand per month.
	DemandCharge float64
}

// Constraints bound what the engine may recommend.
type Constraints struct {
	MinTemperatureC     float64
	MaxTemperatureC     float64
	MaxLoadShiftKWh     float64
	MinSavingsThreshold float64
	LoadShiftPeakKW     float64
}

func DefaultPricing() Pricing {
	return Pricing{Peak: 1.05, OffPeak: 0.65, SuperOffPeak: 0.45, DemandCharge: 60}
}

func DefaultConstraints() Constraints {
	return Constraints{
		MinTemperatureC:     18,
		MaxTemperatureC:     26,
		MaxLoadShiftKWh:     100,
		MinSavingsThreshold: 20,
		LoadShiftPeakKW:     80,
	}
}
