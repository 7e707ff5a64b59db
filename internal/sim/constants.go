package sim

// Generation curve constants.
const (
	InstalledCapacityMW = 13500.0
	EffectiveCapacityMW = 13400.0
	PeakFraction        = 0.72
	SunriseHour         = 4.0
	SunsetHour          = 20.0
	NightResidual       = 0.0002
)

// Forecast noise constants.
const (
	IntradayNoise = 0.03
	DayAheadNoise = 0.08
	P10Scale      = 0.85
	P90Scale      = 1.15
)

// Simulation shape constants.
const (
	DayAheadHorizonHours = 36
	HoursPerDay          = 24
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
)
