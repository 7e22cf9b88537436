package model

// PriorConfidence narrows the sample-size-derived confidence of a computed
// TemporalPrior, distinct from Hypothesis.Confidence.
type PriorConfidence string

const (
	PriorHigh   PriorConfidence = "high"
	PriorMedium PriorConfidence = "medium"
	PriorLow    PriorConfidence = "low"
)

// Seasonality is the normalized quarter-of-year distribution of episodes.
type Seasonality struct {
	Q1 float64 `json:"Q1"`
	Q2 float64 `json:"Q2"`
	Q3 float64 `json:"Q3"`
	Q4 float64 `json:"Q4"`
}

// Recurrence summarizes inter-episode interval statistics.
type Recurrence struct {
	MeanIntervalDays float64 `json:"mean_interval_days"`
	StdevDays        float64 `json:"stdev_days"`
}

// TemporalPrior is computed offline (nightly), loaded at engine start, and
// never mutated at runtime.
type TemporalPrior struct {
	Seasonality Seasonality     `json:"seasonality"`
	Recurrence  Recurrence      `json:"recurrence"`
	Momentum30d int             `json:"momentum_30d"`
	Multiplier  float64         `json:"multiplier"`
	Confidence  PriorConfidence `json:"confidence"`
	SampleSize  int             `json:"sample_size"`
}

const (
	// TemporalMultiplierMin and TemporalMultiplierMax bound every prior
	// lookup result.
	TemporalMultiplierMin = 0.75
	TemporalMultiplierMax = 1.40

	// GlobalDefaultMultiplier is returned when no prior data exists at any
	// backoff level.
	GlobalDefaultMultiplier = 1.00
)

// BackoffLevel records which of the four lookup levels answered a prior
// query, for observability and for S4-style assertions.
type BackoffLevel string

const (
	BackoffExact          BackoffLevel = "exact"
	BackoffEntityWide     BackoffLevel = "entity_wide"
	BackoffGlobalCategory BackoffLevel = "global_category"
	BackoffGlobalDefault  BackoffLevel = "global_default"
)

// PriorLookup is the runtime answer from the Temporal Prior Service.
type PriorLookup struct {
	Multiplier  float64         `json:"multiplier"`
	Confidence  PriorConfidence `json:"confidence"`
	BackoffUsed BackoffLevel    `json:"backoff_level_used"`
}
