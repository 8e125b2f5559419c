package models

import "time"

// StepCount records the table size after one pipeline step.
type StepCount struct {
	Step    string
	Rows    int
	Dropped int
}

// StageReport summarizes one orchestrator run.
type StageReport struct {
	RunID      string
	Stage      string
	Input      string
	Output     string
	RateSource string
	Steps      []StepCount
	StartedAt  time.Time
	Duration   time.Duration
}

// Record appends a step, computing how many rows it dropped relative to the previous step.
func (r *StageReport) Record(step string, rows int) {
	dropped := 0
	if n := len(r.Steps); n > 0 {
		dropped = r.Steps[n-1].Rows - rows
	}
	r.Steps = append(r.Steps, StepCount{Step: step, Rows: rows, Dropped: dropped})
}

// InsightReport holds the computed analytics over the Gold dataset.
type InsightReport struct {
	TotalListings  int
	AveragePrice   float64
	MedianPrice    float64
	MinPrice       float64
	MaxPrice       float64
	PriceStdDev    float64
	MostExpensive  *FeatureListing
	TopScored      []*FeatureListing
	ByCategory     map[string]int
	AveragePriceBy map[string]float64
}
