package service

import (
	"math/rand/v2"
	"time"
)

// EscalationPeriod is how long the failure rate takes to climb from min to max.
const EscalationPeriod = time.Hour

// RandomSource yields uniform values in [0,1).
type RandomSource interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom draws from the runtime's goroutine-safe generator.
var DefaultRandom RandomSource = globalRandom{}

// EffectiveRate returns the failure probability in percent after elapsed time
// on a linear ramp from minRate to maxRate that saturates at EscalationPeriod.
func EffectiveRate(minRate, maxRate float64, elapsed time.Duration) float64 {
	ratio := float64(elapsed) / float64(EscalationPeriod)
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return minRate + (maxRate-minRate)*ratio
}

// drawFails reports whether draw r in [0,1) rejects an attempt at rate percent.
func drawFails(r, rate float64) bool {
	return r*100 < rate
}
