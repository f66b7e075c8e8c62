package build

import (
	"sync"
	"time"
)

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	UnchangedBuilds  int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastHash         uint64
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordSuccess records a written artifact. An artifact whose hash matches
// the previous one counts as unchanged.
func (bm *BuildMetrics) RecordSuccess(result *Result) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.record(result.Duration)
	bm.SuccessfulBuilds++
	if bm.SuccessfulBuilds > 1 && result.Hash == bm.LastHash {
		bm.UnchangedBuilds++
	}
	bm.LastHash = result.Hash
}

// RecordFailure records a build that produced no artifact.
func (bm *BuildMetrics) RecordFailure(duration time.Duration) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.record(duration)
	bm.FailedBuilds++
}

func (bm *BuildMetrics) record(duration time.Duration) {
	bm.TotalBuilds++
	bm.TotalDuration += duration
	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		UnchangedBuilds:  bm.UnchangedBuilds,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
		LastHash:         bm.LastHash,
	}
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}
	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}
