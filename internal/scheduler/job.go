package scheduler

import (
	"context"
	"time"
)

// Job is a unit of scheduled work
// ⭐ SSOT: the scheduled job interface is defined here only
type Job interface {
	Name() string

	// Run executes the job; ctx ends when the scheduler stops or the run times out
	Run(ctx context.Context) error

	// Schedule returns a six-field cron expression (seconds first) or a
	// descriptor such as "@every 1m"
	Schedule() string
}

// Run records one scheduled or manual execution, retries included
type Run struct {
	Job      string    `json:"job"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Attempts int       `json:"attempts"`
	Err      string    `json:"error,omitempty"`
}

// OK reports whether the run ended without error
func (r Run) OK() bool { return r.Err == "" }

// Duration is the wall time of the run
func (r Run) Duration() time.Duration { return r.Finished.Sub(r.Started) }

const runLogSize = 100

// runLog is a fixed-size ring of recent runs
type runLog struct {
	runs  [runLogSize]Run
	next  int
	count int
}

func (l *runLog) add(r Run) {
	l.runs[l.next] = r
	l.next = (l.next + 1) % runLogSize
	if l.count < runLogSize {
		l.count++
	}
}

// last returns the newest run
func (l *runLog) last() (Run, bool) {
	if l.count == 0 {
		return Run{}, false
	}
	return l.runs[(l.next-1+runLogSize)%runLogSize], true
}

// snapshot returns the runs oldest first
func (l *runLog) snapshot() []Run {
	out := make([]Run, 0, l.count)
	start := (l.next - l.count + runLogSize) % runLogSize
	for i := 0; i < l.count; i++ {
		out = append(out, l.runs[(start+i)%runLogSize])
	}
	return out
}

func (l *runLog) successRate() float64 {
	if l.count == 0 {
		return 0
	}
	ok := 0
	for _, r := range l.snapshot() {
		if r.OK() {
			ok++
		}
	}
	return float64(ok) / float64(l.count)
}

// failureStreak counts consecutive failed runs ending at the newest
func (l *runLog) failureStreak() int {
	runs := l.snapshot()
	n := 0
	for i := len(runs) - 1; i >= 0 && !runs[i].OK(); i-- {
		n++
	}
	return n
}
