package jobs

import (
	"context"
	"sync"

	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/internal/screener"
	"github.com/wonny/gapscan/pkg/logger"
)

// Scanner is satisfied by *screener.Pipeline
type Scanner interface {
	Scan(ctx context.Context, req screener.Request) (*screener.Report, error)
	Cache() *resultcache.Cache
}

// ScanJob re-runs a full scan on a schedule. Intraday data is dropped from
// the cache before each run; floats are kept.
// ⭐ SSOT: the watch schedule is driven by this job only
type ScanJob struct {
	scanner  Scanner
	schedule string
	request  screener.Request
	onReport func(*screener.Report)
	logger   *logger.Logger

	mu     sync.RWMutex
	latest *screener.Report
}

// NewScanJob creates a scan job. onReport may be nil.
func NewScanJob(scanner Scanner, schedule string, req screener.Request, onReport func(*screener.Report), log *logger.Logger) *ScanJob {
	return &ScanJob{
		scanner:  scanner,
		schedule: schedule,
		request:  req,
		onReport: onReport,
		logger:   log,
	}
}

// Name returns the job name
func (j *ScanJob) Name() string {
	return "scan"
}

// Schedule returns the cron schedule
func (j *ScanJob) Schedule() string {
	return j.schedule
}

// Run executes one full scan
func (j *ScanJob) Run(ctx context.Context) error {
	removed, err := j.scanner.Cache().Invalidate(ctx, resultcache.Volatile...)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to flush shared intraday cache")
	}
	j.logger.WithField("evicted", removed).Debug("Reset intraday cache entries")

	report, err := j.scanner.Scan(ctx, j.request)
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.latest = report
	j.mu.Unlock()

	if j.onReport != nil {
		j.onReport(report)
	}
	return nil
}

// Latest returns the most recent successful report, or nil
func (j *ScanJob) Latest() *screener.Report {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}
