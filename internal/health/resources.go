package health

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Check result levels. A warning degrades the node, a critical result makes
// it unhealthy.
const (
	CheckHealthy  = "healthy"
	CheckWarning  = "warning"
	CheckCritical = "critical"
)

// CheckResult is the outcome of one resource check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ResourceOptions configures the local resource checks
type ResourceOptions struct {
	DataDir             string
	CheckDataDir        bool
	DiskWarningPercent  float64
	DiskCriticalPercent float64
}

// ResourceChecker inspects the LiteFS data directory and process limits
type ResourceChecker struct {
	opts   ResourceOptions
	logger *zap.Logger

	diskUsage func(path string) (float64, error)
	openFDs   func() (used, limit uint64, err error)
	now       func() time.Time
}

func NewResourceChecker(opts ResourceOptions, logger *zap.Logger) *ResourceChecker {
	return &ResourceChecker{
		opts:      opts,
		logger:    logger,
		diskUsage: statfsUsage,
		openFDs:   procFDUsage,
		now:       time.Now,
	}
}

// Run executes every check. Data directory checks are skipped when the
// directory is not visible to the sidecar.
func (r *ResourceChecker) Run() []CheckResult {
	checks := []func() CheckResult{r.checkFileDescriptors}
	if r.opts.CheckDataDir {
		checks = append([]func() CheckResult{r.checkDataDirAccessible, r.checkDiskSpace}, checks...)
	}

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check()
		if result.Status != CheckHealthy {
			r.logger.Warn("Resource check failed",
				zap.String("check", result.Name),
				zap.String("status", result.Status),
				zap.String("message", result.Message))
		}
		results = append(results, result)
	}
	return results
}

func (r *ResourceChecker) result(name, status, format string, args ...interface{}) CheckResult {
	return CheckResult{
		Name:      name,
		Status:    status,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: r.now(),
	}
}

func (r *ResourceChecker) checkDiskSpace() CheckResult {
	usage, err := r.diskUsage(r.opts.DataDir)
	if err != nil {
		return r.result("disk_space", CheckCritical, "failed to stat filesystem: %v", err)
	}
	switch {
	case usage > r.opts.DiskCriticalPercent:
		return r.result("disk_space", CheckCritical, "disk usage critical: %.2f%%", usage)
	case usage > r.opts.DiskWarningPercent:
		return r.result("disk_space", CheckWarning, "disk usage high: %.2f%%", usage)
	}
	return r.result("disk_space", CheckHealthy, "disk usage: %.2f%%", usage)
}

func (r *ResourceChecker) checkDataDirAccessible() CheckResult {
	info, err := os.Stat(r.opts.DataDir)
	if err != nil {
		return r.result("data_dir_accessible", CheckCritical, "data directory not accessible: %v", err)
	}
	if !info.IsDir() {
		return r.result("data_dir_accessible", CheckCritical, "data path %s is not a directory", r.opts.DataDir)
	}

	testFile := filepath.Join(r.opts.DataDir, fmt.Sprintf(".sidecar_health_%d", r.now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return r.result("data_dir_accessible", CheckCritical, "cannot write to data directory: %v", err)
	}
	f.Close()
	os.Remove(testFile)

	return r.result("data_dir_accessible", CheckHealthy, "data directory is writable")
}

func (r *ResourceChecker) checkFileDescriptors() CheckResult {
	used, limit, err := r.openFDs()
	if err != nil || limit == 0 {
		// not every platform exposes /proc
		return r.result("file_descriptors", CheckHealthy, "file descriptor usage unavailable")
	}
	usage := float64(used) / float64(limit) * 100
	if usage > 90 {
		return r.result("file_descriptors", CheckWarning, "file descriptor usage high: %.2f%% (%d/%d)", usage, used, limit)
	}
	return r.result("file_descriptors", CheckHealthy, "file descriptor usage: %.2f%% (%d/%d)", usage, used, limit)
}

func statfsUsage(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := total - stat.Bfree*uint64(stat.Bsize)
	return float64(used) / float64(total) * 100, nil
}

func procFDUsage() (uint64, uint64, error) {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, 0, err
	}
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, 0, err
	}
	return uint64(len(entries)), uint64(rlimit.Cur), nil
}
