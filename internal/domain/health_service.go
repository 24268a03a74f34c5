package domain

import (
	"context"
	"time"
)

// DatabasePinger is satisfied by the store: a trivial read used to prove the
// embedded database is reachable (spec §6 GET /health, supplemented by
// original_source/app/services/health_service.py).
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// DiskSpaceChecker reports free bytes on the volume backing the database and
// upload directories, grounded on the Python original's shutil.disk_usage
// check (platform statfs in this repo's main package, injected here as an
// interface so the domain layer stays syscall-free).
type DiskSpaceChecker interface {
	FreeBytes() (uint64, error)
}

// HealthCheck is one named component of the aggregate report.
type HealthCheck struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// HealthStatus is the JSON shape spec §6 names directly:
// {status, timestamp, version, checks:{database, disk_space, uptime}}.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthService implements spec §6's unauthenticated GET /health.
type HealthService struct {
	db        DatabasePinger
	disk      DiskSpaceChecker
	version   string
	startedAt time.Time
	now       func() time.Time
}

// NewHealthService constructs a HealthService. startedAt is recorded once at
// process boot for the uptime check.
func NewHealthService(db DatabasePinger, disk DiskSpaceChecker, version string, startedAt time.Time) *HealthService {
	if version == "" {
		version = "1.0.0"
	}
	return &HealthService{db: db, disk: disk, version: version, startedAt: startedAt, now: time.Now}
}

// minFreeBytesWarning is the free-byte count below which the disk_space check degrades to "warning" rather
// than failing the whole endpoint (spec: peripheral diagnostic, not a gate).
const minFreeBytesWarning = 1 << 30 // 1 GiB

// Check runs all three components and aggregates them per the Python
// original: the endpoint is unhealthy only if the database check fails.
func (h *HealthService) Check(ctx context.Context) HealthStatus {
	now := h.now()
	status := HealthStatus{Timestamp: now, Version: h.version, Checks: map[string]HealthCheck{}}

	dbCheck := HealthCheck{Status: "healthy", Detail: map[string]any{"connected": true}}
	if h.db == nil {
		dbCheck = HealthCheck{Status: "unhealthy", Detail: map[string]any{"connected": false, "message": "database not configured"}}
	} else if err := h.db.Ping(ctx); err != nil {
		dbCheck = HealthCheck{Status: "unhealthy", Detail: map[string]any{"connected": false, "message": err.Error()}}
	}
	status.Checks["database"] = dbCheck

	diskCheck := HealthCheck{Status: "healthy", Detail: map[string]any{}}
	if h.disk != nil {
		if free, err := h.disk.FreeBytes(); err != nil {
			diskCheck = HealthCheck{Status: "error", Detail: map[string]any{"message": err.Error()}}
		} else {
			diskCheck.Detail["free_bytes"] = free
			if free < minFreeBytesWarning {
				diskCheck.Status = "warning"
			}
		}
	}
	status.Checks["disk_space"] = diskCheck

	uptime := now.Sub(h.startedAt)
	status.Checks["uptime"] = HealthCheck{
		Status: "healthy",
		Detail: map[string]any{
			"started_at":      h.startedAt.UTC(),
			"uptime_seconds":  int64(uptime.Seconds()),
		},
	}

	status.Status = "healthy"
	if dbCheck.Status == "unhealthy" {
		status.Status = "unhealthy"
	}
	return status
}
