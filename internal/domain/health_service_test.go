package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingerStub struct{ err error }

func (p pingerStub) Ping(ctx context.Context) error { return p.err }

type diskCheckerStub struct {
	free uint64
	err  error
}

func (d diskCheckerStub) FreeBytes() (uint64, error) { return d.free, d.err }

func TestHealthService_Check_HealthyWhenDatabaseReachable(t *testing.T) {
	t.Parallel()

	started := time.Unix(1000, 0)
	now := started.Add(5 * time.Minute)
	svc := NewHealthService(pingerStub{}, diskCheckerStub{free: 10 << 30}, "9.9.9", started)
	svc.now = func() time.Time { return now }

	status := svc.Check(context.Background())
	if status.Status != "healthy" {
		t.Fatalf("status.Status = %q, want healthy", status.Status)
	}
	if status.Checks["database"].Status != "healthy" {
		t.Fatalf("database check = %+v, want healthy", status.Checks["database"])
	}
	if status.Checks["disk_space"].Status != "healthy" {
		t.Fatalf("disk_space check = %+v, want healthy", status.Checks["disk_space"])
	}
	if status.Checks["uptime"].Detail["uptime_seconds"] != int64(300) {
		t.Fatalf("uptime_seconds = %v, want 300", status.Checks["uptime"].Detail["uptime_seconds"])
	}
	if status.Version != "9.9.9" {
		t.Fatalf("status.Version = %q, want 9.9.9", status.Version)
	}
}

func TestHealthService_Check_UnhealthyWhenDatabaseUnreachable(t *testing.T) {
	t.Parallel()

	svc := NewHealthService(pingerStub{err: errors.New("connection refused")}, diskCheckerStub{free: 10 << 30}, "", time.Unix(0, 0))

	status := svc.Check(context.Background())
	if status.Status != "unhealthy" {
		t.Fatalf("status.Status = %q, want unhealthy", status.Status)
	}
	if status.Checks["database"].Status != "unhealthy" {
		t.Fatalf("database check = %+v, want unhealthy", status.Checks["database"])
	}
}

func TestHealthService_Check_DiskSpaceWarningDoesNotFailOverall(t *testing.T) {
	t.Parallel()

	svc := NewHealthService(pingerStub{}, diskCheckerStub{free: 1 << 20}, "", time.Unix(0, 0))

	status := svc.Check(context.Background())
	if status.Status != "healthy" {
		t.Fatalf("status.Status = %q, want healthy (disk space is peripheral)", status.Status)
	}
	if status.Checks["disk_space"].Status != "warning" {
		t.Fatalf("disk_space check = %+v, want warning", status.Checks["disk_space"])
	}
}
