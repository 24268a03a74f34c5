package main

import "syscall"

// statfsDiskSpaceChecker reports free bytes on the volume backing path,
// implementing domain.DiskSpaceChecker with a Linux statfs call so the
// domain layer itself stays free of platform syscalls.
type statfsDiskSpaceChecker struct {
	path string
}

func newDiskSpaceChecker(path string) *statfsDiskSpaceChecker {
	return &statfsDiskSpaceChecker{path: path}
}

func (c *statfsDiskSpaceChecker) FreeBytes() (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
