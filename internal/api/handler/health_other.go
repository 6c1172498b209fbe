//go:build !linux && !darwin && !freebsd && !dragonfly && !windows

package handler

// getDiskStats reports nothing on platforms without a statfs call.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	return
}
