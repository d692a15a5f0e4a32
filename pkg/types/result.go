package types

import "time"

// ScanResult is one port probe outcome. Transient, never persisted.
type ScanResult struct {
	Port    uint16 `json:"port"`
	Open    bool   `json:"open"`
	Service string `json:"service,omitempty"`
}

// ThroughputResult summarizes one throughput run. A failed connect or a
// write error mid-run yields Success=false with whatever was counted so far.
type ThroughputResult struct {
	TotalBytes     uint64        `json:"total_bytes"`
	Elapsed        time.Duration `json:"elapsed"`
	BytesPerSecond float64       `json:"bytes_per_second"`
	Success        bool          `json:"success"`
}
