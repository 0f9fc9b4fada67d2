package models

import "fmt"

// Stats is the document served by GET /stats and consumed by the CLI client.
// Progress, CPUUsage and MemoryUsage are pre-formatted percentage strings so
// the payload renders directly without further math on the consumer side.
type Stats struct {
	Inserted      uint64 `json:"inserted"`
	Total         uint64 `json:"total"`
	Progress      string `json:"progress"`
	CPUUsage      string `json:"cpu_usage"`
	MemoryUsage   string `json:"memory_usage"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	JobRunning    bool   `json:"job_running"`
	Healthy       bool   `json:"healthy"`
}

// FormatProgress renders inserted/total as a percentage string, "0%" when
// nothing has been counted yet.
func FormatProgress(inserted, total uint64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(inserted)/float64(total)*100)
}

// ProgressEvent is the lighter document pushed over the stats websocket on
// every progress update. It omits host metrics, which are sampled on demand
// by GET /stats only.
type ProgressEvent struct {
	State      string `json:"state"`
	Inserted   uint64 `json:"inserted"`
	Total      uint64 `json:"total"`
	Progress   string `json:"progress"`
	JobRunning bool   `json:"job_running"`
}
