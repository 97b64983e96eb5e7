package entities

import "time"

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusUp      HealthStatus = "up"
	HealthStatusDown    HealthStatus = "down"
	HealthStatusPartial HealthStatus = "partial"
)

// HealthCheck is the full health report served on /health
type HealthCheck struct {
	Status    HealthStatus           `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
	Uploads   UploadStats            `json:"uploads"`
}

// CheckResult is the outcome of probing one component
type CheckResult struct {
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// UploadStats summarises session activity at check time
type UploadStats struct {
	ActiveSessions int `json:"active_sessions"`
	Goroutines     int `json:"goroutines"`
}

// Worst folds component results into one overall status
func Worst(results ...CheckResult) HealthStatus {
	overall := HealthStatusUp
	for _, r := range results {
		switch r.Status {
		case HealthStatusDown:
			return HealthStatusDown
		case HealthStatusPartial:
			overall = HealthStatusPartial
		}
	}
	return overall
}
