package probe

import "time"

// Status represents the classified outcome of a probe.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Fault tags why a probe ended offline.
type Fault string

const (
	FaultNone       Fault = ""
	FaultTimeout    Fault = "timeout"
	FaultConnection Fault = "connection"
	FaultTransport  Fault = "transport"
)

// Error descriptions reported for the well-known faults.
const (
	ErrorTimeout           = "timeout"
	ErrorConnectionFailure = "connection failure"
)

// Result is the outcome of one probe against one target.
type Result struct {
	Status         Status    `json:"status"`
	ResponseTimeMs *int64    `json:"response_time_ms"`
	StatusCode     *int      `json:"status_code"`
	LastChecked    time.Time `json:"last_checked"`
	Error          *string   `json:"error"`
	Name           string    `json:"name"`
	Fault          Fault     `json:"-"`
}

// Completed builds the result for a request that returned a response.
func Completed(name string, code int, accepted bool, elapsed time.Duration, at time.Time) Result {
	status := StatusDegraded
	if accepted {
		status = StatusOnline
	}
	ms := elapsed.Milliseconds()
	return Result{
		Status:         status,
		ResponseTimeMs: &ms,
		StatusCode:     &code,
		LastChecked:    at,
		Name:           name,
	}
}

// Offline builds the result for a request that never completed.
func Offline(name string, fault Fault, message string, at time.Time) Result {
	return Result{
		Status:      StatusOffline,
		LastChecked: at,
		Error:       &message,
		Name:        name,
		Fault:       fault,
	}
}

// ErrorText returns the error description or "".
func (r Result) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}
