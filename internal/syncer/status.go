package syncer

import (
	"sync"
	"time"
)

// RunStatus is the outcome of the most recent sync pass.
type RunStatus string

const (
	RunNever   RunStatus = "never"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Status is reported by GET /api/sync/status.
type Status struct {
	LastRunAt      *time.Time `json:"lastRunAt"`
	LastRunStatus  RunStatus  `json:"lastRunStatus"`
	LastRunMessage *string    `json:"lastRunMessage"`
}

// StatusHolder is the process-wide record of the last sync pass.
type StatusHolder struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusHolder() *StatusHolder {
	return &StatusHolder{status: Status{LastRunStatus: RunNever}}
}

func (h *StatusHolder) Get() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *StatusHolder) record(at time.Time, status RunStatus, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = Status{LastRunAt: &at, LastRunStatus: status, LastRunMessage: &message}
}
