// executor/status_manager.go

package executor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/ZacxDev/mirrortex/target"
)

type ExecutionStatus struct {
	Status    target.Status
	StartTime time.Time
	EndTime   time.Time
}

type StatusManager interface {
	Reset()
	UpdateStatus(name string, status target.Status, startTime, endTime time.Time) error
	Status(name string) (ExecutionStatus, bool)
	MarkAsFailed(name string)
	Forget(name string)
	FailedCount() int
	Summary() target.Summary
}

type statusManager struct {
	statusMap     map[string]*ExecutionStatus
	order         []string
	failedTargets []string
	mu            sync.Mutex
}

func NewStatusManager() StatusManager {
	return &statusManager{
		statusMap: make(map[string]*ExecutionStatus),
	}
}

func (sm *statusManager) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.statusMap = make(map[string]*ExecutionStatus)
	sm.order = nil
	sm.failedTargets = nil
}

// UpdateStatus moves name to status. Transitions outside
// Discovered -> {Skipped | Compiling -> {Succeeded | Failed}} are rejected.
func (sm *statusManager) UpdateStatus(name string, status target.Status, startTime, endTime time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	current, exists := sm.statusMap[name]
	if !exists {
		current = &ExecutionStatus{}
	}
	if !current.Status.CanTransition(status) {
		return errors.Errorf("invalid status transition for %s: %q -> %q", name, current.Status, status)
	}
	if !exists {
		sm.statusMap[name] = current
		sm.order = append(sm.order, name)
	}

	current.Status = status
	if !startTime.IsZero() {
		current.StartTime = startTime
	}
	if !endTime.IsZero() {
		current.EndTime = endTime
	}
	return nil
}

func (sm *statusManager) Status(name string) (ExecutionStatus, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	status, ok := sm.statusMap[name]
	if !ok {
		return ExecutionStatus{}, false
	}
	return *status, true
}

func (sm *statusManager) MarkAsFailed(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.failedTargets = append(sm.failedTargets, name)
}

// Forget drops everything recorded for name so it can be tracked afresh.
func (sm *statusManager) Forget(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.statusMap, name)
	sm.order = slices.DeleteFunc(sm.order, func(n string) bool { return n == name })
	sm.failedTargets = slices.DeleteFunc(sm.failedTargets, func(n string) bool { return n == name })
}

func (sm *statusManager) FailedCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.failedTargets)
}

func (sm *statusManager) Summary() target.Summary {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	summary := target.Summary{
		Discovered:    len(sm.order),
		FailedSources: append([]string(nil), sm.failedTargets...),
	}
	for _, name := range sm.order {
		switch sm.statusMap[name].Status {
		case target.StatusSucceeded:
			summary.Succeeded++
		case target.StatusSkipped:
			summary.Skipped++
		case target.StatusFailed:
			summary.Failed++
		}
	}
	return summary
}
