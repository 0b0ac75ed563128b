// task_context.go - Background task tracking and logging

package common

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// TaskContext tracks one background enrichment task with timing per step.
// Every log line carries the task id so a single task can be traced through
// extraction, write-back and notification.
type TaskContext struct {
	TaskID           string
	RecordID         string
	StartTime        time.Time
	Steps            []StepLog
	CurrentStep      string
	CurrentStepStart time.Time
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Status    string    `json:"status"` // "success", "failed", "skipped"
	Error     string    `json:"error,omitempty"`
}

// NewTaskContext creates a new task tracking context
func NewTaskContext(recordID string) *TaskContext {
	taskID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] task started | record: %s", taskID, recordID)

	return &TaskContext{
		TaskID:    taskID,
		RecordID:  recordID,
		StartTime: now,
		Steps:     []StepLog{},
	}
}

// StartStep begins tracking a new processing step
func (tc *TaskContext) StartStep(stepName string) {
	tc.CurrentStep = stepName
	tc.CurrentStepStart = time.Now()
}

// EndStep completes the current step and records timing
func (tc *TaskContext) EndStep(status string, err error) {
	duration := time.Since(tc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      tc.CurrentStep,
		StartTime: tc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] step %s failed (%.2fs): %v",
			tc.TaskID, tc.CurrentStep, float64(duration)/1000, err)
	} else {
		log.Printf("[%s] step %s %s (%.2fs)",
			tc.TaskID, tc.CurrentStep, status, float64(duration)/1000)
	}

	tc.Steps = append(tc.Steps, stepLog)
	tc.CurrentStep = ""
}

// LogInfo logs info-level message with task ID prefix
func (tc *TaskContext) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", tc.TaskID, msg)
}

// LogWarning logs warning-level message with task ID prefix
func (tc *TaskContext) LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] WARN %s", tc.TaskID, msg)
}

// LogError logs error-level message with task ID prefix
func (tc *TaskContext) LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ERROR %s", tc.TaskID, msg)
}
