// Package queue carries customer notifications from the API process to the
// worker process over an asynq task queue.
package queue

import (
	"encoding/json"
	"fmt"

	"payment-ledger/internal/core/domain"

	"github.com/hibiken/asynq"
)

const (
	TaskReceipt      = "notification:receipt"
	TaskStatusChange = "notification:status_change"
	TaskRefund       = "notification:refund"
)

// TaskTypes lists every task type the worker handles.
var TaskTypes = []string{TaskReceipt, TaskStatusChange, TaskRefund}

// TaskTypeFor maps a notification kind to its task type.
func TaskTypeFor(kind domain.NotificationKind) (string, error) {
	switch kind {
	case domain.NotificationReceipt:
		return TaskReceipt, nil
	case domain.NotificationStatusChange:
		return TaskStatusChange, nil
	case domain.NotificationRefund:
		return TaskRefund, nil
	}
	return "", fmt.Errorf("unknown notification kind %q", kind)
}

// NewNotificationTask builds the task for n. The payload is n as JSON.
func NewNotificationTask(n domain.Notification, opts ...asynq.Option) (*asynq.Task, error) {
	taskType, err := TaskTypeFor(n.Kind)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return asynq.NewTask(taskType, body, opts...), nil
}

// ParseNotification decodes a task payload. A payload that does not match the
// task type is reported with asynq.SkipRetry since retrying cannot fix it.
func ParseNotification(task *asynq.Task) (domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return n, fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	want, err := TaskTypeFor(n.Kind)
	if err != nil || want != task.Type() {
		return n, fmt.Errorf("task %s carries %q notification: %w", task.Type(), n.Kind, asynq.SkipRetry)
	}
	return n, nil
}
