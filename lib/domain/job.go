package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderKey         = "key"
	HeaderName        = "name"
	HeaderRevision    = "revision"
	HeaderRetryCount  = "retry_count"
	HeaderRetryReason = "retry_reason"
)

// JobTaskReminder is the handler name of reminder jobs.
const JobTaskReminder = "TaskReminder"

const reminderKeyPrefix = "task-reminder:"

// Job is a durable deferred unit of work. Key is unique among pending jobs;
// submitting a job with an existing key replaces the pending one.
type Job struct {
	Key         string
	Name        string
	Payload     []byte
	Due         time.Time
	Revision    int64
	RetryCount  uint16
	RetryReason string
}

// ReminderKey is the job key of the reminder for a task.
func ReminderKey(taskID int64) string {
	return reminderKeyPrefix + strconv.FormatInt(taskID, 10)
}

// TaskIDFromKey reverses ReminderKey.
func TaskIDFromKey(key string) (int64, error) {
	s, ok := strings.CutPrefix(key, reminderKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("not a reminder key: %q", key)
	}
	return strconv.ParseInt(s, 10, 64)
}

// ReminderPayload is carried by a reminder job and is the source of truth at
// fire time.
type ReminderPayload struct {
	TaskID    int64  `json:"taskId"`
	TaskTitle string `json:"taskTitle"`
}

func (p ReminderPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalReminderPayload(data []byte) (p ReminderPayload, err error) {
	err = json.Unmarshal(data, &p)
	return
}
