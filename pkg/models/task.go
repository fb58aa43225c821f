package models

import "strings"

// Task is one execution record within a job's detail view.
type Task struct {
	ID        string   `json:"task_uuid"`
	FileUUID  string   `json:"file_uuid,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
	Client    string   `json:"client,omitempty"`
	ExitCode  string   `json:"exit_code,omitempty"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
	Stdout    string   `json:"stdout"`
	Stderr    string   `json:"stderr"`
	CreatedAt string   `json:"created_at,omitempty"`
	StartedAt string   `json:"started_at,omitempty"`
	EndedAt   string   `json:"ended_at,omitempty"`

	// Fields holds every key/value pair found in the record, including the
	// ones promoted to named fields above.
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns a record field by its normalized key.
func (t *Task) Field(key string) string {
	switch key {
	case "command":
		return t.Command
	case "stdout":
		return t.Stdout
	case "stderr":
		return t.Stderr
	case "arguments":
		return strings.Join(t.Arguments, " ")
	}
	return t.Fields[key]
}

// SetField stores a field and promotes well-known keys.
func (t *Task) SetField(key, value string) {
	if t.Fields == nil {
		t.Fields = make(map[string]string)
	}
	t.Fields[key] = value
	switch key {
	case "task_uuid":
		t.ID = value
	case "file_uuid":
		t.FileUUID = value
	case "file_name", "filename":
		t.FileName = value
	case "client":
		t.Client = value
	case "exit_code":
		t.ExitCode = value
	case "created_at", "created", "created_time":
		t.CreatedAt = value
	case "started_at", "start_time", "started":
		t.StartedAt = value
	case "ended_at", "end_time", "ended":
		t.EndedAt = value
	}
}

// Record flattens the task into field name to value, arguments joined by
// single spaces.
func (t *Task) Record() map[string]string {
	record := make(map[string]string, len(t.Fields)+4)
	for k, v := range t.Fields {
		record[k] = v
	}
	if t.ID != "" {
		record["task_uuid"] = t.ID
	}
	record["command"] = t.Command
	record["arguments"] = strings.Join(t.Arguments, " ")
	record["stdout"] = t.Stdout
	record["stderr"] = t.Stderr
	return record
}

// JobDetail is a job's overall status plus every task record keyed by task id.
type JobDetail struct {
	Job    Job              `json:"job"`
	Status JobStatus        `json:"status"`
	Tasks  map[string]*Task `json:"tasks"`
}
