package models

import "strings"

// JobStatus is the text of a job's current step as rendered by the dashboard.
type JobStatus string

const (
	StatusCompleted        JobStatus = "Completed successfully"
	StatusFailed           JobStatus = "Failed"
	StatusAwaitingDecision JobStatus = "Awaiting decision"
)

// SettledStatuses is the closed set of outcomes a job can leave
// "in progress" for.
var SettledStatuses = []JobStatus{StatusFailed, StatusCompleted, StatusAwaitingDecision}

// Settled reports whether s is one of the closed-set outcomes. Any other
// text means the job has not settled yet.
func (s JobStatus) Settled() bool {
	return s.In(SettledStatuses)
}

// In reports whether s equals one of accepted.
func (s JobStatus) In(accepted []JobStatus) bool {
	for _, a := range accepted {
		if strings.TrimSpace(string(s)) == string(a) {
			return true
		}
	}
	return false
}

// Job is one microservice's execution against a unit.
type Job struct {
	UUID         string    `json:"uuid"`
	Microservice string    `json:"microservice"`
	Group        string    `json:"group"`
	UnitUUID     string    `json:"unit_uuid"`
	Status       JobStatus `json:"status"`
}

// DecisionChoice is one option offered by a job awaiting a decision.
type DecisionChoice struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}
