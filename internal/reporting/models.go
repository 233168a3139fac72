package reporting

import (
	"time"

	"call-platform/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for sessions
// created within Range. An empty ContextType covers all contexts.
type CallsSummaryRequest struct {
	Range       TimeRange         `json:"range"`
	ContextType calls.ContextType `json:"contextType,omitempty"`
}

type CallsSummary struct {
	Range       TimeRange         `json:"range"`
	ContextType calls.ContextType `json:"contextType,omitempty"`

	TotalCalls     int `json:"totalCalls"`
	CompletedCalls int `json:"completedCalls"`
	MissedCalls    int `json:"missedCalls"`
	ActiveCalls    int `json:"activeCalls"`

	ConferenceCalls int                       `json:"conferenceCalls"`
	ByContext       map[calls.ContextType]int `json:"byContext"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`

	// AnswerRate is completed / (completed + missed); active calls are
	// not counted yet.
	AnswerRate float64 `json:"answerRate"`
}
