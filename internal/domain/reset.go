package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResetStatus is the outcome of a daily reset run.
type ResetStatus string

const (
	ResetStatusSuccess ResetStatus = "success"
	ResetStatusFailed  ResetStatus = "failed"
)

// ResetTrigger records what started a reset run.
type ResetTrigger string

const (
	ResetTriggerScheduled ResetTrigger = "scheduled"
	ResetTriggerManual    ResetTrigger = "manual"
)

// ResetLog is an append-only record of one reset execution.
type ResetLog struct {
	ID              uuid.UUID    `json:"id"`
	ResetDate       time.Time    `json:"resetDate"`
	UsersReset      int64        `json:"usersReset"`
	QuotasReset     int64        `json:"quotasReset"`
	ExecutionTimeMs int64        `json:"executionTimeMs"`
	Status          ResetStatus  `json:"status"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	Trigger         ResetTrigger `json:"trigger"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ResetOutcome is what a counter store reports after a batch reset.
type ResetOutcome struct {
	UsersReset  int64
	QuotasReset int64
}
