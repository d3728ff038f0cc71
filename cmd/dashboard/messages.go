package main

import "github.com/rxtech-lab/marketboard/internal/scheduler"

// UpdateMsg signals that the orchestrator applied new data.
type UpdateMsg struct{}

// StatusMsg carries the scheduler status after a change or a poll.
type StatusMsg struct {
	Status scheduler.Status
}

// ErrorMsg reports a rejected user action.
type ErrorMsg struct {
	Err error
}

// tickMsg drives the periodic status poll.
type tickMsg struct{}
