// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "fmt"

// State is a phase of the request/response cycle.
type State int

const (
	// StateIdle waits for a submission.
	StateIdle State = iota
	// StateAwaitingInput accepts a submission and records the user message.
	StateAwaitingInput
	// StateBuildingRequest applies the inactivity reset and builds the payload.
	StateBuildingRequest
	// StateStreaming issues the request and consumes the stream.
	StateStreaming
	// StateCommitting records the assistant reply.
	StateCommitting
	// StateFailed surfaces a fatal turn error before returning to Idle.
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateAwaitingInput:   "awaiting_input",
	StateBuildingRequest: "building_request",
	StateStreaming:       "streaming",
	StateCommitting:      "committing",
	StateFailed:          "failed",
}

// String returns the state name used in logs and on the wire.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Busy reports whether a turn is in flight.
func (s State) Busy() bool {
	return s != StateIdle
}

// transitions lists the legal successors of each state. Returning to Idle from
// AwaitingInput means the submission was not recorded; from BuildingRequest or
// Streaming it means the turn was canceled.
var transitions = map[State][]State{
	StateIdle:            {StateAwaitingInput},
	StateAwaitingInput:   {StateBuildingRequest, StateIdle},
	StateBuildingRequest: {StateStreaming, StateFailed, StateIdle},
	StateStreaming:       {StateCommitting, StateFailed, StateIdle},
	StateCommitting:      {StateIdle},
	StateFailed:          {StateIdle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
