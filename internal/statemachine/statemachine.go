// Package statemachine enumerates Rise deployment states, the legal
// transitions between them, and the stable predicates the rest of the
// control plane depends on (is_terminal, is_active, is_in_progress).
//
// It has no dependency on the store or the backend: every function here
// is pure and deterministic, so it is exhaustively covered by table-driven
// and ginkgo specs rather than integration tests.
package statemachine

// Status is a deployment's position in the Rise lifecycle.
type Status string

const (
	Pending     Status = "Pending"
	Building    Status = "Building"
	Pushing     Status = "Pushing"
	Pushed      Status = "Pushed"
	Deploying   Status = "Deploying"
	Healthy     Status = "Healthy"
	Unhealthy   Status = "Unhealthy"
	Cancelling  Status = "Cancelling"
	Terminating Status = "Terminating"
	Cancelled   Status = "Cancelled"
	Stopped     Status = "Stopped"
	Superseded  Status = "Superseded"
	Failed      Status = "Failed"
	Expired     Status = "Expired"
)

// TerminationReason records why a deployment entered Terminating. It is
// typed rather than a free-form string so the terminate loop can
// mechanically map it to the right terminal status.
type TerminationReason string

const (
	ReasonSuperseded  TerminationReason = "Superseded"
	ReasonUserStopped TerminationReason = "UserStopped"
	ReasonFailed      TerminationReason = "Failed"
	ReasonExpired     TerminationReason = "Expired"
	ReasonCancelled   TerminationReason = "Cancelled"
)

// terminalStatuses is the closed set of states a deployment never leaves.
var terminalStatuses = map[Status]bool{
	Cancelled:  true,
	Stopped:    true,
	Superseded: true,
	Failed:     true,
	Expired:    true,
}

// activeStatuses is the set of states that can hold the (project, group)
// active pointer.
var activeStatuses = map[Status]bool{
	Healthy:   true,
	Unhealthy: true,
}

// inProgressStatuses is every non-terminal, non-active state.
var inProgressStatuses = map[Status]bool{
	Pending:     true,
	Building:    true,
	Pushing:     true,
	Pushed:      true,
	Deploying:   true,
	Cancelling:  true,
	Terminating: true,
}

// IsTerminal reports whether s is one of the five terminal statuses.
func IsTerminal(s Status) bool { return terminalStatuses[s] }

// IsActive reports whether s can be the active deployment of a group.
func IsActive(s Status) bool { return activeStatuses[s] }

// IsInProgress reports whether s is a non-terminal, non-active status.
func IsInProgress(s Status) bool { return inProgressStatuses[s] }

// legalTransitions enumerates every edge the control plane allows. Absence
// of an edge here, including same-state "transitions" not listed (e.g. the
// forced re-reconcile of Healthy/Unhealthy), means CanTransition rejects it;
// callers that only rewrite controller_metadata without changing status
// never go through CanTransition.
var legalTransitions = map[Status]map[Status]bool{
	Pending:   {Building: true, Cancelling: true, Terminating: true},
	Building:  {Pushing: true, Cancelling: true, Terminating: true},
	Pushing:   {Pushed: true, Cancelling: true, Terminating: true},
	Pushed:    {Deploying: true, Cancelling: true, Terminating: true},
	Deploying: {Healthy: true, Terminating: true},
	Healthy:   {Unhealthy: true, Terminating: true},
	Unhealthy: {Healthy: true, Terminating: true},

	Cancelling:  {Cancelled: true},
	Terminating: {Superseded: true, Stopped: true, Failed: true, Expired: true, Cancelled: true},

	// Retry: Failed -> Pending is legal only pre-infrastructure, i.e. only
	// when the backend's reconcile explicitly chooses to retry before any
	// infra exists. The state machine cannot see "infra exists or not" —
	// that gate is enforced by the caller (the backend / controller) and
	// is never widened here. Failed -> Terminating routes a failed
	// deployment's leftover infrastructure through the terminate loop.
	Failed: {Pending: true, Terminating: true},
}

// CanTransition reports whether moving a deployment from "from" to "to"
// is a legal edge in the state machine.
func CanTransition(from, to Status) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// TerminalFor maps a TerminationReason to the terminal status the
// terminate loop assigns once backend.Terminate succeeds.
func TerminalFor(reason TerminationReason) Status {
	switch reason {
	case ReasonSuperseded:
		return Superseded
	case ReasonUserStopped:
		return Stopped
	case ReasonFailed:
		return Failed
	case ReasonExpired:
		return Expired
	case ReasonCancelled:
		return Cancelled
	default:
		return Stopped
	}
}

// CancellableFrom reports whether a deployment in status s belongs to the
// cancel path (pre-infrastructure) rather than the terminate path.
func CancellableFrom(s Status) bool {
	switch s {
	case Pending, Building, Pushing, Pushed:
		return true
	default:
		return false
	}
}
