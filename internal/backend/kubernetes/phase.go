package kubernetes

// Phase tracks progress of a single Reconcile call across ticks. It is
// persisted in controller_metadata.reconcile_phase and read back on the
// next call so reconciliation resumes where it left off.
type Phase string

const (
	PhaseNotStarted        Phase = "NotStarted"
	PhaseCreatingNamespace  Phase = "CreatingNamespace"
	PhaseApplyingDeployment Phase = "ApplyingDeployment"
	PhaseApplyingService    Phase = "ApplyingService"
	PhaseApplyingIngress    Phase = "ApplyingIngress"
	PhaseWaitingForReady    Phase = "WaitingForReady"
	PhaseCompleted          Phase = "Completed"
)

// next returns the phase that follows p in the reconcile state machine.
// Completed has no successor.
func (p Phase) next() Phase {
	switch p {
	case PhaseNotStarted:
		return PhaseCreatingNamespace
	case PhaseCreatingNamespace:
		return PhaseApplyingDeployment
	case PhaseApplyingDeployment:
		return PhaseApplyingService
	case PhaseApplyingService:
		return PhaseApplyingIngress
	case PhaseApplyingIngress:
		return PhaseWaitingForReady
	case PhaseWaitingForReady:
		return PhaseCompleted
	default:
		return PhaseCompleted
	}
}

func phaseFromMetadata(metadata map[string]interface{}) Phase {
	if metadata == nil {
		return PhaseNotStarted
	}
	raw, ok := metadata["reconcile_phase"]
	if !ok {
		return PhaseNotStarted
	}
	s, ok := raw.(string)
	if !ok {
		return PhaseNotStarted
	}
	return Phase(s)
}
