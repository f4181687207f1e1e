// Package docker implements the Rise Backend interface against a local
// Docker engine, for development and single-node deployments that have
// no Kubernetes cluster available.
package docker

// Phase tracks progress of a single Reconcile call, persisted in
// controller_metadata.reconcile_phase.
type Phase string

const (
	PhaseNotStarted       Phase = "NotStarted"
	PhaseContainerCreated Phase = "ContainerCreated"
	PhaseContainerStarted Phase = "ContainerStarted"
	PhasePortBound        Phase = "PortBound"
	PhaseCompleted        Phase = "Completed"
)

func (p Phase) next() Phase {
	switch p {
	case PhaseNotStarted:
		return PhaseContainerCreated
	case PhaseContainerCreated:
		return PhaseContainerStarted
	case PhaseContainerStarted:
		return PhasePortBound
	case PhasePortBound:
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
