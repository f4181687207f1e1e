package kubernetes

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/rise-sh/rise/internal/store"
)

// imageTag resolves the container image reference for a deployment: the
// pre-built digest reference if the build pipeline already produced one,
// otherwise a registry/project:deployment_id tag. Either way the result
// is validated with go-containerregistry before it is baked into a pod
// spec, so a malformed digest fails reconciliation instead of producing
// an unschedulable pod.
func imageTag(registryBase string, deployment *store.Deployment, project *store.Project) (string, error) {
	if deployment.ImageDigest != "" {
		ref := fmt.Sprintf("%s/%s@%s", registryBase, project.Name, deployment.ImageDigest)
		if _, err := name.NewDigest(ref); err != nil {
			return "", fmt.Errorf("invalid image digest %q: %w", deployment.ImageDigest, err)
		}
		return ref, nil
	}
	if deployment.Image != "" {
		if _, err := name.ParseReference(deployment.Image); err != nil {
			return "", fmt.Errorf("invalid image reference %q: %w", deployment.Image, err)
		}
		return deployment.Image, nil
	}

	tag := fmt.Sprintf("%s/%s:%s", registryBase, project.Name, deployment.DeploymentID)
	if _, err := name.NewTag(tag); err != nil {
		return "", fmt.Errorf("invalid computed image tag %q: %w", tag, err)
	}
	return tag, nil
}
