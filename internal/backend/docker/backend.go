package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/rise-sh/rise/internal/backend"
	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
)

const labelDeploymentID = "sh.rise.deployment-id"

// Config tunes the Docker backend.
type Config struct {
	NetworkName string
}

func DefaultConfig() Config {
	return Config{NetworkName: "rise"}
}

// dockerClient is the slice of the Docker engine API this backend
// needs; narrowing it from client.APIClient makes the backend testable
// with a small hand-written fake instead of the full engine client.
type dockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (dockertypes.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// Backend is the Docker engine implementation of backend.Backend, used
// for local development and single-node deployments.
type Backend struct {
	docker dockerClient
	store  store.Store
	cfg    Config
}

func New(c dockerClient, st store.Store, cfg Config) *Backend {
	return &Backend{docker: c, store: st, cfg: cfg}
}

var _ backend.Backend = (*Backend)(nil)

func containerName(deployment *store.Deployment) string {
	return "rise-" + deployment.DeploymentID
}

func (b *Backend) Reconcile(ctx context.Context, deployment *store.Deployment, project *store.Project) (backend.ReconcileResult, error) {
	metadata := cloneMetadata(deployment.ControllerMetadata)
	phase := phaseFromMetadata(metadata)
	name := containerName(deployment)

	for phase != PhaseCompleted {
		switch phase {
		case PhaseNotStarted, PhaseContainerCreated:
			if err := b.ensureContainer(ctx, name, deployment); err != nil {
				return failResult(deployment.Status, metadata, phase, err)
			}
		case PhaseContainerStarted:
			if err := b.docker.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
				return failResult(deployment.Status, metadata, phase, err)
			}
		case PhasePortBound:
			bound, err := b.portBound(ctx, name, deployment.HTTPPort)
			if err != nil {
				return failResult(deployment.Status, metadata, phase, err)
			}
			if !bound {
				metadata["reconcile_phase"] = string(PhasePortBound)
				return backend.ReconcileResult{Status: deployment.Status, ControllerMetadata: metadata}, nil
			}
		}
		phase = phase.next()
		metadata["reconcile_phase"] = string(phase)
	}

	return backend.ReconcileResult{Status: statemachine.Healthy, ControllerMetadata: metadata}, nil
}

func failResult(status statemachine.Status, metadata map[string]interface{}, phase Phase, err error) (backend.ReconcileResult, error) {
	return backend.ReconcileResult{
		Status:             status,
		ControllerMetadata: metadata,
		ErrorMessage:       fmt.Sprintf("phase %s: %v", phase, err),
	}, nil
}

func (b *Backend) ensureContainer(ctx context.Context, name string, deployment *store.Deployment) error {
	if _, err := b.docker.ContainerInspect(ctx, name); err == nil {
		return nil
	}

	portKey := nat.Port(strconv.Itoa(deployment.HTTPPort) + "/tcp")
	image := deployment.Image
	if image == "" {
		image = deployment.DeploymentID
	}

	_, err := b.docker.ContainerCreate(ctx,
		&container.Config{
			Image:  image,
			Labels: map[string]string{labelDeploymentID: deployment.DeploymentID},
			Env:    []string{"PORT=" + strconv.Itoa(deployment.HTTPPort)},
			ExposedPorts: nat.PortSet{
				portKey: struct{}{},
			},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				portKey: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
			},
			NetworkMode: container.NetworkMode(b.cfg.NetworkName),
		},
		name,
	)
	return err
}

func (b *Backend) portBound(ctx context.Context, name string, containerPort int) (bool, error) {
	inspect, err := b.docker.ContainerInspect(ctx, name)
	if err != nil {
		return false, err
	}
	portKey := nat.Port(strconv.Itoa(containerPort) + "/tcp")
	bindings, ok := inspect.NetworkSettings.Ports[portKey]
	return ok && len(bindings) > 0, nil
}

func (b *Backend) hostPort(ctx context.Context, deployment *store.Deployment) (string, error) {
	inspect, err := b.docker.ContainerInspect(ctx, containerName(deployment))
	if err != nil {
		return "", err
	}
	portKey := nat.Port(strconv.Itoa(deployment.HTTPPort) + "/tcp")
	bindings := inspect.NetworkSettings.Ports[portKey]
	if len(bindings) == 0 {
		return "", fmt.Errorf("no host port bound for container %s", containerName(deployment))
	}
	return bindings[0].HostPort, nil
}

func (b *Backend) HealthCheck(ctx context.Context, deployment *store.Deployment) (backend.HealthStatus, error) {
	inspect, err := b.docker.ContainerInspect(ctx, containerName(deployment))
	now := time.Now().UTC()
	if err != nil {
		return backend.HealthStatus{Healthy: false, Message: err.Error(), LastCheck: now}, nil
	}

	running := inspect.State != nil && inspect.State.Running
	status := backend.HealthStatus{
		Healthy:   running,
		LastCheck: now,
		PodStatus: map[string]interface{}{"status": inspect.State.Status},
	}
	if !running {
		status.Message = fmt.Sprintf("container %s not running: %s", containerName(deployment), inspect.State.Status)
	}
	return status, nil
}

func (b *Backend) Cancel(ctx context.Context, deployment *store.Deployment) error {
	return nil
}

func (b *Backend) Terminate(ctx context.Context, deployment *store.Deployment) error {
	name := containerName(deployment)
	timeout := 10
	if err := b.docker.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil && !dockerclient.IsErrNotFound(err) {
		return err
	}
	if err := b.docker.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !dockerclient.IsErrNotFound(err) {
		return err
	}
	return nil
}

func (b *Backend) GetDeploymentURLs(ctx context.Context, deployment *store.Deployment, project *store.Project) (backend.DeploymentURLs, error) {
	port, err := b.hostPort(ctx, deployment)
	if err != nil {
		url := fmt.Sprintf("http://localhost:%d", deployment.HTTPPort)
		return backend.DeploymentURLs{DefaultURL: url, PrimaryURL: url}, nil
	}
	url := fmt.Sprintf("http://localhost:%s", port)
	return backend.DeploymentURLs{DefaultURL: url, PrimaryURL: url}, nil
}

func (b *Backend) GetProjectURLs(ctx context.Context, project *store.Project, deploymentGroup string) (backend.DeploymentURLs, error) {
	url := fmt.Sprintf("http://localhost:%s.%s.local", deploymentGroup, project.Name)
	return backend.DeploymentURLs{DefaultURL: url, PrimaryURL: url}, nil
}

func (b *Backend) StreamLogs(ctx context.Context, deployment *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: timestamps,
	}
	if tailLines != nil {
		opts.Tail = strconv.FormatInt(*tailLines, 10)
	}
	if sinceSeconds != nil {
		since := time.Now().Add(-time.Duration(*sinceSeconds) * time.Second)
		opts.Since = since.Format(time.RFC3339)
	}
	return b.docker.ContainerLogs(ctx, containerName(deployment), opts)
}

func cloneMetadata(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
