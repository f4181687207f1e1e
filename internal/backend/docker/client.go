package docker

import (
	"context"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// engineClient adapts the full Docker engine client to this package's
// narrow dockerClient interface, fixing the networking-config and
// platform arguments ContainerCreate otherwise requires to nil.
type engineClient struct {
	api client.APIClient
}

// NewEngineClient wraps api (typically built with client.NewClientWithOpts)
// for use as a Backend's docker client.
func NewEngineClient(api client.APIClient) dockerClient {
	return &engineClient{api: api}
}

func (e *engineClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, containerName string) (container.CreateResponse, error) {
	return e.api.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
}

func (e *engineClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return e.api.ContainerStart(ctx, containerID, options)
}

func (e *engineClient) ContainerInspect(ctx context.Context, containerID string) (dockertypes.ContainerJSON, error) {
	return e.api.ContainerInspect(ctx, containerID)
}

func (e *engineClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	return e.api.ContainerStop(ctx, containerID, options)
}

func (e *engineClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return e.api.ContainerRemove(ctx, containerID, options)
}

func (e *engineClient) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return e.api.ContainerLogs(ctx, containerID, options)
}
