// Package kubernetes implements the Rise Backend interface against a
// Kubernetes cluster: one namespace per project, one Deployment/Service
// pair per rise deployment, and an Ingress for the deployment currently
// active in the default group.
package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/rise-sh/rise/internal/backend"
	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
	"github.com/rise-sh/rise/internal/urlcalc"
)

const fieldOwner = "rise-controller"

// Backend is the Kubernetes implementation of backend.Backend.
type Backend struct {
	client    client.Client
	clientset kubernetes.Interface
	store     store.Store
	cfg       Config
	urlCfg    urlcalc.Config
}

// New builds a Kubernetes backend. c must be scheme-registered for
// core/v1, apps/v1, and networking/v1.
func New(c client.Client, clientset kubernetes.Interface, st store.Store, cfg Config, urlCfg urlcalc.Config) *Backend {
	return &Backend{client: c, clientset: clientset, store: st, cfg: cfg, urlCfg: urlCfg}
}

// Start launches the two backend-owned loops (namespace GC, secret
// refresh) that the controller does not drive directly.
func (b *Backend) Start(ctx context.Context) {
	go b.namespaceGCLoop(ctx)
	go b.secretRefreshLoop(ctx)
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Reconcile(ctx context.Context, deployment *store.Deployment, project *store.Project) (backend.ReconcileResult, error) {
	metadata := cloneMetadata(deployment.ControllerMetadata)
	phase := phaseFromMetadata(metadata)

	image, err := imageTag(b.cfg.RegistryBase, deployment, project)
	if err != nil {
		return backend.ReconcileResult{
			Status:             deployment.Status,
			ControllerMetadata: metadata,
			ErrorMessage:        err.Error(),
		}, nil
	}

	for phase != PhaseCompleted {
		if phase != PhaseWaitingForReady {
			if err := b.applyPhase(ctx, phase, image, deployment, project); err != nil {
				return backend.ReconcileResult{
					Status:             deployment.Status,
					ControllerMetadata: metadata,
					ErrorMessage:        fmt.Sprintf("phase %s: %v", phase, err),
				}, nil
			}
			phase = phase.next()
			metadata["reconcile_phase"] = string(phase)
		}

		if phase == PhaseWaitingForReady {
			ready, err := b.podReady(ctx, deployment, project)
			if err != nil || !ready {
				// Stay in WaitingForReady until the pod reports Ready.
				return backend.ReconcileResult{
					Status:             deployment.Status,
					ControllerMetadata: metadata,
				}, nil
			}
			phase = phase.next()
			metadata["reconcile_phase"] = string(phase)
		}
	}

	return backend.ReconcileResult{
		Status:             statemachine.Healthy,
		ControllerMetadata: metadata,
	}, nil
}

func (b *Backend) applyPhase(ctx context.Context, phase Phase, image string, deployment *store.Deployment, project *store.Project) error {
	switch phase {
	case PhaseNotStarted, PhaseCreatingNamespace:
		ns := buildNamespace(b.cfg, project)
		return b.client.Patch(ctx, ns, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner))
	case PhaseApplyingDeployment:
		envVars, err := b.store.GetDeploymentEnvVars(ctx, deployment.ID)
		if err != nil {
			return err
		}
		envVars = append(envVars, appURLEnvVars(b.urlCfg, project, deployment.DeploymentGroup)...)
		dep := buildDeployment(image, deployment, project, envVars)
		return b.client.Patch(ctx, dep, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner))
	case PhaseApplyingService:
		svc := buildService(deployment, project)
		return b.client.Patch(ctx, svc, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner))
	case PhaseApplyingIngress:
		if deployment.DeploymentGroup != "default" {
			return nil
		}
		urls, err := b.GetDeploymentURLs(ctx, deployment, project)
		if err != nil {
			return err
		}
		hosts := allHosts(urls)
		if len(hosts) == 0 {
			return nil
		}
		ing := buildIngress(b.cfg, hosts, deployment, project)
		return b.client.Patch(ctx, ing, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner))
	}
	return nil
}

func (b *Backend) podReady(ctx context.Context, deployment *store.Deployment, project *store.Project) (bool, error) {
	var pods corev1.PodList
	if err := b.client.List(ctx, &pods,
		client.InNamespace(namespaceFor(project.Name)),
		client.MatchingLabels{"rise.sh/deployment-id": deployment.DeploymentID},
	); err != nil {
		return false, err
	}
	for _, pod := range pods.Items {
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *Backend) HealthCheck(ctx context.Context, deployment *store.Deployment) (backend.HealthStatus, error) {
	project, err := b.store.GetProject(ctx, deployment.ProjectID)
	if err != nil {
		return backend.HealthStatus{}, err
	}

	var pods corev1.PodList
	if err := b.client.List(ctx, &pods,
		client.InNamespace(namespaceFor(project.Name)),
		client.MatchingLabels{"rise.sh/deployment-id": deployment.DeploymentID},
	); err != nil {
		return backend.HealthStatus{}, err
	}

	now := time.Now().UTC()
	if len(pods.Items) == 0 {
		return backend.HealthStatus{Healthy: false, Message: "no pods found", LastCheck: now}, nil
	}

	pod := pods.Items[0]
	var restarts int32
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
	}

	ready := false
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			ready = true
		}
	}

	status := backend.HealthStatus{
		Healthy:   ready && restarts < 5,
		LastCheck: now,
		PodStatus: map[string]interface{}{
			"phase":         string(pod.Status.Phase),
			"restart_count": restarts,
		},
	}
	if !status.Healthy {
		status.Message = fmt.Sprintf("pod %s phase=%s ready=%v restarts=%d", pod.Name, pod.Status.Phase, ready, restarts)
	}
	return status, nil
}

func (b *Backend) Cancel(ctx context.Context, deployment *store.Deployment) error {
	// No infrastructure to deprovision pre-Pushed; nothing to do.
	return nil
}

func (b *Backend) Terminate(ctx context.Context, deployment *store.Deployment) error {
	project, err := b.store.GetProject(ctx, deployment.ProjectID)
	if err != nil {
		return err
	}
	dep := buildDeployment("", deployment, project, nil)
	svc := buildService(deployment, project)
	ing := buildIngress(b.cfg, nil, deployment, project)

	for _, obj := range []client.Object{dep, svc, ing} {
		if err := b.client.Delete(ctx, obj); err != nil && !apierrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func (b *Backend) GetDeploymentURLs(ctx context.Context, deployment *store.Deployment, project *store.Project) (backend.DeploymentURLs, error) {
	return b.GetProjectURLs(ctx, project, deployment.DeploymentGroup)
}

func (b *Backend) GetProjectURLs(ctx context.Context, project *store.Project, deploymentGroup string) (backend.DeploymentURLs, error) {
	domains, err := b.store.GetProjectCustomDomains(ctx, project.ID)
	if err != nil {
		return backend.DeploymentURLs{}, err
	}
	urlcalcDomains := make([]urlcalc.CustomDomain, 0, len(domains))
	for _, d := range domains {
		urlcalcDomains = append(urlcalcDomains, urlcalc.CustomDomain{Hostname: d.Hostname, Primary: d.Primary, Verified: d.Verified})
	}

	urls := urlcalc.Calculate(b.urlCfg, urlcalc.Project{Name: project.Name, CustomDomains: urlcalcDomains}, deploymentGroup)
	return backend.DeploymentURLs{
		DefaultURL:       urls.DefaultURL,
		PrimaryURL:       urls.PrimaryURL,
		CustomDomainURLs: urls.CustomDomainURLs,
	}, nil
}

func (b *Backend) StreamLogs(ctx context.Context, deployment *store.Deployment, follow bool, tailLines *int64, timestamps bool, sinceSeconds *int64) (io.ReadCloser, error) {
	project, err := b.store.GetProject(ctx, deployment.ProjectID)
	if err != nil {
		return nil, err
	}

	var pods corev1.PodList
	if err := b.client.List(ctx, &pods,
		client.InNamespace(namespaceFor(project.Name)),
		client.MatchingLabels{"rise.sh/deployment-id": deployment.DeploymentID},
	); err != nil {
		return nil, err
	}
	if len(pods.Items) == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	opts := &corev1.PodLogOptions{
		Follow:     follow,
		Timestamps: timestamps,
	}
	if tailLines != nil {
		opts.TailLines = tailLines
	}
	if sinceSeconds != nil {
		opts.SinceSeconds = sinceSeconds
	}

	req := b.clientset.CoreV1().Pods(namespaceFor(project.Name)).GetLogs(pods.Items[0].Name, opts)
	return req.Stream(ctx)
}

func allHosts(urls backend.DeploymentURLs) []string {
	hosts := make([]string, 0, 1+len(urls.CustomDomainURLs))
	if h := hostOf(urls.DefaultURL); h != "" {
		hosts = append(hosts, h)
	}
	for _, u := range urls.CustomDomainURLs {
		if h := hostOf(u); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func hostOf(rawURL string) string {
	const https, http = "https://", "http://"
	switch {
	case len(rawURL) > len(https) && rawURL[:len(https)] == https:
		return rawURL[len(https):]
	case len(rawURL) > len(http) && rawURL[:len(http)] == http:
		return rawURL[len(http):]
	default:
		return rawURL
	}
}

func cloneMetadata(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}

func appURLEnvVars(cfg urlcalc.Config, project *store.Project, group string) []store.EnvVar {
	urls := urlcalc.Calculate(cfg, urlcalc.Project{Name: project.Name}, group)
	return []store.EnvVar{
		{Key: "RISE_APP_URL", Value: urls.PrimaryURL},
		{Key: "RISE_APP_URLS", Value: urls.DefaultURL},
	}
}
