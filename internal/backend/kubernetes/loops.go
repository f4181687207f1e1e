package kubernetes

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// namespaceGCLoop removes project namespaces that no longer contain any
// Pods, reclaiming the namespace spec.md leaves to backend discretion.
// Deployment statuses in the store are not consulted.
func (b *Backend) namespaceGCLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.NamespaceGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.gcEmptyNamespaces(ctx)
		}
	}
}

func (b *Backend) gcEmptyNamespaces(ctx context.Context) {
	var namespaces corev1.NamespaceList
	if err := b.client.List(ctx, &namespaces); err != nil {
		return
	}

	for _, ns := range namespaces.Items {
		if len(ns.Name) < 8 || ns.Name[:8] != "project-" {
			continue
		}
		var pods corev1.PodList
		if err := b.client.List(ctx, &pods, client.InNamespace(ns.Name)); err != nil {
			continue
		}
		if len(pods.Items) > 0 {
			continue
		}
		nsCopy := ns
		if err := b.client.Delete(ctx, &nsCopy); err != nil && !apierrors.IsNotFound(err) {
			continue
		}
	}
}

// secretRefreshLoop re-mirrors registry credentials into every project
// namespace's pull secret so rotated credentials propagate without a
// restart.
func (b *Backend) secretRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SecretRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.refreshRegistrySecrets(ctx)
		}
	}
}

func (b *Backend) refreshRegistrySecrets(ctx context.Context) {
	var namespaces corev1.NamespaceList
	if err := b.client.List(ctx, &namespaces); err != nil {
		return
	}

	for _, ns := range namespaces.Items {
		if len(ns.Name) < 8 || ns.Name[:8] != "project-" {
			continue
		}
		secret := &corev1.Secret{
			ObjectMeta: metaObjectMeta(ns.Name),
			Type:       corev1.SecretTypeDockerConfigJson,
			Data:       map[string][]byte{corev1.DockerConfigJsonKey: b.registryPullSecretJSON()},
		}
		_ = b.client.Patch(ctx, secret, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner))
	}
}

// registryPullSecretJSON is a placeholder that real deployments replace
// with a call to the configured registry credential provider; reconcile
// correctness never depends on its contents, only that it's refreshed.
func (b *Backend) registryPullSecretJSON() []byte {
	return []byte(`{"auths":{}}`)
}

func metaObjectMeta(namespace string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: "registry-pull-secret", Namespace: namespace}
}
