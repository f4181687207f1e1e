package kubernetes

import (
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/rise-sh/rise/internal/store"
)

func buildNamespace(cfg Config, project *store.Project) *corev1.Namespace {
	return &corev1.Namespace{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{Name: namespaceFor(project.Name), Annotations: cfg.NamespaceAnnotations},
	}
}

func buildDeployment(image string, deployment *store.Deployment, project *store.Project, envVars []store.EnvVar) *appsv1.Deployment {
	ns := namespaceFor(project.Name)
	env := make([]corev1.EnvVar, 0, len(envVars)+1)
	env = append(env, corev1.EnvVar{Name: "PORT", Value: strconv.Itoa(deployment.HTTPPort)})
	for _, ev := range envVars {
		env = append(env, corev1.EnvVar{Name: ev.Key, Value: ev.Value})
	}

	replicas := int32(1)
	labels := map[string]string{"rise.sh/deployment-id": deployment.DeploymentID}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      deployment.DeploymentID,
			Namespace: ns,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "app",
							Image: image,
							Ports: []corev1.ContainerPort{{ContainerPort: int32(deployment.HTTPPort)}},
							Env:   env,
						},
					},
				},
			},
		},
	}
}

func buildService(deployment *store.Deployment, project *store.Project) *corev1.Service {
	labels := map[string]string{"rise.sh/deployment-id": deployment.DeploymentID}
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      deployment.DeploymentID,
			Namespace: namespaceFor(project.Name),
		},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports: []corev1.ServicePort{
				{Port: 80, TargetPort: intstr.FromInt(deployment.HTTPPort)},
			},
		},
	}
}

func buildIngress(cfg Config, hosts []string, deployment *store.Deployment, project *store.Project) *networkingv1.Ingress {
	ns := namespaceFor(project.Name)
	ingressClass := cfg.IngressClassName
	pathType := networkingv1.PathTypePrefix

	rules := make([]networkingv1.IngressRule, 0, len(hosts))
	for _, host := range hosts {
		rules = append(rules, networkingv1.IngressRule{
			Host: host,
			IngressRuleValue: networkingv1.IngressRuleValue{
				HTTP: &networkingv1.HTTPIngressRuleValue{
					Paths: []networkingv1.HTTPIngressPath{
						{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: deployment.DeploymentID,
									Port: networkingv1.ServiceBackendPort{Number: 80},
								},
							},
						},
					},
				},
			},
		})
	}

	return &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      deployment.DeploymentID,
			Namespace: ns,
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: &ingressClass,
			Rules:            rules,
		},
	}
}

