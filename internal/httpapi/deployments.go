package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"

	"github.com/rise-sh/rise/internal/authz"
	"github.com/rise-sh/rise/internal/jwtauth"
	"github.com/rise-sh/rise/internal/statemachine"
	"github.com/rise-sh/rise/internal/store"
	"github.com/rise-sh/rise/internal/validation"
)

type createDeploymentRequest struct {
	Project     string `json:"project"`
	Image       string `json:"image"`
	ImageDigest string `json:"image_digest"`
	Group       string `json:"group"`
	HTTPPort    int    `json:"http_port"`
	ExpiresIn   string `json:"expires_in"`
}

type createDeploymentResponse struct {
	DeploymentID        string              `json:"deployment_id"`
	ImageTag            string              `json:"image_tag"`
	RegistryCredentials RegistryCredentials `json:"registry_credentials"`
}

// handleCreateDeployment implements POST /deployments (spec.md §6).
func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req createDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 0, badRequest("malformed request body: "+err.Error()))
		return
	}
	if req.Group == "" {
		req.Group = "default"
	}

	if err := validation.ProjectName(req.Project); err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}
	if err := validation.DeploymentGroup(req.Group); err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}
	if err := validation.HTTPPort(req.HTTPPort); err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}
	if err := validation.ImageReference(req.Image); err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}
	if err := validation.ImageDigest(req.ImageDigest); err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}
	expiresIn, err := validation.ParseExpiry(req.ExpiresIn)
	if err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}

	ctx := r.Context()
	claims := claimsFrom(ctx)
	if claims == nil {
		writeError(w, 0, unauthorized("missing authentication"))
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, 0, unauthorized("token subject is not a valid user id"))
		return
	}

	project, err := s.store.GetProjectByName(ctx, req.Project)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	if allowed, err := s.checkProjectAccess(ctx, project, claims, userID); err != nil {
		writeError(w, 0, err)
		return
	} else if !allowed {
		writeError(w, 0, forbidden("not authorized for this project"))
		return
	}

	envVars, err := s.store.GetProjectEnvVars(ctx, project.ID)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	var expiresAt *time.Time
	if expiresIn != nil {
		t := time.Now().UTC().Add(*expiresIn)
		expiresAt = &t
	}

	deployment, err := s.store.CreateDeployment(ctx, store.CreateDeploymentParams{
		ProjectID:       project.ID,
		CreatedByUserID: userID,
		DeploymentGroup: req.Group,
		Image:           req.Image,
		ImageDigest:     req.ImageDigest,
		HTTPPort:        req.HTTPPort,
		ExpiresAt:       expiresAt,
		EnvVars:         envVars,
	})
	if err != nil {
		writeError(w, 0, err)
		return
	}

	creds, err := s.creds.GetCredentials(ctx, project)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	tag, err := imageTag(s.registry.BaseURL, deployment, project)
	if err != nil {
		writeError(w, 0, badRequest(err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, createDeploymentResponse{
		DeploymentID:        deployment.DeploymentID,
		ImageTag:            tag,
		RegistryCredentials: creds,
	})
}

// imageTag mirrors internal/backend/kubernetes's image_tag computation
// (spec.md §4.4) so the CLI learns the same tag the Kubernetes backend
// will later program into the Pod spec.
func imageTag(registryBase string, deployment *store.Deployment, project *store.Project) (string, error) {
	if deployment.ImageDigest != "" {
		ref := fmt.Sprintf("%s/%s@%s", registryBase, project.Name, deployment.ImageDigest)
		if _, err := name.NewDigest(ref); err != nil {
			return "", fmt.Errorf("invalid image digest %q: %w", deployment.ImageDigest, err)
		}
		return ref, nil
	}
	if deployment.Image != "" {
		return deployment.Image, nil
	}
	tag := fmt.Sprintf("%s/%s:%s", registryBase, project.Name, deployment.DeploymentID)
	if _, err := name.NewTag(tag); err != nil {
		return "", fmt.Errorf("invalid computed image tag %q: %w", tag, err)
	}
	return tag, nil
}

type updateStatusRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// handleUpdateStatus implements PATCH /deployments/{deploymentID}/status:
// the CLI's way of reporting build/push progress (spec.md §6). The path
// segment is the deployment's internal UUID, the one identifier that is
// unique without a project to scope it.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "deploymentID"))
	if err != nil {
		writeError(w, 0, badRequest("deploymentID must be a UUID"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 0, badRequest("malformed request body: "+err.Error()))
		return
	}
	newStatus := statemachine.Status(req.Status)

	ctx := r.Context()
	deployment, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	claims := claimsFrom(ctx)
	if claims == nil {
		writeError(w, 0, unauthorized("missing authentication"))
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, 0, unauthorized("token subject is not a valid user id"))
		return
	}
	project, err := s.store.GetProject(ctx, deployment.ProjectID)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	if allowed, err := s.checkProjectAccess(ctx, project, claims, userID); err != nil {
		writeError(w, 0, err)
		return
	} else if !allowed {
		writeError(w, 0, forbidden("not authorized for this project"))
		return
	}

	if newStatus == statemachine.Failed {
		err = s.store.MarkFailed(ctx, id, req.ErrorMessage)
	} else {
		err = s.store.UpdateStatus(ctx, id, newStatus)
	}
	if err != nil {
		writeError(w, 0, err)
		return
	}

	if err := s.store.RecomputeProjectStatus(ctx, deployment.ProjectID); err != nil {
		s.logger.Error("failed to recompute project status after status update")
	}

	w.WriteHeader(http.StatusNoContent)
}

type deploymentView struct {
	ID                 string                 `json:"id"`
	DeploymentID       string                 `json:"deployment_id"`
	DeploymentGroup    string                 `json:"deployment_group"`
	Status             string                 `json:"status"`
	Image              string                 `json:"image,omitempty"`
	ImageDigest        string                 `json:"image_digest,omitempty"`
	HTTPPort           int                    `json:"http_port"`
	ExpiresAt          *time.Time             `json:"expires_at,omitempty"`
	ErrorMessage       string                 `json:"error_message,omitempty"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	TerminationReason  string                 `json:"termination_reason,omitempty"`
	ControllerMetadata map[string]interface{} `json:"controller_metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func toDeploymentView(d *store.Deployment) deploymentView {
	return deploymentView{
		ID:                 d.ID.String(),
		DeploymentID:       d.DeploymentID,
		DeploymentGroup:    d.DeploymentGroup,
		Status:             string(d.Status),
		Image:              d.Image,
		ImageDigest:        d.ImageDigest,
		HTTPPort:           d.HTTPPort,
		ExpiresAt:          d.ExpiresAt,
		ErrorMessage:       d.ErrorMessage,
		CompletedAt:        d.CompletedAt,
		TerminationReason:  string(d.TerminationReason),
		ControllerMetadata: d.ControllerMetadata,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// handleListDeployments implements GET /projects/{project}/deployments.
func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	project := projectFrom(r.Context())
	group := r.URL.Query().Get("group")

	deployments, err := s.store.ListDeployments(r.Context(), project.ID, group)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	views := make([]deploymentView, 0, len(deployments))
	for _, d := range deployments {
		views = append(views, toDeploymentView(d))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetDeployment implements GET
// /projects/{project}/deployments/{deploymentID}. An optional ?jq=
// query parameter runs a gojq program against controller_metadata, so
// operators can extract one field without parsing the whole blob.
func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	project := projectFrom(r.Context())
	deploymentID := chi.URLParam(r, "deploymentID")

	deployment, err := s.store.GetDeploymentByDeploymentID(r.Context(), project.ID, deploymentID)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	if program := r.URL.Query().Get("jq"); program != "" {
		result, err := evalJQ(program, deployment.ControllerMetadata)
		if err != nil {
			writeError(w, 0, badRequest(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentView(deployment))
}

func evalJQ(program string, data map[string]interface{}) (interface{}, error) {
	query, err := gojq.Parse(program)
	if err != nil {
		return nil, fmt.Errorf("invalid jq program: %w", err)
	}
	iter := query.Run(data)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, fmt.Errorf("jq evaluation failed: %w", err)
	}
	return v, nil
}

// handleRollback implements POST
// /projects/{project}/deployments/{deploymentID}/rollback (spec.md §6,
// scenario S4): it creates a new deployment in the referenced
// deployment's group pinned to the same image_digest.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := projectFrom(ctx)
	deploymentID := chi.URLParam(r, "deploymentID")

	source, err := s.store.GetDeploymentByDeploymentID(ctx, project.ID, deploymentID)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	if source.ImageDigest == "" {
		writeError(w, 0, badRequest("referenced deployment has no image_digest to roll back to"))
		return
	}

	claims := claimsFrom(ctx)
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, 0, unauthorized("token subject is not a valid user id"))
		return
	}

	envVars, err := s.store.GetProjectEnvVars(ctx, project.ID)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	rolledBack, err := s.store.CreateDeployment(ctx, store.CreateDeploymentParams{
		ProjectID:       project.ID,
		CreatedByUserID: userID,
		DeploymentGroup: source.DeploymentGroup,
		ImageDigest:     source.ImageDigest,
		HTTPPort:        source.HTTPPort,
		EnvVars:         envVars,
	})
	if err != nil {
		writeError(w, 0, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeploymentView(rolledBack))
}

type stopGroupResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"deployment_ids"`
}

// handleStopGroup implements POST
// /projects/{project}/deployments/stop?group=… (spec.md §6, scenario S5).
func (s *Server) handleStopGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := projectFrom(ctx)
	group := r.URL.Query().Get("group")
	if group == "" {
		group = "default"
	}

	deployments, err := s.store.ListDeployments(ctx, project.ID, group)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	var stopped []string
	for _, d := range deployments {
		if statemachine.IsTerminal(d.Status) {
			continue
		}
		if err := s.store.MarkTerminating(ctx, d.ID, statemachine.ReasonUserStopped); err != nil {
			s.logger.Error("failed to mark deployment terminating during stop-group")
			continue
		}
		stopped = append(stopped, d.DeploymentID)
	}

	if err := s.store.RecomputeProjectStatus(ctx, project.ID); err != nil {
		s.logger.Error("failed to recompute project status after stop-group")
	}

	writeJSON(w, http.StatusOK, stopGroupResponse{Count: len(stopped), IDs: stopped})
}

// handleLogs implements GET
// /projects/{project}/deployments/{deploymentID}/logs (spec.md §6).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := projectFrom(ctx)
	deploymentID := chi.URLParam(r, "deploymentID")

	deployment, err := s.store.GetDeploymentByDeploymentID(ctx, project.ID, deploymentID)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	follow := r.URL.Query().Get("follow") == "true"
	timestamps := r.URL.Query().Get("timestamps") == "true"
	var tailLines, sinceSeconds *int64
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, 0, badRequest("tail must be an integer"))
			return
		}
		tailLines = &n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, 0, badRequest("since must be an integer number of seconds"))
			return
		}
		sinceSeconds = &n
	}

	stream, err := s.backend.StreamLogs(ctx, deployment, follow, tailLines, timestamps, sinceSeconds)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	if err := streamWithIdleTimeout(ctx, w, stream, 2*time.Minute); err != nil {
		s.logger.Error("log stream ended with an error")
	}
}

// checkProjectAccess is the manual equivalent of the authorizeProject
// middleware, for the two endpoints (POST /deployments and PATCH
// /deployments/{id}/status) that aren't nested under /projects/{project}
// and so resolve their project after the body/path is parsed rather
// than before routing.
func (s *Server) checkProjectAccess(ctx context.Context, project *store.Project, claims *jwtauth.RiseClaims, userID uuid.UUID) (bool, error) {
	if s.authz == nil {
		return true, nil
	}
	in := authz.ForProject(project, userID, isAdmin(claims), nil)
	return s.authz.Allowed(ctx, in)
}
