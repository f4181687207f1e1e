package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/rise-sh/rise/internal/jwtauth"
	"github.com/rise-sh/rise/internal/urlcalc"
)

// handleJWKS serves the RS256 public key set deployed projects fetch to
// validate Rise-issued ingress JWTs themselves (spec.md §4.7).
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := s.signer.JWKS()
	if err != nil {
		writeError(w, 0, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(set); err != nil {
		s.logger.Error("failed to encode jwks response")
	}
}

type ingressTokenResponse struct {
	Token      string `json:"token"`
	ProjectURL string `json:"project_url"`
}

// handleAuthIngress implements GET /auth/ingress?project=&group=: it
// mints a project-scoped RS256 ingress JWT from the caller's already
// verified session, so the browser can be redirected straight into a
// private deployment without a second login (spec.md §4.6/§4.7).
func (s *Server) handleAuthIngress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)
	if claims == nil {
		writeError(w, 0, unauthorized("missing authentication"))
		return
	}

	projectName := r.URL.Query().Get("project")
	if projectName == "" {
		writeError(w, 0, badRequest("project query parameter is required"))
		return
	}
	group := r.URL.Query().Get("group")

	project, err := s.store.GetProjectByName(ctx, projectName)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, 0, unauthorized("token subject is not a valid user id"))
		return
	}
	allowed, err := s.checkProjectAccess(ctx, project, claims, userID)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	if !allowed {
		writeError(w, 0, forbidden("not authorized for this project"))
		return
	}

	domains, err := s.store.GetProjectCustomDomains(ctx, project.ID)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	urlDomains := make([]urlcalc.CustomDomain, 0, len(domains))
	for _, d := range domains {
		urlDomains = append(urlDomains, urlcalc.CustomDomain{Hostname: d.Hostname, Primary: d.Primary, Verified: d.Verified})
	}
	urls := urlcalc.Calculate(s.urlCfg, urlcalc.Project{Name: project.Name, CustomDomains: urlDomains}, group)

	token, err := s.signer.SignIngressJWT(jwtauth.IdPClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Groups:  claims.Groups,
	}, urls.PrimaryURL, nil)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	writeJSON(w, http.StatusOK, ingressTokenResponse{Token: token, ProjectURL: urls.PrimaryURL})
}
