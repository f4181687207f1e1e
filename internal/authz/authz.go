// Package authz enforces project/deployment ownership with a small
// embedded Rego policy, the same rego.New(...).Eval(ctx) pattern the
// teacher uses for Kubernetes admission policy, generalized here to
// "does this user own (or sit on the owning team of, or administer)
// this project".
package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/rego"

	"github.com/rise-sh/rise/internal/store"
)

//go:embed policy.rego
var policySource string

const allowQuery = "data.rise.authz.allow"

// Input is the evaluation input for a single authorization decision.
type Input struct {
	UserID           string   `json:"user_id"`
	IsAdmin          bool     `json:"is_admin"`
	ProjectOwnerUser string   `json:"project_owner_user"`
	ProjectOwnerTeam string   `json:"project_owner_team"`
	UserTeamIDs      []string `json:"user_team_ids"`
}

// ForProject builds an Input for a project-scoped decision: is userID
// (a member of userTeamIDs, possibly an admin) permitted to act on
// project.
func ForProject(project *store.Project, userID uuid.UUID, isAdmin bool, userTeamIDs []uuid.UUID) Input {
	in := Input{UserID: userID.String(), IsAdmin: isAdmin}
	if project.OwnerUserID != nil {
		in.ProjectOwnerUser = project.OwnerUserID.String()
	}
	if project.OwnerTeamID != nil {
		in.ProjectOwnerTeam = project.OwnerTeamID.String()
	}
	for _, t := range userTeamIDs {
		in.UserTeamIDs = append(in.UserTeamIDs, t.String())
	}
	return in
}

// Evaluator evaluates the embedded ownership/admin-bypass policy. It
// holds no mutable state and is safe for concurrent use — every Allowed
// call re-prepares and evaluates the policy against fresh input.
type Evaluator struct {
	logger logr.Logger
}

// NewEvaluator builds an Evaluator. logger may be logr.Discard().
func NewEvaluator(logger logr.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Allowed reports whether in is permitted to act, per the embedded
// policy's allow rule.
func (e *Evaluator) Allowed(ctx context.Context, in Input) (bool, error) {
	rs, err := rego.New(
		rego.Query(allowQuery),
		rego.Module("policy.rego", policySource),
		rego.Input(in),
	).Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("evaluating authorization policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		e.logger.Info("authorization policy returned a non-boolean result, denying", "value", rs[0].Expressions[0].Value)
		return false, nil
	}
	return allowed, nil
}
