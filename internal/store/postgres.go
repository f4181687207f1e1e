// Package store implements the typed Postgres data-access layer used
// by the controller and the HTTP surface. Every mutation except the
// single-statement ClearNeedsReconcile and UpdateControllerMetadata opens
// its own transaction (BeginTx/Commit/Rollback) so cross-row invariants — most
// importantly the active-deployment pointer swap — are enforced
// atomically with the status change that triggers them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	riseerrors "github.com/rise-sh/rise/internal/errors"
	"github.com/rise-sh/rise/internal/statemachine"
)

// PostgresStore is the Store implementation backed by a *sqlx.DB using
// the pgx stdlib driver, so go-sqlmock can substitute the driver in
// unit tests without a live database.
type PostgresStore struct {
	db      *sqlx.DB
	metrics *Metrics
}

// Metrics holds the Prometheus instrumentation shared across store
// operations.
type Metrics struct {
	QueryDuration       *prometheus.HistogramVec
	TransactionRetries  prometheus.Counter
}

// NewMetrics registers the store's Prometheus collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rise_store_query_duration_seconds",
			Help: "Duration of store operations by name.",
		}, []string{"operation"}),
		TransactionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_store_transaction_retries_total",
			Help: "Number of store transactions retried after a serialization failure.",
		}),
	}
	reg.MustRegister(m.QueryDuration, m.TransactionRetries)
	return m
}

// Open connects to Postgres via the pgx stdlib driver and wraps the
// resulting *sql.DB in sqlx.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, riseerrors.FailedTo("open database connection", err)
	}
	if err := db.Ping(); err != nil {
		return nil, riseerrors.FailedTo("ping database", err)
	}
	return db, nil
}

// NewPostgresStore wraps an already-open *sqlx.DB.
func NewPostgresStore(db *sqlx.DB, metrics *Metrics) *PostgresStore {
	return &PostgresStore{db: db, metrics: metrics}
}

func (s *PostgresStore) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// withTx runs fn inside a transaction, committing on success and
// rolling back on any error (including a panic, which it re-raises
// after rollback).
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return riseerrors.FailedTo("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return mapPgError(err)
	}
	if err = tx.Commit(); err != nil {
		return riseerrors.FailedTo("commit transaction", mapPgError(err))
	}
	return nil
}

// mapPgError translates a raw driver error into the store's typed
// sentinel errors, leaving everything else untouched.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return riseerrors.Wrapf(riseerrors.ErrConstraintViolation, pgErr.Message)
		case "40001": // serialization_failure
			return riseerrors.Wrapf(riseerrors.ErrSerialization, pgErr.Message)
		}
	}
	return err
}

type deploymentRow struct {
	ID                 uuid.UUID      `db:"id"`
	DeploymentID       string         `db:"deployment_id"`
	ProjectID          uuid.UUID      `db:"project_id"`
	CreatedByUserID    uuid.UUID      `db:"created_by_user_id"`
	DeploymentGroup    string         `db:"deployment_group"`
	Status             string         `db:"status"`
	Image              string         `db:"image"`
	ImageDigest        string         `db:"image_digest"`
	HTTPPort           int            `db:"http_port"`
	ExpiresAt          sql.NullTime   `db:"expires_at"`
	DeployingStartedAt sql.NullTime   `db:"deploying_started_at"`
	ControllerMetadata []byte         `db:"controller_metadata"`
	ErrorMessage       string         `db:"error_message"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
	TerminationReason  sql.NullString `db:"termination_reason"`
	NeedsReconcile     bool           `db:"needs_reconcile"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r deploymentRow) toDomain() (*Deployment, error) {
	d := &Deployment{
		ID:              r.ID,
		DeploymentID:    r.DeploymentID,
		ProjectID:       r.ProjectID,
		CreatedByUserID: r.CreatedByUserID,
		DeploymentGroup: r.DeploymentGroup,
		Status:          statemachine.Status(r.Status),
		Image:           r.Image,
		ImageDigest:     r.ImageDigest,
		HTTPPort:        r.HTTPPort,
		ErrorMessage:    r.ErrorMessage,
		NeedsReconcile:  r.NeedsReconcile,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ExpiresAt.Valid {
		d.ExpiresAt = &r.ExpiresAt.Time
	}
	if r.DeployingStartedAt.Valid {
		d.DeployingStartedAt = &r.DeployingStartedAt.Time
	}
	if r.CompletedAt.Valid {
		d.CompletedAt = &r.CompletedAt.Time
	}
	if r.TerminationReason.Valid {
		d.TerminationReason = statemachine.TerminationReason(r.TerminationReason.String)
	}
	if len(r.ControllerMetadata) > 0 {
		if err := json.Unmarshal(r.ControllerMetadata, &d.ControllerMetadata); err != nil {
			return nil, riseerrors.ParseError("controller_metadata", "json", err)
		}
	}
	return d, nil
}

const deploymentColumns = `id, deployment_id, project_id, created_by_user_id, deployment_group,
	status, image, image_digest, http_port, expires_at, deploying_started_at,
	controller_metadata, error_message, completed_at, termination_reason,
	needs_reconcile, created_at, updated_at`

func (s *PostgresStore) CreateDeployment(ctx context.Context, params CreateDeploymentParams) (*Deployment, error) {
	defer s.observe("create_deployment", time.Now())

	deploymentID := time.Now().UTC().Format("20060102-150405")
	var out *Deployment

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		row := deploymentRow{}
		err := tx.GetContext(ctx, &row, `
			INSERT INTO deployments (
				deployment_id, project_id, created_by_user_id, deployment_group,
				image, image_digest, http_port, expires_at, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'Pending')
			RETURNING `+deploymentColumns,
			deploymentID, params.ProjectID, params.CreatedByUserID, params.DeploymentGroup,
			params.Image, params.ImageDigest, params.HTTPPort, params.ExpiresAt,
		)
		if err != nil {
			return err
		}

		for _, ev := range params.EnvVars {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO deployment_env_vars (deployment_id, key, value, is_secret, is_protected)
				VALUES ($1, $2, $3, $4, $5)`,
				row.ID, ev.Key, ev.Value, ev.IsSecret, ev.IsProtected,
			); err != nil {
				return err
			}
		}

		out, err = row.toDomain()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetDeployment(ctx context.Context, id uuid.UUID) (*Deployment, error) {
	defer s.observe("get_deployment", time.Now())

	var row deploymentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, riseerrors.NewDeploymentNotFound(id.String())
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return row.toDomain()
}

func (s *PostgresStore) GetDeploymentByDeploymentID(ctx context.Context, projectID uuid.UUID, deploymentID string) (*Deployment, error) {
	defer s.observe("get_deployment_by_deployment_id", time.Now())

	var row deploymentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+deploymentColumns+` FROM deployments WHERE project_id = $1 AND deployment_id = $2`, projectID, deploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, riseerrors.NewDeploymentNotFound(deploymentID)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return row.toDomain()
}

func (s *PostgresStore) ListDeployments(ctx context.Context, projectID uuid.UUID, group string) ([]*Deployment, error) {
	defer s.observe("list_deployments", time.Now())

	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE project_id = $1`
	args := []interface{}{projectID}
	if group != "" {
		query += ` AND deployment_group = $2`
		args = append(args, group)
	}
	query += ` ORDER BY created_at DESC`

	var rows []deploymentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

func (s *PostgresStore) FindNonTerminal(ctx context.Context, limit int) ([]*Deployment, error) {
	defer s.observe("find_non_terminal", time.Now())
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+deploymentColumns+` FROM deployments
		WHERE status IN ('Pushed', 'Deploying')
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

func (s *PostgresStore) FindNeedingReconcile(ctx context.Context, limit int) ([]*Deployment, error) {
	defer s.observe("find_needing_reconcile", time.Now())
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+deploymentColumns+` FROM deployments
		WHERE needs_reconcile = true AND status IN ('Healthy', 'Unhealthy')
		ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

func (s *PostgresStore) FindByStatus(ctx context.Context, status statemachine.Status) ([]*Deployment, error) {
	defer s.observe("find_by_status", time.Now())
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+deploymentColumns+` FROM deployments WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

func (s *PostgresStore) FindStuckPrePushedBefore(ctx context.Context, before time.Time, limit int) ([]*Deployment, error) {
	defer s.observe("find_stuck_pre_pushed_before", time.Now())
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+deploymentColumns+` FROM deployments
		WHERE status IN ('Pending', 'Building', 'Pushing') AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`, before, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

func (s *PostgresStore) FindActiveFor(ctx context.Context, projectID uuid.UUID, group string) (*Deployment, error) {
	defer s.observe("find_active_for", time.Now())
	var row deploymentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+prefixColumns("d", deploymentColumns)+` FROM project_active_deployments pad
		JOIN deployments d ON d.id = pad.deployment_id
		WHERE pad.project_id = $1 AND pad.deployment_group = $2`, projectID, group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return row.toDomain()
}

func (s *PostgresStore) FindExpired(ctx context.Context, limit int) ([]*Deployment, error) {
	defer s.observe("find_expired", time.Now())
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+deploymentColumns+` FROM deployments
		WHERE expires_at IS NOT NULL AND expires_at <= now()
		AND status NOT IN ('Cancelled', 'Stopped', 'Superseded', 'Failed', 'Expired')
		ORDER BY expires_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	return toDomainSlice(rows)
}

// UpdateStatus is the only transition entry point that enforces the state
// machine: it fails with an IllegalTransition error if newStatus is not
// reachable from the row's current status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus statemachine.Status) error {
	defer s.observe("update_status", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current string
		if err := tx.GetContext(ctx, &current, `SELECT status FROM deployments WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return riseerrors.NewDeploymentNotFound(id.String())
			}
			return err
		}
		if !statemachine.CanTransition(statemachine.Status(current), newStatus) {
			return riseerrors.NewIllegalTransition(statemachine.Status(current), newStatus)
		}
		return s.writeStatusTx(ctx, tx, id, newStatus)
	})
}

// writeStatusTx is the shared primitive every Mark* helper builds on: it
// writes the new status plus deploying_started_at bookkeeping unconditionally.
// The Mark* family represents the controller recording an outcome it has
// already observed (a health check failing, a build timing out, a row it
// just moved to Healthy getting promoted to active) rather than requesting a
// transition, so it does not re-validate against the state machine — only
// UpdateStatus does that.
func (s *PostgresStore) writeStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, newStatus statemachine.Status) error {
	setDeployingStart := newStatus == statemachine.Deploying

	res, err := tx.ExecContext(ctx, `
		UPDATE deployments SET status = $1, updated_at = now(),
			deploying_started_at = CASE WHEN $2 THEN now() ELSE deploying_started_at END
		WHERE id = $3`, string(newStatus), setDeployingStart, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return riseerrors.NewDeploymentNotFound(id.String())
	}
	return nil
}

func (s *PostgresStore) MarkTerminating(ctx context.Context, id uuid.UUID, reason statemachine.TerminationReason) error {
	defer s.observe("mark_terminating", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.writeStatusTx(ctx, tx, id, statemachine.Terminating); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE deployments SET termination_reason = $1 WHERE id = $2`, string(reason), id)
		return err
	})
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	defer s.observe("mark_failed", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.writeStatusTx(ctx, tx, id, statemachine.Failed); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE deployments SET error_message = $1, completed_at = now() WHERE id = $2`, msg, id)
		return err
	})
}

func (s *PostgresStore) MarkHealthy(ctx context.Context, id uuid.UUID) error {
	defer s.observe("mark_healthy", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.writeStatusTx(ctx, tx, id, statemachine.Healthy)
	})
}

func (s *PostgresStore) MarkUnhealthy(ctx context.Context, id uuid.UUID, msg string) error {
	defer s.observe("mark_unhealthy", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.writeStatusTx(ctx, tx, id, statemachine.Unhealthy); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE deployments SET error_message = $1 WHERE id = $2`, msg, id)
		return err
	})
}

func (s *PostgresStore) markTerminal(ctx context.Context, id uuid.UUID, status statemachine.Status) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.writeStatusTx(ctx, tx, id, status); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE deployments SET completed_at = now() WHERE id = $1 AND completed_at IS NULL`, id)
		return err
	})
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	defer s.observe("mark_cancelled", time.Now())
	return s.markTerminal(ctx, id, statemachine.Cancelled)
}

func (s *PostgresStore) MarkStopped(ctx context.Context, id uuid.UUID) error {
	defer s.observe("mark_stopped", time.Now())
	return s.markTerminal(ctx, id, statemachine.Stopped)
}

func (s *PostgresStore) MarkSuperseded(ctx context.Context, id uuid.UUID) error {
	defer s.observe("mark_superseded", time.Now())
	return s.markTerminal(ctx, id, statemachine.Superseded)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id uuid.UUID) error {
	defer s.observe("mark_expired", time.Now())
	return s.markTerminal(ctx, id, statemachine.Expired)
}

func (s *PostgresStore) MarkAsActive(ctx context.Context, deploymentID, projectID uuid.UUID, group string) error {
	defer s.observe("mark_as_active", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_active_deployments (project_id, deployment_group, deployment_id, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (project_id, deployment_group)
			DO UPDATE SET deployment_id = EXCLUDED.deployment_id, updated_at = now()`,
			projectID, group, deploymentID)
		return err
	})
}

func (s *PostgresStore) ClearActiveIfMatches(ctx context.Context, projectID uuid.UUID, group string, deploymentID uuid.UUID) error {
	defer s.observe("clear_active_if_matches", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM project_active_deployments
			WHERE project_id = $1 AND deployment_group = $2 AND deployment_id = $3`,
			projectID, group, deploymentID)
		return err
	})
}

func (s *PostgresStore) ClearNeedsReconcile(ctx context.Context, id uuid.UUID) error {
	defer s.observe("clear_needs_reconcile", time.Now())
	_, err := s.db.ExecContext(ctx, `UPDATE deployments SET needs_reconcile = false, updated_at = now() WHERE id = $1`, id)
	return mapPgError(err)
}

func (s *PostgresStore) UpdateControllerMetadata(ctx context.Context, id uuid.UUID, blob map[string]interface{}) error {
	defer s.observe("update_controller_metadata", time.Now())
	encoded, err := json.Marshal(blob)
	if err != nil {
		return riseerrors.ParseError("controller_metadata", "json", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE deployments SET controller_metadata = $1, updated_at = now() WHERE id = $2`, encoded, id)
	return mapPgError(err)
}

type projectRow struct {
	ID               uuid.UUID      `db:"id"`
	Name             string         `db:"name"`
	Visibility       string         `db:"visibility"`
	OwnerUserID       uuid.NullUUID  `db:"owner_user_id"`
	OwnerTeamID       uuid.NullUUID  `db:"owner_team_id"`
	CalculatedStatus string         `db:"calculated_status"`
	Finalizers       []string       `db:"finalizers"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r projectRow) toDomain() *Project {
	p := &Project{
		ID:               r.ID,
		Name:             r.Name,
		Visibility:       Visibility(r.Visibility),
		CalculatedStatus: ProjectStatus(r.CalculatedStatus),
		Finalizers:       r.Finalizers,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.OwnerUserID.Valid {
		p.OwnerUserID = &r.OwnerUserID.UUID
	}
	if r.OwnerTeamID.Valid {
		p.OwnerTeamID = &r.OwnerTeamID.UUID
	}
	return p
}

const projectColumns = `id, name, visibility, owner_user_id, owner_team_id, calculated_status, finalizers, created_at, updated_at`

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	defer s.observe("get_project", time.Now())
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, riseerrors.FailedTo("find project", sql.ErrNoRows)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	defer s.observe("get_project_by_name", time.Now())
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT `+projectColumns+` FROM projects WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, riseerrors.FailedTo("find project", sql.ErrNoRows)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return row.toDomain(), nil
}

// RecomputeProjectStatus implements I4: project calculated status is a
// pure function of its deployments' current statuses, never written
// directly by handlers.
func (s *PostgresStore) RecomputeProjectStatus(ctx context.Context, projectID uuid.UUID) error {
	defer s.observe("recompute_project_status", time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var statuses []string
		if err := tx.SelectContext(ctx, &statuses, `SELECT status FROM deployments WHERE project_id = $1`, projectID); err != nil {
			return err
		}

		computed := string(computeProjectStatus(statuses))
		_, err := tx.ExecContext(ctx, `UPDATE projects SET calculated_status = $1, updated_at = now() WHERE id = $2`, computed, projectID)
		return err
	})
}

// computeProjectStatus is the pure function behind I4/P3: it never
// reads or writes any row, only the statuses passed to it.
func computeProjectStatus(statuses []string) ProjectStatus {
	if len(statuses) == 0 {
		return ProjectStopped
	}
	hasHealthy, hasInProgress, hasFailed := false, false, false
	for _, raw := range statuses {
		st := statemachine.Status(raw)
		switch {
		case st == statemachine.Healthy:
			hasHealthy = true
		case statemachine.IsInProgress(st):
			hasInProgress = true
		case st == statemachine.Failed:
			hasFailed = true
		}
	}
	switch {
	case hasInProgress:
		return ProjectDeploying
	case hasHealthy:
		return ProjectRunning
	case hasFailed:
		return ProjectFailed
	default:
		return ProjectStopped
	}
}

type customDomainRow struct {
	Hostname  string `db:"hostname"`
	IsPrimary bool   `db:"is_primary"`
	Verified  bool   `db:"verified"`
}

func (s *PostgresStore) GetProjectCustomDomains(ctx context.Context, projectID uuid.UUID) ([]CustomDomain, error) {
	defer s.observe("get_project_custom_domains", time.Now())
	var rows []customDomainRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT hostname, is_primary, verified FROM custom_domains WHERE project_id = $1 ORDER BY hostname`, projectID); err != nil {
		return nil, mapPgError(err)
	}
	out := make([]CustomDomain, 0, len(rows))
	for _, r := range rows {
		out = append(out, CustomDomain{Hostname: r.Hostname, Primary: r.IsPrimary, Verified: r.Verified})
	}
	return out, nil
}

type envVarRow struct {
	Key         string `db:"key"`
	Value       string `db:"value"`
	IsSecret    bool   `db:"is_secret"`
	IsProtected bool   `db:"is_protected"`
}

func (s *PostgresStore) GetDeploymentEnvVars(ctx context.Context, deploymentID uuid.UUID) ([]EnvVar, error) {
	defer s.observe("get_deployment_env_vars", time.Now())
	var rows []envVarRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value, is_secret, is_protected FROM deployment_env_vars WHERE deployment_id = $1 ORDER BY key`, deploymentID); err != nil {
		return nil, mapPgError(err)
	}
	return toEnvVars(rows), nil
}

func (s *PostgresStore) GetProjectEnvVars(ctx context.Context, projectID uuid.UUID) ([]EnvVar, error) {
	defer s.observe("get_project_env_vars", time.Now())
	var rows []envVarRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value, is_secret, is_protected FROM project_env_vars WHERE project_id = $1 ORDER BY key`, projectID); err != nil {
		return nil, mapPgError(err)
	}
	return toEnvVars(rows), nil
}

func toEnvVars(rows []envVarRow) []EnvVar {
	out := make([]EnvVar, 0, len(rows))
	for _, r := range rows {
		out = append(out, EnvVar{Key: r.Key, Value: r.Value, IsSecret: r.IsSecret, IsProtected: r.IsProtected})
	}
	return out
}

func toDomainSlice(rows []deploymentRow) ([]*Deployment, error) {
	out := make([]*Deployment, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// prefixColumns rewrites a comma-separated column list with an alias
// prefix, used when the same columns are selected through a join.
func prefixColumns(alias, columns string) string {
	return alias + "." + strings.ReplaceAll(columns, ", ", ", "+alias+".")
}
