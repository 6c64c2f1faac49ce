package repository

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql (migrations)

	"github.com/intelligence-arena/arena/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
)

// PostgresStore is the Repository backed by PostgreSQL. Entities are stored
// as JSONB documents alongside indexed scalar columns used for filtering;
// evaluations and division changes live in append-only tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, applies pending migrations, and returns
// a ready store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping repository: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// runMigrations applies all pending migrations using golang-migrate with
// the migration files embedded at compile time. A dedicated database/sql
// connection is opened for the migration pass and torn down with it, so
// the pgx pool never sees migration traffic.
func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "arena", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the database
	// driver, which closes the *sql.DB we are about to close via defer.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying pool for health reporting.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
		case pgCodeForeignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
		}
	}
	return err
}

// PutAgent inserts or updates an agent under optimistic concurrency.
func (s *PostgresStore) PutAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent id is required: %w", ErrInvalidInput)
	}
	next := agent.Clone()
	next.Version = agent.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}

	if agent.Version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO agents (id, division, elo_rating, active, version, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			next.ID, string(next.Division), next.EloRating, next.Active,
			next.Version, doc, next.CreatedAt, next.UpdatedAt)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("agent %s exists: %w", agent.ID, ErrStale)
		}
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE agents
			SET division = $2, elo_rating = $3, active = $4, version = $5,
			    doc = $6, updated_at = $7
			WHERE id = $1 AND version = $8`,
			next.ID, string(next.Division), next.EloRating, next.Active,
			next.Version, doc, next.UpdatedAt, agent.Version)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("agent %s version %d: %w", agent.ID, agent.Version, ErrStale)
		}
	}
	agent.Version = next.Version
	return nil
}

// GetAgent fetches one agent by id.
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM agents WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	var agent models.Agent
	if err := json.Unmarshal(doc, &agent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent %s: %w", id, err)
	}
	return &agent, nil
}

// ListAgents returns matching agents ordered by descending ELO rating.
func (s *PostgresStore) ListAgents(ctx context.Context, filter AgentFilter) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM agents
		WHERE ($1 = '' OR division = $1)
		  AND (NOT $2 OR active)
		ORDER BY elo_rating DESC, id`,
		string(filter.Division), filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		var agent models.Agent
		if err := json.Unmarshal(doc, &agent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
		}
		out = append(out, &agent)
	}
	return out, rows.Err()
}

// PutChallenge inserts or updates a challenge under optimistic concurrency.
func (s *PostgresStore) PutChallenge(ctx context.Context, challenge *models.Challenge) error {
	if challenge == nil || challenge.ID == "" {
		return fmt.Errorf("challenge id is required: %w", ErrInvalidInput)
	}
	next := challenge.Clone()
	next.Version = challenge.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if challenge.Version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO challenges (id, challenge_type, difficulty, retired, probation, version, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			next.ID, string(next.Type), string(next.Difficulty),
			next.Retired, next.Probation, next.Version, doc,
			next.CreatedAt, next.UpdatedAt)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("challenge %s exists: %w", challenge.ID, ErrStale)
		}
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE challenges
			SET challenge_type = $2, difficulty = $3, retired = $4,
			    probation = $5, version = $6, doc = $7, updated_at = $8
			WHERE id = $1 AND version = $9`,
			next.ID, string(next.Type), string(next.Difficulty),
			next.Retired, next.Probation, next.Version, doc,
			next.UpdatedAt, challenge.Version)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("challenge %s version %d: %w", challenge.ID, challenge.Version, ErrStale)
		}
	}
	challenge.Version = next.Version
	return nil
}

// GetChallenge fetches one challenge by id.
func (s *PostgresStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM challenges WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query challenge: %w", err)
	}
	var challenge models.Challenge
	if err := json.Unmarshal(doc, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge %s: %w", id, err)
	}
	return &challenge, nil
}

// ListChallenges returns matching challenges ordered by id.
func (s *PostgresStore) ListChallenges(ctx context.Context, filter ChallengeFilter) ([]*models.Challenge, error) {
	difficulties := make([]string, 0, len(filter.Difficulties))
	for _, d := range filter.Difficulties {
		difficulties = append(difficulties, string(d))
	}
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM challenges
		WHERE ($1 = '' OR challenge_type = $1)
		  AND (cardinality($2::text[]) = 0 OR difficulty = ANY($2))
		  AND (NOT $3 OR (NOT retired AND NOT probation))
		ORDER BY id`,
		string(filter.Type), difficulties, filter.Servable)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var out []*models.Challenge
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		var challenge models.Challenge
		if err := json.Unmarshal(doc, &challenge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
		}
		out = append(out, &challenge)
	}
	return out, rows.Err()
}

// PutMatch inserts or updates a match under optimistic concurrency.
func (s *PostgresStore) PutMatch(ctx context.Context, match *models.Match) error {
	if match == nil || match.ID == "" {
		return fmt.Errorf("match id is required: %w", ErrInvalidInput)
	}
	next := match.Clone()
	next.Version = match.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}

	if match.Version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO matches (id, status, match_type, division, agent1_id, agent2_id, challenge_id, version, doc, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING`,
			next.ID, string(next.Status), string(next.Type), string(next.Division),
			next.Agent1ID, next.Agent2ID, next.ChallengeID, next.Version, doc,
			next.CreatedAt)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("match %s exists: %w", match.ID, ErrStale)
		}
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE matches
			SET status = $2, version = $3, doc = $4
			WHERE id = $1 AND version = $5`,
			next.ID, string(next.Status), next.Version, doc, match.Version)
		if err != nil {
			return translatePgError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("match %s version %d: %w", match.ID, match.Version, ErrStale)
		}
	}
	match.Version = next.Version
	return nil
}

// GetMatch fetches one match by id.
func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM matches WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query match: %w", err)
	}
	var match models.Match
	if err := json.Unmarshal(doc, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match %s: %w", id, err)
	}
	return &match, nil
}

// ListMatches returns matching matches newest first, capped by filter.Limit.
func (s *PostgresStore) ListMatches(ctx context.Context, filter MatchFilter) ([]*models.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM matches
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR agent1_id = $2 OR agent2_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3::int, 0)`,
		string(filter.Status), filter.AgentID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []*models.Match
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		var match models.Match
		if err := json.Unmarshal(doc, &match); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match: %w", err)
		}
		out = append(out, &match)
	}
	return out, rows.Err()
}

// AppendEvaluation records one judge evaluation against the match.
func (s *PostgresStore) AppendEvaluation(ctx context.Context, matchID string, eval *models.JudgeEvaluation) error {
	if eval == nil {
		return fmt.Errorf("evaluation is required: %w", ErrInvalidInput)
	}
	doc, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO evaluations (match_id, judge_id, doc, created_at)
		VALUES ($1, $2, $3, now())`,
		matchID, eval.JudgeID, doc)
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

// AppendDivisionChange records one division transition against the agent.
func (s *PostgresStore) AppendDivisionChange(ctx context.Context, agentID string, change *models.DivisionChange) error {
	if change == nil {
		return fmt.Errorf("division change is required: %w", ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO division_changes (agent_id, from_division, to_division, reason, kind, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		agentID, string(change.From), string(change.To), change.Reason,
		string(change.Kind), change.Timestamp)
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

// DeleteMatch removes a match and its cascaded evaluations.
func (s *PostgresStore) DeleteMatch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, stdsql.ErrNoRows)
}
