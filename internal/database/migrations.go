package database

import (
	"context"
	"fmt"
)

// Constraint names referenced by the services when translating unique
// violations into domain errors.
const (
	ConstraintActiveRequest   = "uq_requests_active"
	ConstraintMemberPerCohort = "uq_team_members_cohort_user"
	ConstraintMemberPerTeam   = "uq_team_members_team_user"
	ConstraintThemePerTeam    = "uq_team_themes_team"
	ConstraintSupervisor      = "uq_theme_supervisors"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		global_role VARCHAR(50) NOT NULL DEFAULT 'user',
		role VARCHAR(20) NOT NULL DEFAULT 'student',
		cohort_key VARCHAR(100) NOT NULL DEFAULT '',
		eligible BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_cohort_key ON users(cohort_key)`,

	`CREATE TABLE IF NOT EXISTS phases (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		key VARCHAR(100) NOT NULL UNIQUE,
		kind VARCHAR(20) NOT NULL,
		cohort_key VARCHAR(100) NOT NULL,
		starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ends_at TIMESTAMP WITH TIME ZONE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT chk_phases_window CHECK (ends_at IS NULL OR ends_at > starts_at)
	)`,

	`CREATE TABLE IF NOT EXISTS teams (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		cohort_key VARCHAR(100) NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity > 0),
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_teams_cohort_key ON teams(cohort_key)`,

	`CREATE TABLE IF NOT EXISTS team_members (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		cohort_key VARCHAR(100) NOT NULL,
		role VARCHAR(50) NOT NULL DEFAULT 'member',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT uq_team_members_team_user UNIQUE (team_id, user_id),
		CONSTRAINT uq_team_members_cohort_user UNIQUE (cohort_key, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_team_members_team_id ON team_members(team_id)`,
	// One owner per team.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_team_members_owner ON team_members(team_id) WHERE role = 'owner'`,

	`CREATE TABLE IF NOT EXISTS themes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		title VARCHAR(255) NOT NULL,
		cohort_key VARCHAR(100) NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		max_groups INTEGER CHECK (max_groups IS NULL OR max_groups > 0),
		max_supervisors INTEGER NOT NULL DEFAULT 2 CHECK (max_supervisors > 0),
		proposed_by_team UUID REFERENCES teams(id) ON DELETE SET NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_themes_cohort_key ON themes(cohort_key)`,

	`CREATE TABLE IF NOT EXISTS theme_supervisors (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		theme_id UUID NOT NULL REFERENCES themes(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT uq_theme_supervisors UNIQUE (theme_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS team_themes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		theme_id UUID NOT NULL REFERENCES themes(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT uq_team_themes_team UNIQUE (team_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_team_themes_theme_id ON team_themes(theme_id)`,

	`CREATE TABLE IF NOT EXISTS requests (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		kind VARCHAR(30) NOT NULL,
		subject_id UUID NOT NULL,
		team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		theme_id UUID REFERENCES themes(id) ON DELETE CASCADE,
		initiator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		counterparty_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		responded_at TIMESTAMP WITH TIME ZONE
	)`,
	// At most one active request per (kind, subject, counterparty).
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_requests_active
		ON requests(kind, subject_id, counterparty_id)
		WHERE status IN ('pending', 'accepted')`,
	`CREATE INDEX IF NOT EXISTS idx_requests_counterparty_id ON requests(counterparty_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_initiator_id ON requests(initiator_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_team_id ON requests(team_id, status)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind VARCHAR(50) NOT NULL,
		content TEXT NOT NULL,
		priority VARCHAR(10) NOT NULL DEFAULT 'normal',
		related_kind VARCHAR(20) NOT NULL,
		related_id UUID,
		related_key VARCHAR(100),
		status VARCHAR(10) NOT NULL DEFAULT 'unread',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_status
		ON notifications(recipient_id, status, created_at DESC)`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
