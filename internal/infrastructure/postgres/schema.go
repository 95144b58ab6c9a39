package postgres

import "context"

// schemaDDL creates the eight tables the pipeline persists to. Every
// conditional insert in the repositories targets one of these unique keys.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id          BIGSERIAL PRIMARY KEY,
	username    TEXT NOT NULL UNIQUE,
	password    TEXT NOT NULL,
	points      BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS games (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_login_records (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users(id),
	login_date  DATE NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, login_date)
);

CREATE TABLE IF NOT EXISTS user_game_launches (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users(id),
	game_id     BIGINT NOT NULL REFERENCES games(id),
	launch_date DATE NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, game_id, launch_date)
);

CREATE TABLE IF NOT EXISTS games_play_record (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE,
	user_id     BIGINT NOT NULL REFERENCES users(id),
	game_id     BIGINT NOT NULL REFERENCES games(id),
	score       INT NOT NULL,
	played_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS missions (
	id               BIGSERIAL PRIMARY KEY,
	user_id          BIGINT NOT NULL REFERENCES users(id),
	mission_type     TEXT NOT NULL,
	cycle_start_date DATE NOT NULL,
	is_completed     BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, mission_type, cycle_start_date)
);

CREATE TABLE IF NOT EXISTS mission_rewards (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT NOT NULL REFERENCES users(id),
	reward_type    TEXT NOT NULL,
	reward_period  TEXT NOT NULL,
	points         INT NOT NULL,
	distributed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, reward_type, reward_period)
);

CREATE TABLE IF NOT EXISTS message_outbox (
	id            BIGSERIAL PRIMARY KEY,
	event_id      TEXT NOT NULL UNIQUE,
	topic         TEXT NOT NULL,
	payload       BYTEA NOT NULL,
	event_type    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	retry_count   INT NOT NULL DEFAULT 0,
	max_retries   INT NOT NULL DEFAULT 10,
	next_retry_at TIMESTAMPTZ NOT NULL,
	last_error    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_outbox_due
	ON message_outbox (next_retry_at) WHERE status = 'PENDING';
`

const seedSQL = `
INSERT INTO games (name) VALUES
	('Stellar Drift'),
	('Dungeon Loop'),
	('Pixel Racer'),
	('Mech Arena'),
	('Frostbound')
ON CONFLICT (name) DO NOTHING;

INSERT INTO users (username, password) VALUES
	('alice', 'password123'),
	('bob', 'password123')
ON CONFLICT (username) DO NOTHING;
`

// EnsureSchema creates tables and seeds the static catalog. Idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, seedSQL)
	return err
}
