package database

import (
	"context"
	"database/sql"
)

// schema is applied statement by statement on startup.  Every statement is
// idempotent so restarts are safe.
//
// user_favorites has no foreign key to modules on purpose: a favorite only
// has to point at an existing module when it is written, and rows that go
// stale after a module is removed are left in place.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		username       VARCHAR(64)  NOT NULL,
		email          VARCHAR(255) NOT NULL,
		password_hash  VARCHAR(255) NULL,
		auth_method    ENUM('local','oauth') NOT NULL DEFAULT 'local',
		oauth_provider VARCHAR(32)  NULL,
		oauth_subject  VARCHAR(255) NULL,
		roles          JSON NOT NULL,
		interests      JSON NOT NULL,
		values_list    JSON NOT NULL,
		goals          JSON NOT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_oauth (oauth_provider, oauth_subject)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS modules (
		id                   BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		name                 VARCHAR(255) NOT NULL,
		short_description    TEXT NOT NULL,
		description          TEXT NOT NULL,
		content              TEXT NOT NULL,
		study_credit         INT NOT NULL DEFAULT 0,
		location             VARCHAR(128) NOT NULL DEFAULT '',
		contact_id           BIGINT NOT NULL DEFAULT 0,
		level                VARCHAR(64) NOT NULL DEFAULT '',
		learning_outcomes    TEXT NOT NULL,
		module_tags          TEXT NOT NULL,
		popularity_score     DOUBLE NOT NULL DEFAULT 0,
		estimated_difficulty DOUBLE NOT NULL DEFAULT 0,
		available_spots      INT NOT NULL DEFAULT 0,
		start_date           VARCHAR(32) NOT NULL DEFAULT '',
		KEY idx_modules_location (location),
		KEY idx_modules_credit (study_credit)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS user_favorites (
		user_id    BIGINT UNSIGNED NOT NULL,
		module_id  BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (user_id, module_id),
		CONSTRAINT fk_favorites_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables used by the repositories when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
