package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
)

type migration struct {
	version int
	name    string
	sqlite  []string
	mysql   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create catalog",
		sqlite: []string{
			`CREATE TABLE locations (
				id          TEXT PRIMARY KEY NOT NULL,
				venue_name  TEXT NOT NULL DEFAULT '',
				address     TEXT NOT NULL DEFAULT '',
				country     TEXT NOT NULL DEFAULT '',
				state       TEXT NOT NULL DEFAULT '',
				postal_code TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE events (
				id          TEXT PRIMARY KEY NOT NULL,
				name        TEXT NOT NULL,
				starts_at   DATETIME NOT NULL,
				event_type  TEXT NOT NULL DEFAULT '',
				location_id TEXT NOT NULL REFERENCES locations (id)
			)`,
			`CREATE INDEX idx_events_starts_at ON events (starts_at)`,
			`CREATE TABLE images (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				url         TEXT NOT NULL,
				ratio       TEXT NOT NULL DEFAULT '',
				width       INTEGER NOT NULL DEFAULT 0,
				height      INTEGER NOT NULL DEFAULT 0,
				event_id    TEXT NULL REFERENCES events (id) ON DELETE CASCADE,
				location_id TEXT NULL REFERENCES locations (id) ON DELETE CASCADE
			)`,
			`CREATE TABLE ticket_categories (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id        TEXT NOT NULL REFERENCES events (id),
				name            TEXT NOT NULL,
				price           TEXT NOT NULL,
				capacity        INTEGER NOT NULL CHECK (capacity >= 0),
				seats_available INTEGER NOT NULL CHECK (seats_available >= 0),
				last_seat_no    INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_ticket_categories_event ON ticket_categories (event_id)`,
		},
		mysql: []string{
			`CREATE TABLE locations (
				id          VARCHAR(64) NOT NULL PRIMARY KEY,
				venue_name  VARCHAR(255) NOT NULL DEFAULT '',
				address     VARCHAR(255) NOT NULL DEFAULT '',
				country     VARCHAR(128) NOT NULL DEFAULT '',
				state       VARCHAR(128) NOT NULL DEFAULT '',
				postal_code VARCHAR(32) NOT NULL DEFAULT '',
				description TEXT NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE events (
				id          VARCHAR(64) NOT NULL PRIMARY KEY,
				name        VARCHAR(255) NOT NULL,
				starts_at   DATETIME(6) NOT NULL,
				event_type  VARCHAR(128) NOT NULL DEFAULT '',
				location_id VARCHAR(64) NOT NULL,
				INDEX idx_events_starts_at (starts_at),
				CONSTRAINT fk_events_location FOREIGN KEY (location_id) REFERENCES locations (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE images (
				id          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				url         VARCHAR(1024) NOT NULL,
				ratio       VARCHAR(16) NOT NULL DEFAULT '',
				width       INT NOT NULL DEFAULT 0,
				height      INT NOT NULL DEFAULT 0,
				event_id    VARCHAR(64) NULL,
				location_id VARCHAR(64) NULL,
				CONSTRAINT fk_images_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE,
				CONSTRAINT fk_images_location FOREIGN KEY (location_id) REFERENCES locations (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE ticket_categories (
				id              BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				event_id        VARCHAR(64) NOT NULL,
				name            VARCHAR(255) NOT NULL,
				price           DECIMAL(12,2) NOT NULL,
				capacity        INT NOT NULL,
				seats_available INT NOT NULL,
				last_seat_no    INT NOT NULL DEFAULT 0,
				INDEX idx_ticket_categories_event (event_id),
				CONSTRAINT chk_seats_available CHECK (seats_available >= 0),
				CONSTRAINT fk_categories_event FOREIGN KEY (event_id) REFERENCES events (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		version: 2,
		name:    "create sales",
		sqlite: []string{
			`CREATE TABLE payment_methods (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id          TEXT NOT NULL UNIQUE,
				card_last4       TEXT NOT NULL,
				card_type        TEXT NOT NULL DEFAULT '',
				cvv_hash         TEXT NOT NULL,
				expires_at       DATETIME NOT NULL,
				billing_address  TEXT NOT NULL DEFAULT '',
				card_holder_name TEXT NOT NULL,
				updated_at       DATETIME NOT NULL
			)`,
			`CREATE TABLE transactions (
				id                INTEGER PRIMARY KEY AUTOINCREMENT,
				reference         TEXT NOT NULL UNIQUE,
				user_id           TEXT NOT NULL,
				payment_method_id INTEGER NOT NULL REFERENCES payment_methods (id),
				amount            TEXT NOT NULL,
				status            TEXT NOT NULL,
				created_at        DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_transactions_user ON transactions (user_id, created_at)`,
			`CREATE TABLE tickets (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				category_id    INTEGER NOT NULL REFERENCES ticket_categories (id),
				event_id       TEXT NOT NULL REFERENCES events (id),
				transaction_id INTEGER NOT NULL REFERENCES transactions (id),
				seat_no        INTEGER NOT NULL,
				status         TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX idx_tickets_category_seat ON tickets (category_id, seat_no)`,
			`CREATE INDEX idx_tickets_transaction ON tickets (transaction_id)`,
		},
		mysql: []string{
			`CREATE TABLE payment_methods (
				id               BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				user_id          VARCHAR(64) NOT NULL,
				card_last4       VARCHAR(4) NOT NULL,
				card_type        VARCHAR(32) NOT NULL DEFAULT '',
				cvv_hash         VARCHAR(255) NOT NULL,
				expires_at       DATETIME(6) NOT NULL,
				billing_address  VARCHAR(255) NOT NULL DEFAULT '',
				card_holder_name VARCHAR(255) NOT NULL,
				updated_at       DATETIME(6) NOT NULL,
				UNIQUE KEY uq_payment_methods_user (user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE transactions (
				id                BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				reference         CHAR(36) NOT NULL,
				user_id           VARCHAR(64) NOT NULL,
				payment_method_id BIGINT NOT NULL,
				amount            DECIMAL(12,2) NOT NULL,
				status            VARCHAR(16) NOT NULL,
				created_at        DATETIME(6) NOT NULL,
				UNIQUE KEY uq_transactions_reference (reference),
				INDEX idx_transactions_user (user_id, created_at),
				CONSTRAINT fk_transactions_payment FOREIGN KEY (payment_method_id) REFERENCES payment_methods (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE tickets (
				id             BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				category_id    BIGINT NOT NULL,
				event_id       VARCHAR(64) NOT NULL,
				transaction_id BIGINT NOT NULL,
				seat_no        INT NOT NULL,
				status         VARCHAR(16) NOT NULL,
				UNIQUE KEY uq_tickets_category_seat (category_id, seat_no),
				INDEX idx_tickets_transaction (transaction_id),
				CONSTRAINT fk_tickets_category FOREIGN KEY (category_id) REFERENCES ticket_categories (id),
				CONSTRAINT fk_tickets_event FOREIGN KEY (event_id) REFERENCES events (id),
				CONSTRAINT fk_tickets_transaction FOREIGN KEY (transaction_id) REFERENCES transactions (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		version: 3,
		name:    "create queue",
		sqlite: []string{
			`CREATE TABLE queue_entries (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id          TEXT NOT NULL,
				event_id         TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
				status           TEXT NOT NULL,
				created_at       DATETIME NOT NULL,
				admitted_at      DATETIME NULL,
				lease_expires_at DATETIME NULL
			)`,
			`CREATE UNIQUE INDEX idx_queue_user_event ON queue_entries (user_id, event_id)`,
			`CREATE INDEX idx_queue_event_status ON queue_entries (event_id, status, id)`,
		},
		mysql: []string{
			`CREATE TABLE queue_entries (
				id               BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				user_id          VARCHAR(64) NOT NULL,
				event_id         VARCHAR(64) NOT NULL,
				status           VARCHAR(16) NOT NULL,
				created_at       DATETIME(6) NOT NULL,
				admitted_at      DATETIME(6) NULL,
				lease_expires_at DATETIME(6) NULL,
				UNIQUE KEY uq_queue_user_event (user_id, event_id),
				INDEX idx_queue_event_status (event_id, status, id),
				CONSTRAINT fk_queue_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
}

// Migrate applies every schema version the database has not seen yet.
func (s *Store) Migrate(ctx context.Context) error {
	create := `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY NOT NULL, applied_at DATETIME NOT NULL)`
	if s.dialect == DialectMySQL {
		create = `CREATE TABLE IF NOT EXISTS schema_migrations (version INT NOT NULL PRIMARY KEY, applied_at DATETIME(6) NOT NULL) ENGINE=InnoDB`
	}
	if _, err := s.db.NewQuery(create).WithContext(ctx).Execute(); err != nil {
		return storageErr("create schema_migrations", err)
	}

	var applied []int
	if err := s.db.NewQuery("SELECT version FROM schema_migrations").WithContext(ctx).Column(&applied); err != nil {
		return storageErr("read schema_migrations", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}

		stmts := m.sqlite
		if s.dialect == DialectMySQL {
			stmts = m.mysql
		}

		err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
					return err
				}
			}
			_, err := tx.Insert("schema_migrations", dbx.Params{
				"version":    m.version,
				"applied_at": now(),
			}).WithContext(ctx).Execute()
			return err
		})
		if err != nil {
			return storageErr(fmt.Sprintf("migration %d (%s)", m.version, m.name), err)
		}

		s.logger.Info("applied schema migration", "version", m.version, "name", m.name)
	}

	return nil
}
