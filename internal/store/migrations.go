package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Raw asset bytes keyed by URL
		`CREATE TABLE IF NOT EXISTS assets (
			url TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			size INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL
		)`,

		// Session state transitions
		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			asset TEXT NOT NULL DEFAULT '',
			err_kind TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_fetched_at ON assets(fetched_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
