package store

// migration is a single versioned schema change.
type migration struct {
	version int
	sql     string
}

// migrations are applied in order; each runs at most once, tracked by
// the schema_version table.
var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS mail_accounts (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				credential_blob TEXT NOT NULL,
				last_sync TIMESTAMP,
				created_at TIMESTAMP NOT NULL
			);

			CREATE TABLE IF NOT EXISTS categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			);

			CREATE TABLE IF NOT EXISTS tasks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				category_id INTEGER NOT NULL REFERENCES categories(id),
				company_name TEXT NOT NULL,
				description TEXT NOT NULL,
				assigned_to TEXT,
				priority TEXT NOT NULL DEFAULT 'medium',
				progress TEXT NOT NULL DEFAULT 'not-started',
				due_date TIMESTAMP NOT NULL,
				created_by TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_category_company
				ON tasks(category_id, company_name);

			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY
			);

			INSERT INTO schema_version (version) VALUES (1);
		`,
	},
	{
		version: 2,
		sql: `
			INSERT OR IGNORE INTO categories (name) VALUES
				('Corporation Tax Returns'),
				('Self Assessments');

			INSERT INTO schema_version (version) VALUES (2);
		`,
	},
}
