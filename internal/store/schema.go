package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS backends (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	credentials BLOB,
	settings BLOB,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	backend_id TEXT NOT NULL REFERENCES backends(id) ON DELETE CASCADE,
	remote_id TEXT,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	is_favorite INTEGER NOT NULL DEFAULT 0,
	is_inbox INTEGER NOT NULL DEFAULT 0,
	order_index INTEGER NOT NULL DEFAULT 0,
	parent_id TEXT,
	pending TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE (backend_id, remote_id),
	UNIQUE (backend_id, id),
	FOREIGN KEY (backend_id, parent_id) REFERENCES projects(backend_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sections (
	id TEXT PRIMARY KEY,
	backend_id TEXT NOT NULL REFERENCES backends(id) ON DELETE CASCADE,
	remote_id TEXT,
	name TEXT NOT NULL,
	project_id TEXT NOT NULL,
	order_index INTEGER NOT NULL DEFAULT 0,
	pending TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE (backend_id, remote_id),
	UNIQUE (backend_id, id),
	FOREIGN KEY (backend_id, project_id) REFERENCES projects(backend_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS labels (
	id TEXT PRIMARY KEY,
	backend_id TEXT NOT NULL REFERENCES backends(id) ON DELETE CASCADE,
	remote_id TEXT,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	order_index INTEGER NOT NULL DEFAULT 0,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	pending TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE (backend_id, remote_id),
	UNIQUE (backend_id, id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	backend_id TEXT NOT NULL REFERENCES backends(id) ON DELETE CASCADE,
	remote_id TEXT,
	project_id TEXT NOT NULL,
	section_id TEXT REFERENCES sections(id) ON DELETE SET NULL,
	parent_id TEXT,
	content TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 1,
	order_index INTEGER NOT NULL DEFAULT 0,
	due_date TEXT,
	due_datetime TEXT,
	is_recurring INTEGER NOT NULL DEFAULT 0,
	deadline TEXT,
	duration TEXT,
	is_completed INTEGER NOT NULL DEFAULT 0,
	pending TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE (backend_id, remote_id),
	UNIQUE (backend_id, id),
	FOREIGN KEY (backend_id, project_id) REFERENCES projects(backend_id, id) ON DELETE CASCADE,
	FOREIGN KEY (backend_id, parent_id) REFERENCES tasks(backend_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_labels (
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	label_id TEXT NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	PRIMARY KEY (task_id, label_id)
);

CREATE TABLE IF NOT EXISTS sync_state (
	backend_id TEXT NOT NULL REFERENCES backends(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	last_synced_at TEXT NOT NULL,
	PRIMARY KEY (backend_id, kind)
);

CREATE TABLE IF NOT EXISTS sync_locks (
	backend_id TEXT PRIMARY KEY REFERENCES backends(id) ON DELETE CASCADE,
	owner TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_parent ON projects(parent_id);
CREATE INDEX IF NOT EXISTS idx_sections_project ON sections(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_section ON tasks(section_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_tasks_pending ON tasks(backend_id, pending);
CREATE INDEX IF NOT EXISTS idx_task_labels_label ON task_labels(label_id);
`
