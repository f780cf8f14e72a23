package sqlite

// SchemaVersion is the version recorded in schema_migrations by InitSchema.
const SchemaVersion = "1"

// schemaStatements create the gaming schema. Every statement is
// IF NOT EXISTS so the list can be re-applied to an existing database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS app_info (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT UNIQUE NOT NULL,
    value TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    email TEXT UNIQUE NOT NULL,
    display_name TEXT,
    avatar_url TEXT,
    locale TEXT DEFAULT 'en',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
	`CREATE TABLE IF NOT EXISTS games (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    category TEXT,
    is_active INTEGER DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_games_code ON games(code)`,
	`CREATE INDEX IF NOT EXISTS idx_games_active ON games(is_active)`,
	`CREATE TABLE IF NOT EXISTS game_scores (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    score INTEGER NOT NULL,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE ON UPDATE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE ON UPDATE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_game_scores_game ON game_scores(game_id)`,
	`CREATE INDEX IF NOT EXISTS idx_game_scores_user ON game_scores(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_game_scores_created_at ON game_scores(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_game_scores_game_user_score_desc ON game_scores(game_id, user_id, score DESC)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER,
    game_id INTEGER,
    event_type TEXT NOT NULL,
    event_props TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL ON UPDATE CASCADE,
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE SET NULL ON UPDATE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_user ON analytics_events(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_game ON analytics_events(game_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
}

// readyTable must exist for the datastore to count as initialized.
const readyTable = "app_info"
