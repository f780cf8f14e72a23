package sqlite

type appInfo struct {
	Key, Value string
}

type user struct {
	Username, Email, DisplayName, Locale string
}

type game struct {
	Code, Title, Description, Category string
	Active                             bool
}

type score struct {
	GameCode, Username string
	Score              int
}

type event struct {
	Username, GameCode, Type, Props string
}

var seedAppInfo = []appInfo{
	{"project_name", "gaming_database"},
	{"version", "1.0.0"},
	{"author", "MyGov Games Platform"},
	{"description", "SQLite store for users, games, leaderboards, analytics."},
}

var seedUsers = []user{
	{"alice", "alice@example.com", "Alice", "en"},
	{"bob", "bob@example.com", "Bob", "en"},
	{"chitra", "chitra@example.in", "Chitra", "hi"},
}

var seedGames = []game{
	{"quiz_master", "Quiz Master", "A general knowledge quiz game.", "quiz", true},
	{"civic_challenge", "Civic Challenge", "Learn about governance through mini challenges.", "education", true},
	{"swachh_run", "Swachh Run", "Endless runner promoting cleanliness awareness.", "arcade", true},
}

var seedScores = []score{
	{"quiz_master", "alice", 850},
	{"quiz_master", "bob", 920},
	{"civic_challenge", "alice", 1200},
	{"civic_challenge", "chitra", 1100},
	{"swachh_run", "bob", 3000},
}

var seedEvents = []event{
	{"alice", "quiz_master", "game_start", `{"difficulty":"medium"}`},
	{"bob", "quiz_master", "game_end", `{"score":920}`},
	{"chitra", "civic_challenge", "level_complete", `{"level":1}`},
}

const (
	upsertAppInfo = `INSERT INTO app_info (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	insertUser = `INSERT INTO users (username, email, display_name, locale)
SELECT ?, ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM users WHERE username = ? OR email = ?)`

	insertGame = `INSERT INTO games (code, title, description, category, is_active)
SELECT ?, ?, ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM games WHERE code = ?)`

	insertScore = `INSERT INTO game_scores (game_id, user_id, score)
SELECT g.id, u.id, ? FROM games g, users u
WHERE g.code = ? AND u.username = ?
AND NOT EXISTS (
    SELECT 1 FROM game_scores s WHERE s.game_id = g.id AND s.user_id = u.id AND s.score = ?
)`

	insertEvent = `INSERT INTO analytics_events (user_id, game_id, event_type, event_props)
SELECT u.id, g.id, ?, ? FROM users u, games g
WHERE u.username = ? AND g.code = ?
AND NOT EXISTS (
    SELECT 1 FROM analytics_events e
    WHERE e.user_id = u.id AND e.game_id = g.id AND e.event_type = ? AND e.event_props = ?
)`
)
