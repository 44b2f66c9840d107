package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parlorchat/parlor-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	is_dm        BOOLEAN NOT NULL DEFAULT 0,
	creator_id   INTEGER,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (creator_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   INTEGER NOT NULL,
	user_id   INTEGER NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_user  INTEGER,
	to_room    TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (from_user) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(to_room, id DESC);
CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if needed) a SQLite store at dbPath and applies the
// schema. Use ":memory:" for tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func mapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password and optional display name.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, name string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, name)
		VALUES (?, ?, NULLIF(?, ''))
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, name)
	if err != nil {
		return nil, mapErr("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, `WHERE username = ?`, username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, COALESCE(name, ''), created_at
		FROM users ` + where
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Name,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, mapErr("query user", err)
	}

	return &user, nil
}

// GetUsersByUsernames resolves usernames to users; unknown names are returned separately.
func (s *SQLiteStore) GetUsersByUsernames(ctx context.Context, usernames []string) ([]*store.User, []string, error) {
	if len(usernames) == 0 {
		return nil, nil, nil
	}

	placeholders := strings.Repeat("?,", len(usernames))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(usernames))
	for _, u := range usernames {
		args = append(args, u)
	}

	query := `
		SELECT id, username, password_hash, COALESCE(name, ''), created_at
		FROM users
		WHERE username IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(usernames))
	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
		found[user.Username] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate users: %w", err)
	}

	var missing []string
	for _, name := range usernames {
		if _, ok := found[name]; !ok {
			missing = append(missing, name)
		}
	}

	return users, missing, nil
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]*store.User, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
		SELECT id, username, password_hash, COALESCE(name, ''), created_at
		FROM users
		WHERE username LIKE ?
		ORDER BY username
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// ==== RoomStore implementation ====

// CreateRoom creates a room with its initial member set. The creator is
// always stored as a member.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name, displayName string, isDM bool, creatorID *int64, memberIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (name, display_name, is_dm, creator_id)
		VALUES (?, ?, ?, ?)`,
		name, displayName, isDM, creatorID)
	if err != nil {
		return nil, mapErr("insert room", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	members := make(map[int64]struct{}, len(memberIDs)+1)
	for _, uid := range memberIDs {
		members[uid] = struct{}{}
	}
	if creatorID != nil {
		members[*creatorID] = struct{}{}
	}
	for uid := range members {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
			id, uid); err != nil {
			return nil, fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	return s.getRoom(ctx, `WHERE id = ?`, id)
}

// GetRoomByName retrieves a room by its unique name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	return s.getRoom(ctx, `WHERE name = ?`, name)
}

func (s *SQLiteStore) getRoom(ctx context.Context, where string, arg any) (*store.Room, error) {
	query := `
		SELECT id, name, display_name, is_dm, creator_id, created_at
		FROM rooms ` + where
	var room store.Room
	var creatorID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.Name,
		&room.DisplayName,
		&room.IsDM,
		&creatorID,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, mapErr("query room", err)
	}
	if creatorID.Valid {
		room.CreatorID = &creatorID.Int64
	}

	return &room, nil
}

// ListRoomsForUser lists rooms the user is a member of, newest first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.is_dm, r.creator_id, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC`
	return s.queryRooms(ctx, query, userID)
}

// SearchRooms finds joinable non-DM rooms by display name, excluding rooms the
// user already belongs to.
func (s *SQLiteStore) SearchRooms(ctx context.Context, excludeUserID int64, query string, limit int) ([]*store.Room, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
		SELECT r.id, r.name, r.display_name, r.is_dm, r.creator_id, r.created_at
		FROM rooms r
		WHERE r.is_dm = 0
		  AND r.display_name LIKE ?
		  AND r.id NOT IN (SELECT room_id FROM room_members WHERE user_id = ?)
		ORDER BY r.display_name
		LIMIT ?`
	return s.queryRooms(ctx, q, "%"+query+"%", excludeUserID, limit)
}

func (s *SQLiteStore) queryRooms(ctx context.Context, query string, args ...any) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*store.Room, 0)
	for rows.Next() {
		var room store.Room
		var creatorID sql.NullInt64
		if err := rows.Scan(&room.ID, &room.Name, &room.DisplayName, &room.IsDM, &creatorID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if creatorID.Valid {
			room.CreatorID = &creatorID.Int64
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

// AddMembers adds users to a room, skipping existing members.
func (s *SQLiteStore) AddMembers(ctx context.Context, roomID int64, userIDs []int64) error {
	for _, uid := range userIDs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
			roomID, uid); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return nil
}

// RemoveMembers removes users from a room.
func (s *SQLiteStore) RemoveMembers(ctx context.Context, roomID int64, userIDs []int64) error {
	for _, uid := range userIDs {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM room_members WHERE room_id = ? AND user_id = ?`,
			roomID, uid); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
	}
	return nil
}

// IsMember reports whether the user is in the room's member set.
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMemberIDs lists the room's member user IDs.
func (s *SQLiteStore) ListMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM room_members WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRoom removes the room and its membership rows.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete room: %w", store.ErrNotFound)
	}

	return tx.Commit()
}

// ==== MessageStore implementation ====

// AppendMessage durably inserts a message and returns the stored record.
func (s *SQLiteStore) AppendMessage(ctx context.Context, fromID *int64, room, text string) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (from_user, to_room, text) VALUES (?, ?, ?)`,
		fromID, room, text)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessage(ctx, id)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.from_user, m.to_room, m.text, m.created_at,
		       COALESCE(u.username, ''), COALESCE(u.name, u.username, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.from_user
		WHERE m.id = ?`
	var msg store.Message
	var fromID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&fromID,
		&msg.Room,
		&msg.Text,
		&msg.CreatedAt,
		&msg.FromUsername,
		&msg.FromName,
	)
	if err != nil {
		return nil, mapErr("query message", err)
	}
	if fromID.Valid {
		msg.FromID = &fromID.Int64
	}

	return &msg, nil
}

// ListMessages returns the newest `limit` messages for a room, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, from_user, to_room, text, created_at, username, name FROM (
			SELECT m.id, m.from_user, m.to_room, m.text, m.created_at,
			       COALESCE(u.username, '') AS username,
			       COALESCE(u.name, u.username, '') AS name
			FROM messages m
			LEFT JOIN users u ON u.id = m.from_user
			WHERE m.to_room = ?
			ORDER BY m.id DESC
			LIMIT ?
		) ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		var fromID sql.NullInt64
		if err := rows.Scan(&msg.ID, &fromID, &msg.Room, &msg.Text, &msg.CreatedAt, &msg.FromUsername, &msg.FromName); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if fromID.Valid {
			msg.FromID = &fromID.Int64
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
