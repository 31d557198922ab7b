package database

import (
	"database/sql"
	"time"
)

const defaultMessageLimit = 100

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (name, username, email, password_hash, phone, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, name, username, email",
		params.Name,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Phone,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Name,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(userId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, username, email, profile_picture, is_online FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.Username,
		&u.EmailAddress,
		&u.ProfilePicture,
		&u.IsOnline,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, username, email, password_hash, profile_picture FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.ProfilePicture,
	)

	return u, err
}

func (db *PgChatRepository) ListAccountsExcept(userId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, username, email, profile_picture, is_online, last_seen FROM users "+
			"WHERE id != $1 ORDER BY username",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.Id,
			&u.Name,
			&u.Username,
			&u.EmailAddress,
			&u.ProfilePicture,
			&u.IsOnline,
			&u.LastSeen,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgChatRepository) SetUserOnline(userId int, online bool) error {
	_, err := db.conn.Exec(
		"UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1",
		userId,
		online,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) SaveMessage(params SaveMessageParams) (int, error) {
	var (
		res *sql.Row
	)

	if params.GroupId != 0 {
		res = db.conn.QueryRow(
			"INSERT INTO messages (sender_id, group_id, content, delivered_at) "+
				"VALUES ($1, $2, $3, NOW()) RETURNING id",
			params.SenderId,
			params.GroupId,
			params.Content,
		)
	} else {
		res = db.conn.QueryRow(
			"INSERT INTO messages (sender_id, receiver_id, content, delivered_at) "+
				"VALUES ($1, $2, $3, NOW()) RETURNING id",
			params.SenderId,
			params.ReceiverId,
			params.Content,
		)
	}

	var id int
	err := res.Scan(&id)

	return id, err
}

const messageColumns = "m.id, m.sender_id, m.receiver_id, m.group_id, m.content, " +
	"m.timestamp, m.delivered_at, m.read_at, " +
	"s.username, s.name, s.profile_picture"

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var (
		m          Message
		receiverId sql.NullInt64
		groupId    sql.NullInt64
	)

	err := row.Scan(
		&m.Id,
		&m.SenderId,
		&receiverId,
		&groupId,
		&m.Content,
		&m.Timestamp,
		&m.DeliveredAt,
		&m.ReadAt,
		&m.SenderUsername,
		&m.SenderName,
		&m.SenderPicture,
	)
	if err != nil {
		return Message{}, err
	}

	m.ReceiverId = int(receiverId.Int64)
	m.GroupId = int(groupId.Int64)

	return m, nil
}

func (db *PgChatRepository) GetMessageByID(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN users s ON m.sender_id = s.id "+
			"WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetDirectMessages(userA, userB, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN users s ON m.sender_id = s.id "+
			"WHERE (m.sender_id = $1 AND m.receiver_id = $2) "+
			"OR (m.sender_id = $2 AND m.receiver_id = $1) "+
			"ORDER BY m.timestamp ASC LIMIT $3",
		userA,
		userB,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgChatRepository) GetGroupMessages(groupId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN users s ON m.sender_id = s.id "+
			"WHERE m.group_id = $1 "+
			"ORDER BY m.timestamp ASC LIMIT $2",
		groupId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkMessagesRead marks every unread direct message from senderId to
// readerId as read, returning the number of rows affected.
func (db *PgChatRepository) MarkMessagesRead(senderId, readerId int) (int, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET read_at = NOW() "+
			"WHERE sender_id = $1 AND receiver_id = $2 AND read_at IS NULL",
		senderId,
		readerId,
	)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	return int(affected), err
}

func (db *PgChatRepository) MarkGroupMessagesRead(groupId, readerId int) (int, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET read_at = NOW() "+
			"WHERE group_id = $1 AND sender_id != $2 AND read_at IS NULL",
		groupId,
		readerId,
	)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	return int(affected), err
}

func (db *PgChatRepository) UnreadCounts(userId int) (map[int]int, error) {
	rows, err := db.conn.Query(
		"SELECT sender_id, COUNT(*) FROM messages "+
			"WHERE receiver_id = $1 AND read_at IS NULL AND group_id IS NULL "+
			"GROUP BY sender_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCounts(rows)
}

func (db *PgChatRepository) GroupUnreadCounts(userId int) (map[int]int, error) {
	rows, err := db.conn.Query(
		"SELECT m.group_id, COUNT(*) FROM messages m "+
			"JOIN group_members gm ON m.group_id = gm.group_id "+
			"WHERE gm.user_id = $1 AND m.sender_id != $1 AND m.read_at IS NULL "+
			"GROUP BY m.group_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCounts(rows)
}

func collectCounts(rows *sql.Rows) (map[int]int, error) {
	counts := make(map[int]int)
	for rows.Next() {
		var id, count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}

	return counts, rows.Err()
}

func (db *PgChatRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Group{}, err
	}
	defer tx.Rollback()

	res := tx.QueryRow(
		"INSERT INTO groups (name, description, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, description, created_by, created_at",
		params.Name,
		params.Description,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var g Group
	if err := res.Scan(&g.Id, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt); err != nil {
		return Group{}, err
	}

	// the creator is always an admin member
	if _, err := tx.Exec(
		"INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)",
		g.Id,
		params.CreatedBy,
		RoleAdmin,
	); err != nil {
		return Group{}, err
	}

	if err := tx.Commit(); err != nil {
		return Group{}, err
	}

	g.MemberCount = 1
	return g, nil
}

func (db *PgChatRepository) GetGroupById(groupId int) (Group, error) {
	row := db.conn.QueryRow(
		"SELECT g.id, g.name, g.description, g.group_picture, g.created_by, g.created_at, "+
			"(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) "+
			"FROM groups g WHERE g.id = $1 LIMIT 1",
		groupId,
	)

	var g Group
	err := row.Scan(
		&g.Id,
		&g.Name,
		&g.Description,
		&g.GroupPicture,
		&g.CreatedBy,
		&g.CreatedAt,
		&g.MemberCount,
	)

	return g, err
}

func (db *PgChatRepository) ListGroupsForUser(userId int) ([]Group, error) {
	rows, err := db.conn.Query(
		"SELECT g.id, g.name, g.description, g.group_picture, g.created_by, g.created_at, "+
			"(SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) "+
			"FROM groups g JOIN group_members gm ON g.id = gm.group_id "+
			"WHERE gm.user_id = $1 ORDER BY g.name",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(
			&g.Id,
			&g.Name,
			&g.Description,
			&g.GroupPicture,
			&g.CreatedBy,
			&g.CreatedAt,
			&g.MemberCount,
		); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (db *PgChatRepository) AddGroupMember(groupId, userId int, role string) error {
	_, err := db.conn.Exec(
		"INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)",
		groupId,
		userId,
		role,
	)

	return err
}

func (db *PgChatRepository) RemoveGroupMember(groupId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM group_members WHERE group_id = $1 AND user_id = $2",
		groupId,
		userId,
	)

	return err
}

func (db *PgChatRepository) GetGroupMembers(groupId int) ([]GroupMember, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.username, u.name, u.profile_picture, u.is_online, gm.role, gm.joined_at "+
			"FROM group_members gm JOIN users u ON gm.user_id = u.id "+
			"WHERE gm.group_id = $1 ORDER BY gm.joined_at",
		groupId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(
			&m.UserId,
			&m.Username,
			&m.Name,
			&m.ProfilePicture,
			&m.IsOnline,
			&m.Role,
			&m.JoinedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgChatRepository) GetUserRoleInGroup(groupId, userId int) (string, error) {
	row := db.conn.QueryRow(
		"SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2 LIMIT 1",
		groupId,
		userId,
	)

	var role string
	err := row.Scan(&role)

	return role, err
}

func (db *PgChatRepository) IsGroupMember(groupId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)",
		groupId,
		userId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}
