package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parley-im/parley/internal/database"
	"github.com/parley-im/parley/internal/server"
	"github.com/parley-im/parley/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AddMemberRequest struct {
	UserId int    `json:"user_id"`
	Role   string `json:"role"`
}

type UnreadCountsResponse struct {
	Direct map[int]int `json:"direct"`
	Groups map[int]int `json:"groups"`
}

const defaultHistoryLimit = 50

func userFromRow(u database.User) types.User {
	user := types.User{
		Id:             u.Id,
		Name:           u.Name,
		Username:       u.Username,
		EmailAddress:   u.EmailAddress,
		ProfilePicture: u.ProfilePicture,
		IsOnline:       u.IsOnline,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if u.LastSeen.Valid {
		user.LastSeen = u.LastSeen.Time
	}

	return user
}

func groupFromRow(g database.Group) types.Group {
	return types.Group{
		Id:           g.Id,
		Name:         g.Name,
		Description:  g.Description,
		GroupPicture: g.GroupPicture,
		CreatedBy:    g.CreatedBy,
		MemberCount:  g.MemberCount,
		CreatedAt:    g.CreatedAt,
	}
}

func memberFromRow(m database.GroupMember) types.GroupMember {
	return types.GroupMember{
		User: types.User{
			Id:             m.UserId,
			Name:           m.Name,
			Username:       m.Username,
			ProfilePicture: m.ProfilePicture,
			IsOnline:       m.IsOnline,
		},
		Role:     m.Role,
		JoinedAt: m.JoinedAt,
	}
}

func messageFromRow(m database.Message) types.Message {
	return types.Message{
		Id:             m.Id,
		SenderId:       m.SenderId,
		ReceiverId:     m.ReceiverId,
		GroupId:        m.GroupId,
		Content:        m.Content,
		Status:         m.Status(),
		SenderUsername: m.SenderUsername,
		SenderName:     m.SenderName,
		SenderPicture:  m.SenderPicture,
		Timestamp:      m.Timestamp,
	}
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewValidationError("username, email and password are required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Name:         req.Name,
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
		Phone:        req.Phone,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		if database.IsUniqueViolation(err) {
			errResp := NewConflictError("username or email already taken")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userFromRow(newUser))
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := userFromRow(dbUser)

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *ChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, userFromRow(user))
}

func (s *ChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// listUsers returns every other account for the contact list. Persisted
// presence is included; the live flip arrives over the socket.
func (s *ChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.ListAccountsExcept(userId)
	if err != nil {
		s.log.Println("list users:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *ChatApp) createGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewValidationError("group name is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.db.CreateGroup(database.CreateGroupParams{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userId,
	})
	if err != nil {
		s.log.Println("create group:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, groupFromRow(group))
}

func (s *ChatApp) listGroups(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.ListGroupsForUser(userId)
	if err != nil {
		s.log.Println("list groups:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groups := make([]types.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, groupFromRow(row))
	}

	s.writeJson(w, http.StatusOK, groups)
}

func (s *ChatApp) groupIdFromPath(r *http.Request) (int, *ApiError) {
	groupId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || groupId <= 0 {
		return 0, NewBadRequestError()
	}

	return groupId, nil
}

func (s *ChatApp) getGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId, errResp := s.groupIdFromPath(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.IsGroupMember(groupId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.db.GetGroupById(groupId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, groupFromRow(group))
}

func (s *ChatApp) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId, errResp := s.groupIdFromPath(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.IsGroupMember(groupId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.GetGroupMembers(groupId)
	if err != nil {
		s.log.Println("list group members:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members := make([]types.GroupMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, memberFromRow(row))
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *ChatApp) addGroupMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId, errResp := s.groupIdFromPath(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.db.GetUserRoleInGroup(groupId, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewForbiddenError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if role != database.RoleAdmin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRole := req.Role
	if newRole == "" {
		newRole = database.RoleMember
	}
	if newRole != database.RoleAdmin && newRole != database.RoleMember {
		errResp := NewValidationError("role must be admin or member")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddGroupMember(groupId, req.UserId, newRole); err != nil {
		if database.IsUniqueViolation(err) {
			errResp := NewConflictError("user is already a member")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		s.log.Println("add group member:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeGroupMember removes a member. Admins may remove anyone; a
// member may only remove themselves.
func (s *ChatApp) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId, errResp := s.groupIdFromPath(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	targetId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil || targetId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if targetId != userId {
		role, err := s.db.GetUserRoleInGroup(groupId, userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewForbiddenError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if role != database.RoleAdmin {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.db.RemoveGroupMember(groupId, targetId); err != nil {
		s.log.Println("remove group member:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getMessages serves chat history. Exactly one of user_id or group_id
// selects the conversation; limit defaults to the most recent 50.
func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	peerStr := r.URL.Query().Get("user_id")
	groupStr := r.URL.Query().Get("group_id")
	if (peerStr == "") == (groupStr == "") {
		errResp := NewValidationError("exactly one of user_id or group_id is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var rows []database.Message
	if peerStr != "" {
		peerId, err := strconv.Atoi(peerStr)
		if err != nil || peerId <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		rows, err = s.db.GetDirectMessages(userId, peerId, limit)
		if err != nil {
			s.log.Println("direct history:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else {
		groupId, err := strconv.Atoi(groupStr)
		if err != nil || groupId <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		member, err := s.db.IsGroupMember(groupId, userId)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if !member {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		rows, err = s.db.GetGroupMessages(groupId, limit)
		if err != nil {
			s.log.Println("group history:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, messageFromRow(row))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ChatApp) unreadCounts(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	direct, err := s.db.UnreadCounts(userId)
	if err != nil {
		s.log.Println("unread counts:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groups, err := s.db.GroupUnreadCounts(userId)
	if err != nil {
		s.log.Println("group unread counts:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, UnreadCountsResponse{Direct: direct, Groups: groups})
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client, err := server.NewClient(userFromRow(user), conn, s.cs, s.log)
	if err != nil {
		s.log.Println("create client:", err)
		conn.Close()
		return
	}

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
