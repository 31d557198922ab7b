package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parley-im/parley/internal/config"
	"github.com/parley-im/parley/internal/database"
	"github.com/parley-im/parley/internal/testutil"
	"github.com/parley-im/parley/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// findCookie returns the named cookie from the recorded response, or
// nil when absent.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func testAppWithRepo(t *testing.T, repo *database.MockChatRepository) *ChatApp {
	t.Helper()
	return NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, repo, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := testAppWithRepo(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Name:         "New User",
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successfully creates a new account", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CreateAccount", mock.AnythingOfType("database.CreateAccountParams")).
			Return(expectedUser, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Name:     expectedUser.Name,
			Username: expectedUser.Username,
			Email:    expectedUser.EmailAddress,
			Password: "password",
		}))
		app.createAccount(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var got types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, expectedUser.Id, got.Id)
		assert.Equal(t, expectedUser.Username, got.Username)
		assert.Empty(t, got.Password, "password hash must never be serialized")
	})

	t.Run("fails with invalid json body", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("invalid json"))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("fails with missing fields", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Email:    expectedUser.EmailAddress,
			Password: "password",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	passwdHash, err := hashPassword("password")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "testuser",
		EmailAddress: "test@example.com",
		PasswordHash: passwdHash,
	}

	t.Run("successful login sets session cookie", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    dbUser.EmailAddress,
			Password: "password",
		}))
		app.login(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected session cookie to be set")
		assert.True(t, cookie.HttpOnly)

		userId, err := app.extractUserIdFromToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, dbUser.Id, userId)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    dbUser.EmailAddress,
			Password: "wrong",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})

	t.Run("unknown email is unauthorized", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", "nobody@example.com").
			Return(database.User{}, sql.ErrNoRows).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email:    "nobody@example.com",
			Password: "password",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSessionHandler(t *testing.T) {
	dbUser := database.User{
		Id:           3,
		Username:     "sessionuser",
		EmailAddress: "session@example.com",
	}

	t.Run("returns the authenticated user", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", dbUser.Id).Return(dbUser, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req = req.WithContext(WithUserId(req.Context(), dbUser.Id))
		app.session(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var got types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, dbUser.Username, got.Username)
	})

	t.Run("no user in context is unauthorized", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		app.session(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestListUsersHandler(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("ListAccountsExcept", 1).Return([]database.User{
		{Id: 2, Username: "alice", IsOnline: true},
		{Id: 3, Username: "bob", LastSeen: sql.NullTime{Time: time.Now().UTC(), Valid: true}},
	}, nil).Once()

	app := testAppWithRepo(t, mockRepo)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.listUsers(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var got []types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.True(t, got[0].IsOnline)
	assert.False(t, got[1].IsOnline)
	assert.False(t, got[1].LastSeen.IsZero())
}

func TestCreateGroupHandler(t *testing.T) {
	t.Run("creates group with creator as admin", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CreateGroup", database.CreateGroupParams{
			Name:        "team",
			Description: "the team",
			CreatedBy:   1,
		}).Return(database.Group{Id: 10, Name: "team", CreatedBy: 1, MemberCount: 1}, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/groups", jsonBody(t, CreateGroupRequest{
			Name:        "team",
			Description: "the team",
		}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.createGroup(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var got types.Group
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, 10, got.Id)
		assert.Equal(t, 1, got.CreatedBy)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/groups", jsonBody(t, CreateGroupRequest{}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.createGroup(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAddGroupMemberHandler(t *testing.T) {
	t.Run("admin can add a member", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetUserRoleInGroup", 10, 1).Return(database.RoleAdmin, nil).Once()
		mockRepo.On("AddGroupMember", 10, 5, database.RoleMember).Return(nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/groups/10/members", jsonBody(t, AddMemberRequest{UserId: 5}))
		req.SetPathValue("id", "10")
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.addGroupMember(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetUserRoleInGroup", 10, 2).Return(database.RoleMember, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/groups/10/members", jsonBody(t, AddMemberRequest{UserId: 5}))
		req.SetPathValue("id", "10")
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.addGroupMember(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetUserRoleInGroup", 10, 9).Return("", sql.ErrNoRows).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/groups/10/members", jsonBody(t, AddMemberRequest{UserId: 5}))
		req.SetPathValue("id", "10")
		req = req.WithContext(WithUserId(req.Context(), 9))
		app.addGroupMember(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestRemoveGroupMemberHandler(t *testing.T) {
	t.Run("member can remove themselves", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("RemoveGroupMember", 10, 2).Return(nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/groups/10/members/2", nil)
		req.SetPathValue("id", "10")
		req.SetPathValue("userId", "2")
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.removeGroupMember(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("member cannot remove others", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetUserRoleInGroup", 10, 2).Return(database.RoleMember, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/groups/10/members/5", nil)
		req.SetPathValue("id", "10")
		req.SetPathValue("userId", "5")
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.removeGroupMember(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	t.Run("direct history", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetDirectMessages", 1, 2, defaultHistoryLimit).Return([]database.Message{
			{Id: 1, SenderId: 1, ReceiverId: 2, Content: "hi"},
			{Id: 2, SenderId: 2, ReceiverId: 1, Content: "hey", ReadAt: sql.NullTime{Time: time.Now(), Valid: true}},
		}, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?user_id=2", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var got []types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, types.MessageStatusSent, got[0].Status)
		assert.Equal(t, types.MessageStatusRead, got[1].Status)
	})

	t.Run("group history requires membership", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("IsGroupMember", 7, 1).Return(false, nil).Once()

		app := testAppWithRepo(t, mockRepo)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?group_id=7", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("both selectors rejected", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?user_id=2&group_id=7", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("no selector rejected", func(t *testing.T) {
		app := testAppWithRepo(t, &database.MockChatRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUnreadCountsHandler(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("UnreadCounts", 1).Return(map[int]int{2: 3}, nil).Once()
	mockRepo.On("GroupUnreadCounts", 1).Return(map[int]int{7: 1}, nil).Once()

	app := testAppWithRepo(t, mockRepo)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/unread", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.unreadCounts(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var got UnreadCountsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, 3, got.Direct[2])
	assert.Equal(t, 1, got.Groups[7])
}
