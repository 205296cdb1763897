package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ministrylabs/attendance-api/internal/models"
	appErrors "github.com/ministrylabs/attendance-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail map[string]models.User
	usersByID    map[string]models.User
	tokens       map[string]models.RefreshToken
	revokedIDs   []string
	revokedUsers []string
	lastLogin    *time.Time
	passwordSet  string
	auditLogs    []models.AuditLog
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail: map[string]models.User{},
		usersByID:    map[string]models.User{},
		tokens:       map[string]models.RefreshToken{},
	}
}

func (m *mockAuthRepo) addUser(user models.User) {
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin = &ts
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordSet = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	for k, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
			m.tokens[k] = t
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = *token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedIDs = append(m.revokedIDs, id)
	for k, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			m.tokens[k] = t
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func testAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "attendance-api-test",
	})
}

func hashPassword(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccessIssuesValidatableToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "secret1"), FullName: "Admin", Role: models.RoleAdmin, Active: true})
	svc := testAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, repo.lastLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginInvalidPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "secret1"), Active: true})
	svc := testAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := testAuthService(newMockAuthRepo())
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.org", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "old@example.org", PasswordHash: hashPassword(t, "secret1"), Active: false})
	svc := testAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "old@example.org", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthenticateRejectsDeactivatedAccount(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleAdmin, Active: true})
	svc := testAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	// deactivation must cut off the still-unexpired token
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", Role: models.RoleAdmin, Active: false})

	_, err = svc.Authenticate(context.Background(), resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthenticateRejectsDeletedAccount(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleAdmin, Active: true})
	svc := testAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)

	delete(repo.usersByID, "u1")

	_, err = svc.Authenticate(context.Background(), resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesAndRevokesUsedToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleAdmin, Active: true})
	svc := testAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the consumed token must be dead
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshExpiredToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", Active: true})
	repo.tokens["stale"] = models.RefreshToken{ID: "t1", UserID: "u1", Token: "stale", ExpiresAt: time.Now().Add(-time.Hour)}
	svc := testAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.tokens["tok"] = models.RefreshToken{ID: "t1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	svc := testAuthService(repo)

	err := svc.Logout(context.Background(), "tok", "someone-else", "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "tok", "u1", "", ""))
	assert.Contains(t, repo.revokedIDs, "t1")
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "oldpass"), Active: true})
	svc := testAuthService(repo)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "oldpass", NewPassword: "newpass1"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwordSet)
	assert.Contains(t, repo.revokedUsers, "u1")
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(models.User{ID: "u1", Email: "admin@example.org", PasswordHash: hashPassword(t, "oldpass"), Active: true})
	svc := testAuthService(repo)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpass1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
