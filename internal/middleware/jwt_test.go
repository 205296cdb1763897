package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ministrylabs/attendance-api/internal/models"
	"github.com/ministrylabs/attendance-api/internal/service"
)

type stubUserRepo struct {
	users  map[string]models.User
	tokens map[string]models.RefreshToken
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[string]models.User{}, tokens: map[string]models.RefreshToken{}}
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }

func (s *stubUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}

func (s *stubUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error { return nil }

func (s *stubUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = *token
	return nil
}

func (s *stubUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := s.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func (s *stubUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func jwtTestRouter(t *testing.T) (*gin.Engine, *stubUserRepo, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newStubUserRepo()
	authSvc := service.NewAuthService(repo, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "middleware-test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "attendance-api-test",
	})

	r := gin.New()
	r.GET("/protected", JWT(authSvc), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, repo, authSvc
}

func TestJWTAllowsActiveAccount(t *testing.T) {
	r, repo, authSvc := jwtTestRouter(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["u1"] = models.User{ID: "u1", Email: "admin@example.org", PasswordHash: string(hash), Role: models.RoleAdmin, Active: true}

	resp, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTRejectsDeactivatedAccount(t *testing.T) {
	r, repo, authSvc := jwtTestRouter(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["u1"] = models.User{ID: "u1", Email: "admin@example.org", PasswordHash: string(hash), Role: models.RoleAdmin, Active: true}

	resp, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "admin@example.org", Password: "secret1"})
	require.NoError(t, err)

	// account disabled after the token was issued
	repo.users["u1"] = models.User{ID: "u1", Email: "admin@example.org", Role: models.RoleAdmin, Active: false}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r, _, _ := jwtTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
