package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/pkg/config"
)

type mockUserRepo struct {
	users     map[string]*models.User
	lastLogin map[string]time.Time
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.lastLogin == nil {
		m.lastLogin = map[string]time.Time{}
	}
	m.lastLogin[id] = at
	return nil
}

func seedUser(t *testing.T, repo *mockUserRepo, email, password string, role models.UserRole, studentID *int64) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "u-" + email,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test User",
		Role:         role,
		StudentID:    studentID,
		Active:       true,
	}
	if repo.users == nil {
		repo.users = map[string]*models.User{}
	}
	repo.users[user.ID] = user
	return user
}

func newAuthService(repo *mockUserRepo) *AuthService {
	return NewAuthService(repo, nil, nil, config.JWTConfig{Secret: "test-secret", Expiration: time.Hour})
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	repo := &mockUserRepo{}
	studentID := int64(42)
	seedUser(t, repo, "student@example.com", "pass123", models.RoleStudent, &studentID)
	svc := newAuthService(repo)

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.com",
		Password: "pass123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	assert.Equal(t, int64(3600), result.ExpiresIn)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	require.NotNil(t, claims.StudentID)
	assert.Equal(t, int64(42), *claims.StudentID)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "staff@example.com", "correct", models.RoleAdmin, nil)
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(&mockUserRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	require.Error(t, err)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := &mockUserRepo{}
	user := seedUser(t, repo, "old@example.com", "pass123", models.RoleAssistant, nil)
	user.Active = false
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "old@example.com",
		Password: "pass123",
	})
	require.Error(t, err)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "staff@example.com", "pass123", models.RoleAdmin, nil)
	svc := newAuthService(repo)

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@example.com",
		Password: "pass123",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(result.AccessToken + "x")
	require.Error(t, err)

	other := NewAuthService(repo, nil, nil, config.JWTConfig{Secret: "other-secret", Expiration: time.Hour})
	_, err = other.ValidateToken(result.AccessToken)
	require.Error(t, err)
}
