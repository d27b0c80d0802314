package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom/live-auction-server/internal/repository/postgres"
	"github.com/dom/live-auction-server/internal/service"
	"github.com/dom/live-auction-server/internal/testutil"
)

func TestAuthService_Register(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	authService := service.NewAuthService(repos.User, repos.Session, testutil.TestConfig())
	ctx := context.Background()

	t.Run("successful registration", func(t *testing.T) {
		result, err := authService.Register(ctx, service.RegisterInput{
			DisplayName: "alice",
			Password:    "password123",
		})
		require.NoError(t, err)

		assert.Equal(t, "alice", result.User.DisplayName)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
	})

	t.Run("duplicate display name rejected", func(t *testing.T) {
		_, err := authService.Register(ctx, service.RegisterInput{
			DisplayName: "alice",
			Password:    "otherpassword",
		})
		assert.ErrorIs(t, err, service.ErrDisplayNameExists)
	})

	t.Run("over-long display name rejected", func(t *testing.T) {
		long := make([]byte, 65)
		for i := range long {
			long[i] = 'a'
		}
		_, err := authService.Register(ctx, service.RegisterInput{
			DisplayName: string(long),
			Password:    "password123",
		})
		assert.ErrorIs(t, err, service.ErrDisplayNameTooLong)
	})
}

func TestAuthService_Login(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	authService := service.NewAuthService(repos.User, repos.Session, testutil.TestConfig())
	ctx := context.Background()

	user, password := testutil.NewUserBuilder().Build(t, testDB.DB)

	t.Run("valid credentials", func(t *testing.T) {
		result, err := authService.Login(ctx, service.LoginInput{
			DisplayName: user.DisplayName,
			Password:    password,
		})
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.User.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := authService.Login(ctx, service.LoginInput{
			DisplayName: user.DisplayName,
			Password:    "wrong",
		})
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := authService.Login(ctx, service.LoginInput{
			DisplayName: "nobody",
			Password:    "whatever",
		})
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	})
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	authService := service.NewAuthService(repos.User, repos.Session, testutil.TestConfig())
	ctx := context.Background()

	result, err := authService.Register(ctx, service.RegisterInput{
		DisplayName: "tokenuser",
		Password:    "password123",
	})
	require.NoError(t, err)

	userID, err := authService.UserIDFromToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)

	_, err = authService.UserIDFromToken("not-a-token")
	assert.Error(t, err)
}
