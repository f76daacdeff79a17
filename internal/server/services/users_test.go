package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *fakeRepoManager) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	return NewUserService(db, rm, "k", time.Hour, nil), rm
}

var (
	testSalt     = bytes.Repeat([]byte{7}, 32)
	testVerifier = []byte("verifier")
)

func TestRegister(t *testing.T) {
	s, rm := newUserService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "  alice ", testSalt, testVerifier)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.UserName)
	assert.Contains(t, rm.users.byName, "alice")

	_, err = s.Register(ctx, "alice", testSalt, testVerifier)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newUserService(t)
	ctx := context.Background()

	tests := map[string]struct {
		name     string
		salt     []byte
		verifier []byte
	}{
		"empty name":     {name: " ", salt: testSalt, verifier: testVerifier},
		"short salt":     {name: "bob", salt: []byte("short"), verifier: testVerifier},
		"empty verifier": {name: "bob", salt: testSalt},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.name, tt.salt, tt.verifier)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestRegister_RepoError(t *testing.T) {
	s, rm := newUserService(t)
	rm.users.failErr = errors.New("db down")

	_, err := s.Register(context.Background(), "alice", testSalt, testVerifier)
	assert.ErrorContains(t, err, "error creating user")
}

func TestGetSalt(t *testing.T) {
	s, _ := newUserService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)

	got, err := s.GetSalt(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testSalt, got)

	r1, err := s.GetSalt(ctx, "ghost")
	require.NoError(t, err)
	r2, err := s.GetSalt(ctx, "ghost")
	require.NoError(t, err)
	assert.Len(t, r1, 32)
	assert.NotEqual(t, r1, r2, "unknown users get a fresh random salt")
}

func TestGetSalt_RepoError(t *testing.T) {
	s, rm := newUserService(t)
	rm.users.failErr = errors.New("db down")

	_, err := s.GetSalt(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin(t *testing.T) {
	s, _ := newUserService(t)
	ctx := context.Background()
	u, err := s.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)

	userID, token, err := s.Login(ctx, "alice", testVerifier)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)

	fromToken, err := auth.GetUserIDFromToken(token, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, fromToken)

	_, _, err = s.Login(ctx, "alice", []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, _, err = s.Login(ctx, "ghost", testVerifier)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}
