package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.Wrap(ErrUnauthorized, "api key not found")
	}
	return info, nil
}

func TestAuthenticator_Authenticate(t *testing.T) {
	pepper := []byte("pepper")
	a := NewAuthenticator(nil, pepper)
	checkout := a.Hash("checkout-key")
	reporting := a.Hash("reporting-key")

	a.keys = &mockKeyRepo{byHash: map[string]*APIKeyInfo{
		checkout:  {ID: "k1", KeyHash: checkout, Name: "checkout", Scopes: []string{ScopeRedeem}},
		reporting: {ID: "k2", KeyHash: reporting, Name: "reporting", Scopes: []string{"read"}},
	}}

	tests := []struct {
		name    string
		key     string
		scope   string
		wantID  string
		wantErr bool
	}{
		{name: "valid key with scope", key: "checkout-key", scope: ScopeRedeem, wantID: "k1"},
		{name: "valid key without required scope", key: "reporting-key", scope: ScopeRedeem, wantErr: true},
		{name: "no scope required", key: "reporting-key", wantID: "k2"},
		{name: "unknown key", key: "nope", scope: ScopeRedeem, wantErr: true},
		{name: "empty key", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Authenticate(context.Background(), tt.key, tt.scope)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, info.ID)
		})
	}
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	a := NewAuthenticator(&mockKeyRepo{err: storeErr}, []byte("pepper"))

	_, err := a.Authenticate(context.Background(), "checkout-key", ScopeRedeem)
	require.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticator_HashDependsOnPepper(t *testing.T) {
	a := NewAuthenticator(nil, []byte("one"))
	b := NewAuthenticator(nil, []byte("two"))
	assert.NotEqual(t, a.Hash("key"), b.Hash("key"))
	assert.Len(t, a.Hash("key"), 64)
}
