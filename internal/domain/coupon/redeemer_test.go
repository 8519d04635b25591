package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRedemptionStore struct {
	last *Redemption
	err  error
}

func (m *mockRedemptionStore) Redeem(_ context.Context, rd *Redemption) error {
	m.last = rd
	return m.err
}

func TestRedeemer_Redeem(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	store := &mockRedemptionStore{}
	r := NewRedeemer(store)
	r.now = func() time.Time { return fixedNow }

	rd, err := r.Redeem(context.Background(), "u1", "r1", "o1", d("12.345"))
	require.NoError(t, err)
	assert.NotEmpty(t, rd.ID)
	assert.Equal(t, fixedNow, rd.UsedAt)
	assert.True(t, d("12.35").Equal(rd.DiscountAmount))
	assert.Same(t, rd, store.last)
}

func TestRedeemer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		userID   string
		wantErr  error
	}{
		{name: "missing user", userID: "", wantErr: ErrInvalidRedemption},
		{name: "limit reached", userID: "u1", storeErr: &ValidationError{Code: "X", Reason: ReasonUsedUp}, wantErr: ErrUsedUp},
		{name: "already used", userID: "u1", storeErr: &ValidationError{Code: "X", Reason: ReasonAlreadyUsed}, wantErr: ErrAlreadyUsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRedeemer(&mockRedemptionStore{err: tt.storeErr})
			_, err := r.Redeem(context.Background(), tt.userID, "r1", "o1", d("1"))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	boom := errors.New("deadlock detected")
	r := NewRedeemer(&mockRedemptionStore{err: boom})
	_, err := r.Redeem(context.Background(), "u1", "r1", "o1", d("1"))
	require.ErrorIs(t, err, boom)
}
