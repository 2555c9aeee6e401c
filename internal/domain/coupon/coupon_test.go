package coupon

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Hour)
	alice := "user-alice"
	bob := "user-bob"

	tests := []struct {
		name    string
		coupon  *Coupon
		userID  string
		wantErr error
	}{
		{
			name:    "nil coupon",
			coupon:  nil,
			userID:  alice,
			wantErr: ErrNotFound,
		},
		{
			name:   "valid unrestricted coupon",
			coupon: &Coupon{Code: "SAVE10", DiscountPercent: 10, IsActive: true},
			userID: alice,
		},
		{
			name:    "already used",
			coupon:  &Coupon{Code: "SAVE10", IsUsed: true, IsActive: true},
			userID:  alice,
			wantErr: ErrAlreadyUsed,
		},
		{
			name:    "inactive",
			coupon:  &Coupon{Code: "SAVE10", IsActive: false},
			userID:  alice,
			wantErr: ErrInactive,
		},
		{
			name:    "expired",
			coupon:  &Coupon{Code: "LUCKY-5-AB12", IsActive: true, ExpiresAt: &past},
			userID:  alice,
			wantErr: ErrExpired,
		},
		{
			name:   "not yet expired",
			coupon: &Coupon{Code: "LUCKY-5-AB12", IsActive: true, ExpiresAt: &future},
			userID: alice,
		},
		{
			name:    "reserved for someone else",
			coupon:  &Coupon{Code: "LUCKY-5-AB12", IsActive: true, ReservedByUser: &bob},
			userID:  alice,
			wantErr: ErrWrongOwner,
		},
		{
			name:   "reserved for the caller",
			coupon: &Coupon{Code: "LUCKY-5-AB12", IsActive: true, ReservedByUser: &alice},
			userID: alice,
		},
		{
			// Used wins over inactive/expired so the caller sees the most
			// specific refusal first.
			name:    "used beats expired",
			coupon:  &Coupon{Code: "X", IsUsed: true, IsActive: false, ExpiresAt: &past},
			userID:  alice,
			wantErr: ErrAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.coupon, tt.userID, fixedNow)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewRewardCode(t *testing.T) {
	code := NewRewardCode(15)

	require.True(t, strings.HasPrefix(code, "LUCKY-15-"), "got %q", code)
	suffix := strings.TrimPrefix(code, "LUCKY-15-")
	assert.Len(t, suffix, 4)
	assert.Equal(t, strings.ToUpper(suffix), suffix)

	// Codes are random; two issues for the same slot must not collide.
	assert.NotEqual(t, code, NewRewardCode(15))
}
