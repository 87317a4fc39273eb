package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"referral-service/models"
)

func seedReferral(t *testing.T, db *gorm.DB, code, referred string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Referral{
		ReferredByCode:        code,
		ReferredWalletAddress: referred,
	}).Error)
}

func TestLeaderboardService_TopReferrers(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("groups credits and resolves holders", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		seedWallet(t, db, "AddrHolderC1111111111111111111111", "CCCC22", t1, false)
		seedWallet(t, db, "AddrHolderD1111111111111111111111", "DDDD22", t1, false)

		seedReferral(t, db, "CCCC22", "AddrRefX111111111111111111111111")
		seedReferral(t, db, "CCCC22", "AddrRefY111111111111111111111111")
		seedReferral(t, db, "DDDD22", "AddrRefZ111111111111111111111111")

		entries, err := svc.TopReferrers(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, 1, entries[0].Rank)
		assert.Equal(t, "CCCC22", entries[0].Code)
		assert.Equal(t, int64(2), entries[0].Referrals)
		assert.Equal(t, "AddrHolderC1111111111111111111111", entries[0].Address)
		assert.Equal(t, 2*PointsPerReferral, entries[0].Points)

		assert.Equal(t, 2, entries[1].Rank)
		assert.Equal(t, "DDDD22", entries[1].Code)
		assert.Equal(t, int64(1), entries[1].Referrals)
	})

	t.Run("count ties rank by code ascending", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		seedReferral(t, db, "ZZZZ22", "AddrRefA111111111111111111111111")
		seedReferral(t, db, "AAAA22", "AddrRefB111111111111111111111111")

		entries, err := svc.TopReferrers(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "AAAA22", entries[0].Code)
		assert.Equal(t, "ZZZZ22", entries[1].Code)
	})

	t.Run("orphaned codes report an empty holder", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		seedReferral(t, db, "GONE22", "AddrRefC111111111111111111111111")

		entries, err := svc.TopReferrers(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "GONE22", entries[0].Code)
		assert.Empty(t, entries[0].Address)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		entries, err := svc.TopReferrers(ctx, -5)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLeaderboardService_WalletPoints(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("referral points only", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		seedWallet(t, db, "AddrEarner11111111111111111111111", "EARN22", t1, false)
		seedReferral(t, db, "EARN22", "AddrRefA111111111111111111111111")
		seedReferral(t, db, "EARN22", "AddrRefB111111111111111111111111")
		seedReferral(t, db, "EARN22", "AddrRefC111111111111111111111111")

		breakdown, err := svc.WalletPoints(ctx, "AddrEarner11111111111111111111111")
		require.NoError(t, err)
		require.NotNil(t, breakdown)
		assert.Equal(t, int64(3), breakdown.Referrals)
		assert.Equal(t, int64(3000), breakdown.ReferralPoints)
		assert.Equal(t, int64(0), breakdown.AmbassadorPoints)
		assert.Equal(t, int64(3000), breakdown.TotalPoints)
	})

	t.Run("ambassador bonus counts active months", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)
		// 5 whole months and change since the ambassador record was created
		svc.Now = func() time.Time { return time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC) }

		seedWallet(t, db, "AddrAmbass11111111111111111111111", "AMBA22", t1, false)
		require.NoError(t, db.Create(&models.Ambassador{
			ID:            "e2a3a050-7c27-4b62-9d0c-111111111111",
			WalletAddress: "AddrAmbass11111111111111111111111",
			DisplayName:   "Amb One",
			Handle:        "amb-one",
			BadMonths:     2,
			CreatedAt:     t1,
		}).Error)
		seedReferral(t, db, "AMBA22", "AddrRefD111111111111111111111111")

		breakdown, err := svc.WalletPoints(ctx, "AddrAmbass11111111111111111111111")
		require.NoError(t, err)
		require.NotNil(t, breakdown)
		// 5 elapsed months minus 2 bad months = 3 active months
		assert.Equal(t, int64(3), breakdown.AmbassadorMonths)
		assert.Equal(t, int64(300000), breakdown.AmbassadorPoints)
		assert.Equal(t, int64(1000), breakdown.ReferralPoints)
		assert.Equal(t, int64(301000), breakdown.TotalPoints)
	})

	t.Run("bad months never push the bonus negative", func(t *testing.T) {
		amb := models.Ambassador{CreatedAt: t1, BadMonths: 99}
		now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, int64(0), ActiveMonths(amb, now))
	})

	t.Run("unknown wallet returns nil", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewLeaderboardService(db)

		breakdown, err := svc.WalletPoints(ctx, "AddrMissing1111111111111111111111")
		require.NoError(t, err)
		assert.Nil(t, breakdown)
	})
}

func TestWholeMonthsBetween(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		end  time.Time
		want int64
	}{
		{"same day", start, 0},
		{"day before anniversary", time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), 0},
		{"on the anniversary", time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC), 1},
		{"across a year boundary", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 12},
		{"end before start", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, wholeMonthsBetween(start, tc.end))
		})
	}
}
