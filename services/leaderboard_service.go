package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"referral-service/models"
	"referral-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Business constants consumed by external reporting. Not derived here.
const (
	PointsPerReferral        int64 = 1000
	PointsPerAmbassadorMonth int64 = 100000
)

type LeaderboardService struct {
	DB *gorm.DB

	// Now is overridable in tests so month arithmetic is deterministic.
	Now func() time.Time
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db, Now: time.Now}
}

// LeaderboardEntry is one ranked row of the top-referrer report.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Code      string `json:"code"`
	Address   string `json:"address"` // empty when no wallet currently holds the code
	Referrals int64  `json:"referrals"`
	Points    int64  `json:"points"`
}

// TopReferrers groups the ledger by code and resolves each code to the
// oldest-created wallet currently holding it (created_at asc, then address
// asc as the deterministic tie-break). Count ties are broken by code
// ascending so repeated runs rank identically.
func (s *LeaderboardService) TopReferrers(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var groups []struct {
		Code  string
		Total int64
	}
	err := s.DB.WithContext(ctx).
		Model(&models.Referral{}).
		Select("referred_by_code AS code, COUNT(*) AS total").
		Group("referred_by_code").
		Order("total DESC, code ASC").
		Limit(limit).
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(groups))
	for i, g := range groups {
		entry := LeaderboardEntry{
			Rank:      i + 1,
			Code:      g.Code,
			Referrals: g.Total,
			Points:    g.Total * PointsPerReferral,
		}

		var holder models.Wallet
		herr := s.DB.WithContext(ctx).
			Where("referral_code = ?", g.Code).
			Order("created_at ASC, address ASC").
			First(&holder).Error
		if herr == nil {
			entry.Address = holder.Address
		} else if !errors.Is(herr, gorm.ErrRecordNotFound) {
			return nil, herr
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// PointsBreakdown is the per-wallet points report.
type PointsBreakdown struct {
	Address          string `json:"address"`
	Referrals        int64  `json:"referrals"`
	ReferralPoints   int64  `json:"referral_points"`
	AmbassadorMonths int64  `json:"ambassador_months"`
	AmbassadorPoints int64  `json:"ambassador_points"`
	TotalPoints      int64  `json:"total_points"`
}

// WalletPoints computes the points owed to one wallet: 1000 per referral
// credit, plus the ambassador bonus of 100000 per active month when the
// wallet has an ambassador record. Active months = elapsed whole months since
// the ambassador record was created minus its bad-month count, floored at 0.
func (s *LeaderboardService) WalletPoints(ctx context.Context, address string) (*PointsBreakdown, error) {
	breakdown := &PointsBreakdown{Address: address}

	var wallet models.Wallet
	err := s.DB.WithContext(ctx).Where("address = ?", address).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if wallet.ReferralCode != nil {
		if err := s.DB.WithContext(ctx).
			Model(&models.Referral{}).
			Where("referred_by_code = ?", *wallet.ReferralCode).
			Count(&breakdown.Referrals).Error; err != nil {
			return nil, err
		}
	}
	breakdown.ReferralPoints = breakdown.Referrals * PointsPerReferral

	var amb models.Ambassador
	err = s.DB.WithContext(ctx).Where("wallet_address = ?", address).First(&amb).Error
	if err == nil {
		breakdown.AmbassadorMonths = ActiveMonths(amb, s.Now())
		breakdown.AmbassadorPoints = breakdown.AmbassadorMonths * PointsPerAmbassadorMonth
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	breakdown.TotalPoints = breakdown.ReferralPoints + breakdown.AmbassadorPoints
	return breakdown, nil
}

// ActiveMonths returns the ambassador's bonus-eligible months as of now.
func ActiveMonths(amb models.Ambassador, now time.Time) int64 {
	months := wholeMonthsBetween(amb.CreatedAt, now) - int64(amb.BadMonths)
	if months < 0 {
		return 0
	}
	return months
}

// wholeMonthsBetween counts fully elapsed calendar months from start to end.
func wholeMonthsBetween(start, end time.Time) int64 {
	if end.Before(start) {
		return 0
	}
	months := int64(end.Year()-start.Year())*12 + int64(end.Month()-start.Month())
	// A month only counts once its day-of-month has been reached.
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// --- HTTP handlers ---

// TopReferrersHandler handles GET /leaderboard?limit=.
func (s *LeaderboardService) TopReferrersHandler(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil {
		limit = 50
	}
	entries, err := s.TopReferrers(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"leaderboard": entries})
}

// WalletPointsHandler handles GET /wallets/:address/points.
func (s *LeaderboardService) WalletPointsHandler(c *fiber.Ctx) error {
	address := c.Params("address")
	if !utils.IsValidWalletAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid wallet address"})
	}
	breakdown, err := s.WalletPoints(c.UserContext(), address)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if breakdown == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "wallet not found"})
	}
	return c.JSON(breakdown)
}
