package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"referral-service/models"
	"referral-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Validation and conflict sentinels shared across the referral surfaces.
var (
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrInvalidCode     = errors.New("invalid referral code format")
	ErrSelfReferral    = errors.New("wallet cannot be referred by its own code")
	ErrAlreadyReferred = errors.New("wallet already has a referral credit")
)

type ReferralService struct {
	DB      *gorm.DB
	Wallets *WalletService
}

func NewReferralService(db *gorm.DB, wallets *WalletService) *ReferralService {
	return &ReferralService{DB: db, Wallets: wallets}
}

// RecordReferral appends one credit "referredAddress signed up via code" to
// the ledger. Exactly-once per referee is enforced by the unique index on
// referred_wallet_address; a second credit comes back as ErrAlreadyReferred
// and leaves the first row untouched.
//
// A code that resolves to no wallet is still recorded (referrerKnown=false).
// The ledger keeps the attribution even if the inviter's row is created late
// or recoded; rejecting would lose the signup.
func (s *ReferralService) RecordReferral(ctx context.Context, code, referredAddress string) (*models.Referral, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	referredAddress = strings.TrimSpace(referredAddress)

	if !utils.IsValidReferralCode(code) {
		return nil, false, ErrInvalidCode
	}
	if !utils.IsValidWalletAddress(referredAddress) {
		return nil, false, ErrInvalidAddress
	}

	referrer, err := s.Wallets.FindWalletByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if referrer != nil && referrer.Address == referredAddress {
		return nil, false, ErrSelfReferral
	}
	referrerKnown := referrer != nil

	referral := models.Referral{
		ReferredByCode:        code,
		ReferredWalletAddress: referredAddress,
	}
	// Transient store failures are retried here; a unique violation is not
	// transient and falls through to the duplicate check untouched.
	err = utils.WithRetry(ctx, 3, func() error {
		return s.DB.WithContext(ctx).Create(&referral).Error
	})
	if err != nil {
		if utils.IsUniqueViolation(err) {
			// Benign duplicate: this wallet already holds its one credit.
			return nil, referrerKnown, ErrAlreadyReferred
		}
		return nil, referrerKnown, err
	}
	return &referral, referrerKnown, nil
}

// CountByCode returns the number of credits recorded for one code.
func (s *ReferralService) CountByCode(ctx context.Context, code string) (int64, error) {
	var count int64
	err := utils.WithRetry(ctx, 3, func() error {
		return s.DB.WithContext(ctx).
			Model(&models.Referral{}).
			Where("referred_by_code = ?", code).
			Count(&count).Error
	})
	return count, err
}

// --- HTTP handlers ---

type recordReferralRequest struct {
	ReferredByCode        string `json:"referred_by_code"`
	ReferredWalletAddress string `json:"referred_wallet_address"`
}

// RecordReferralHandler handles POST /referrals.
// 201 on a new credit; 409 when the wallet was already referred (not an
// error, the first credit stands).
func (s *ReferralService) RecordReferralHandler(c *fiber.Ctx) error {
	var req recordReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	referral, referrerKnown, err := s.RecordReferral(c.UserContext(), req.ReferredByCode, req.ReferredWalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidAddress):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrSelfReferral):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrAlreadyReferred):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already referred"})
		default:
			log.Printf("❌ [REFERRAL] Failed to record credit for %s: %v", req.ReferredWalletAddress, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "try again later"})
		}
	}

	if !referrerKnown {
		log.Printf("⚠️  [REFERRAL] Code %s resolves to no wallet, credit recorded anyway", referral.ReferredByCode)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"referral":       referral,
		"referrer_known": referrerKnown,
	})
}

// CountHandler handles GET /referrals/count/:code.
func (s *ReferralService) CountHandler(c *fiber.Ctx) error {
	code := strings.ToUpper(c.Params("code"))
	if !utils.IsValidReferralCode(code) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid referral code format"})
	}
	count, err := s.CountByCode(c.UserContext(), code)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"code": code, "count": count})
}
