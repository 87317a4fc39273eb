package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"referral-service/models"
	"referral-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// maxCodeAttempts bounds the collision-retry loop in code assignment. At 32^6
// possible codes a single collision is already a ~1.7e-9 event, so hitting
// this bound means the code space is effectively exhausted or the store is
// misbehaving.
const maxCodeAttempts = 100

// ErrCodeSpaceExhausted is returned when code assignment burns through every
// allowed attempt without winning the uniqueness race.
var ErrCodeSpaceExhausted = errors.New("could not allocate a referral code after maximum attempts")

type WalletService struct {
	DB *gorm.DB

	// GenerateCode produces candidate referral codes. Overridable in tests to
	// force collisions; defaults to the shared generator.
	GenerateCode func() string
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		DB:           db,
		GenerateCode: utils.GenerateReferralCode,
	}
}

// RegisterWallet binds exactly one referral code to address, creating the
// wallet row if needed. Returns the row and whether this call created it.
//
// No application-level lock is held anywhere in here: the unique constraints
// on wallets.address and wallets.referral_code are the only arbiters, which
// keeps the operation safe under arbitrary concurrent submissions.
func (s *WalletService) RegisterWallet(ctx context.Context, address string) (*models.Wallet, bool, error) {
	address = strings.TrimSpace(address)
	if !utils.IsValidWalletAddress(address) {
		return nil, false, ErrInvalidAddress
	}

	// Fast path: already registered, return the existing code.
	var existing models.Wallet
	err := utils.WithRetry(ctx, 3, func() error {
		return s.DB.WithContext(ctx).Where("address = ?", address).First(&existing).Error
	})
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.GenerateCode()
		wallet := models.Wallet{
			Address:      address,
			ReferralCode: &code,
		}

		// WithRetry only re-runs transient infrastructure failures; a
		// unique violation comes straight back for classification below.
		err := utils.WithRetry(ctx, 3, func() error {
			return s.DB.WithContext(ctx).Create(&wallet).Error
		})
		if err == nil {
			return &wallet, true, nil
		}

		if !utils.IsUniqueViolation(err) {
			return nil, false, err
		}

		// Which constraint fired decides everything. A collision on the code
		// column means regenerate and retry; anything else unique here is the
		// address PK, i.e. a concurrent submission for the same wallet won
		// the race, and the winner's row is the answer.
		if strings.Contains(err.Error(), "referral_code") {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(utils.CollisionBackoffDelay(attempt)):
			}
			continue
		}

		ferr := utils.WithRetry(ctx, 3, func() error {
			return s.DB.WithContext(ctx).Where("address = ?", address).First(&existing).Error
		})
		if ferr != nil {
			return nil, false, ferr
		}
		return &existing, false, nil
	}

	return nil, false, ErrCodeSpaceExhausted
}

// GetWallet returns the wallet row for address, or nil if none exists.
func (s *WalletService) GetWallet(ctx context.Context, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := utils.WithRetry(ctx, 3, func() error {
		return s.DB.WithContext(ctx).Where("address = ?", address).First(&wallet).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindWalletByCode resolves a referral code to its current holder. If more
// than one wallet holds the code (possible only mid-corruption, before a
// repair pass runs), the oldest wallet by CreatedAt wins, address ascending
// as the tie-break.
func (s *WalletService) FindWalletByCode(ctx context.Context, code string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := utils.WithRetry(ctx, 3, func() error {
		return s.DB.WithContext(ctx).
			Where("referral_code = ?", code).
			Order("created_at ASC, address ASC").
			First(&wallet).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// --- HTTP handlers ---

type registerWalletRequest struct {
	Address string `json:"address"`
}

// RegisterWalletHandler handles POST /wallets.
// 201 on first registration, 200 with the existing code on repeat submits.
func (s *WalletService) RegisterWalletHandler(c *fiber.Ctx) error {
	var req registerWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	wallet, created, err := s.RegisterWallet(c.UserContext(), req.Address)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAddress):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid wallet address"})
		case errors.Is(err, ErrCodeSpaceExhausted):
			log.Printf("❌ [WALLET] Code allocation exhausted for %s", req.Address)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not allocate a referral code, please retry",
			})
		default:
			log.Printf("❌ [WALLET] Failed to register %s: %v", req.Address, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "try again later"})
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
		log.Printf("✅ [WALLET] Registered %s with code %s", wallet.Address, *wallet.ReferralCode)
	}
	return c.Status(status).JSON(wallet)
}

// GetWalletHandler handles GET /wallets/:address, returning the wallet row
// plus its current referral count and the points those referrals earn.
func (s *WalletService) GetWalletHandler(c *fiber.Ctx) error {
	address := c.Params("address")
	if !utils.IsValidWalletAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid wallet address"})
	}

	wallet, err := s.GetWallet(c.UserContext(), address)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if wallet == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "wallet not found"})
	}

	var referrals int64
	if wallet.ReferralCode != nil {
		if err := s.DB.WithContext(c.UserContext()).
			Model(&models.Referral{}).
			Where("referred_by_code = ?", *wallet.ReferralCode).
			Count(&referrals).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	return c.JSON(fiber.Map{
		"wallet":    wallet,
		"referrals": referrals,
		"points":    referrals * PointsPerReferral,
	})
}
