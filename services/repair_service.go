package services

import (
	"context"
	"log"
	"strings"
	"time"

	"referral-service/models"
	"referral-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// repairBatchSize bounds how many wallet rows pass 2 loads per query so the
// sweep stays interruptible and resumable.
const repairBatchSize = 200

// RepairResult summarizes one maintenance pass. Failed rows are logged and
// counted but never halt the pass.
type RepairResult struct {
	DuplicateCodes int `json:"duplicate_codes"` // pass 1: codes held by >1 wallet
	Nullified      int `json:"nullified"`       // pass 1: rows nulled + flagged
	Examined       int `json:"examined"`        // pass 2: candidate rows inspected
	Regenerated    int `json:"regenerated"`     // pass 2: rows given a fresh code
	Cleared        int `json:"cleared"`         // pass 2: stale flags cleared, code kept
	Failed         int `json:"failed"`
}

type RepairService struct {
	DB      *gorm.DB
	Wallets *WalletService
}

func NewRepairService(db *gorm.DB, wallets *WalletService) *RepairService {
	return &RepairService{DB: db, Wallets: wallets}
}

// NullifyDuplicateCodes is repair pass 1: for every referral code held by
// more than one wallet, the oldest wallet (created_at asc, address asc) keeps
// it; every other holder has its code nulled and is flagged for regeneration.
// Running it again with no new corruption is a no-op.
func (s *RepairService) NullifyDuplicateCodes(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}

	var dupCodes []string
	err := utils.WithRetry(ctx, 3, func() error {
		dupCodes = dupCodes[:0]
		return s.DB.WithContext(ctx).
			Model(&models.Wallet{}).
			Select("referral_code").
			Where("referral_code IS NOT NULL").
			Group("referral_code").
			Having("COUNT(*) > 1").
			Pluck("referral_code", &dupCodes).Error
	})
	if err != nil {
		return nil, err
	}
	result.DuplicateCodes = len(dupCodes)

	for _, code := range dupCodes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var holders []models.Wallet
		if err := s.DB.WithContext(ctx).
			Where("referral_code = ?", code).
			Order("created_at ASC, address ASC").
			Find(&holders).Error; err != nil {
			log.Printf("❌ [REPAIR] Failed to load holders of %s: %v", code, err)
			result.Failed++
			continue
		}
		if len(holders) < 2 {
			continue // resolved since the scan, nothing to do
		}

		// holders[0] is the keeper; everyone else loses the code.
		for _, w := range holders[1:] {
			err := s.DB.WithContext(ctx).
				Model(&models.Wallet{}).
				Where("address = ?", w.Address).
				Updates(map[string]interface{}{
					"referral_code":             nil,
					"referral_code_regenerated": true,
				}).Error
			if err != nil {
				log.Printf("❌ [REPAIR] Failed to nullify code on %s: %v", w.Address, err)
				result.Failed++
				continue
			}
			result.Nullified++
		}
	}

	log.Printf("🔧 [REPAIR] Pass 1 done: %d duplicated code(s), %d row(s) nullified, %d failed",
		result.DuplicateCodes, result.Nullified, result.Failed)
	return result, nil
}

// RegenerateCodes is repair pass 2: every wallet flagged for regeneration,
// missing its code, or holding a code that fails the format check gets a
// fresh code through the same collision-retry protocol registration uses.
// A flagged wallet whose code is still valid and unique (pass 1 ran twice)
// just has its flag cleared.
func (s *RepairService) RegenerateCodes(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}

	// Flag/NULL candidates come straight from SQL; format violations cannot
	// (no portable regex), so every coded row is inspected in batches. A
	// transient failure of the scan restarts it with fresh counters; rows
	// repaired before the failure are healthy now and get skipped, so the
	// re-scan stays idempotent and the counts stay accurate.
	var wallets []models.Wallet
	err := utils.WithRetry(ctx, 3, func() error {
		*result = RepairResult{}
		return s.DB.WithContext(ctx).
			Order("address ASC").
			FindInBatches(&wallets, repairBatchSize, func(tx *gorm.DB, batch int) error {
				for _, w := range wallets {
					if err := ctx.Err(); err != nil {
						return err
					}
					needsCode := w.ReferralCode == nil || !utils.IsValidReferralCode(*w.ReferralCode)
					if !needsCode && !w.ReferralCodeRegenerated {
						continue
					}
					result.Examined++

					if !needsCode {
						// Stale flag from a repeated pass 1: the code is fine,
						// only the flag needs clearing.
						err := s.DB.WithContext(ctx).
							Model(&models.Wallet{}).
							Where("address = ?", w.Address).
							Update("referral_code_regenerated", false).Error
						if err != nil {
							log.Printf("❌ [REPAIR] Failed to clear flag on %s: %v", w.Address, err)
							result.Failed++
						} else {
							result.Cleared++
						}
						continue
					}

					if err := s.assignFreshCode(ctx, w.Address); err != nil {
						log.Printf("❌ [REPAIR] Failed to regenerate code for %s: %v", w.Address, err)
						result.Failed++
						continue
					}
					result.Regenerated++
				}
				return nil
			}).Error
	})
	if err != nil {
		return result, err
	}

	log.Printf("🔧 [REPAIR] Pass 2 done: %d examined, %d regenerated, %d cleared, %d failed",
		result.Examined, result.Regenerated, result.Cleared, result.Failed)
	return result, nil
}

// assignFreshCode updates one wallet with a newly generated code, retrying
// on uniqueness collisions exactly like registration does.
func (s *RepairService) assignFreshCode(ctx context.Context, address string) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.Wallets.GenerateCode()
		err := s.DB.WithContext(ctx).
			Model(&models.Wallet{}).
			Where("address = ?", address).
			Updates(map[string]interface{}{
				"referral_code":             code,
				"referral_code_regenerated": false,
			}).Error
		if err == nil {
			return nil
		}
		if !utils.IsUniqueViolation(err) || !strings.Contains(err.Error(), "referral_code") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(utils.CollisionBackoffDelay(attempt)):
		}
	}
	return ErrCodeSpaceExhausted
}

// RunRepair executes pass 1 then pass 2 and returns both summaries.
func (s *RepairService) RunRepair(ctx context.Context) (*RepairResult, *RepairResult, error) {
	nullify, err := s.NullifyDuplicateCodes(ctx)
	if err != nil {
		return nullify, nil, err
	}
	regen, err := s.RegenerateCodes(ctx)
	return nullify, regen, err
}

// RunRepairHandler handles POST /admin/repair.
func (s *RepairService) RunRepairHandler(c *fiber.Ctx) error {
	nullify, regen, err := s.RunRepair(c.UserContext())
	if err != nil {
		log.Printf("❌ [REPAIR] Manual repair run failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "repair run failed",
			"nullify": nullify,
			"regen":   regen,
		})
	}
	return c.JSON(fiber.Map{
		"nullify": nullify,
		"regen":   regen,
	})
}
