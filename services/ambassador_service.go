package services

import (
	"errors"
	"log"
	"strings"

	"referral-service/models"
	"referral-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type AmbassadorService struct {
	DB *gorm.DB
}

func NewAmbassadorService(db *gorm.DB) *AmbassadorService {
	return &AmbassadorService{DB: db}
}

type createAmbassadorRequest struct {
	WalletAddress string `json:"wallet_address"`
	DisplayName   string `json:"display_name"`
	BadMonths     int    `json:"bad_months"`
}

// CreateAmbassador handles POST /admin/ambassadors. The shareable handle is
// slugged from the display name; both the handle and the wallet address are
// unique per ambassador.
func (s *AmbassadorService) CreateAmbassador(c *fiber.Ctx) error {
	var req createAmbassadorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if !utils.IsValidWalletAddress(req.WalletAddress) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid wallet address"})
	}
	if req.DisplayName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name is required"})
	}
	if req.BadMonths < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_months cannot be negative"})
	}

	amb := &models.Ambassador{
		ID:            uuid.NewString(),
		WalletAddress: req.WalletAddress,
		DisplayName:   req.DisplayName,
		Handle:        slug.Make(req.DisplayName),
		BadMonths:     req.BadMonths,
	}
	if err := s.DB.WithContext(c.UserContext()).Create(amb).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "ambassador already exists for this wallet or handle",
			})
		}
		log.Printf("❌ [AMBASSADOR] Failed to create %s: %v", req.WalletAddress, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create ambassador"})
	}
	return c.Status(fiber.StatusCreated).JSON(amb)
}

type updateAmbassadorRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	BadMonths   *int    `json:"bad_months,omitempty"`
}

// UpdateAmbassador handles PATCH /admin/ambassadors/:id. Only the display
// name (and its derived handle) and the curated bad-month count can change;
// the wallet binding and creation time are immutable.
func (s *AmbassadorService) UpdateAmbassador(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid ambassador ID"})
	}

	var amb models.Ambassador
	if err := s.DB.WithContext(c.UserContext()).First(&amb, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "ambassador not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req updateAmbassadorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name cannot be empty"})
		}
		amb.DisplayName = name
		amb.Handle = slug.Make(name)
	}
	if req.BadMonths != nil {
		if *req.BadMonths < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_months cannot be negative"})
		}
		amb.BadMonths = *req.BadMonths
	}

	if err := s.DB.WithContext(c.UserContext()).Save(&amb).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "handle already in use"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update ambassador"})
	}
	return c.JSON(amb)
}

// ListAmbassadors handles GET /admin/ambassadors.
func (s *AmbassadorService) ListAmbassadors(c *fiber.Ctx) error {
	var ambassadors []models.Ambassador
	if err := s.DB.WithContext(c.UserContext()).
		Order("created_at ASC").
		Find(&ambassadors).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(ambassadors)
}

// DeleteAmbassador handles DELETE /admin/ambassadors/:id.
func (s *AmbassadorService) DeleteAmbassador(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid ambassador ID"})
	}
	res := s.DB.WithContext(c.UserContext()).Delete(&models.Ambassador{}, "id = ?", id)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "ambassador not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
