package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-service/models"
	"referral-service/services"
)

var testDBCounter int64

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:handlerdb%d?mode=memory&cache=shared", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Wallet{}, &models.Referral{}, &models.Ambassador{}))

	walletService := services.NewWalletService(db)
	referralService := services.NewReferralService(db, walletService)
	leaderboardService := services.NewLeaderboardService(db)

	app := fiber.New()
	SetupWalletRoutes(app, walletService, leaderboardService)
	SetupReferralRoutes(app, referralService, leaderboardService)
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRegisterWalletEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)
	addr := "Addr1111111111111111111111111111"

	resp := postJSON(t, app, "/wallets", fiber.Map{"address": addr})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var first models.Wallet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	require.NotNil(t, first.ReferralCode)

	// Same submission again: 200 with the identical code.
	resp = postJSON(t, app, "/wallets", fiber.Map{"address": addr})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var second models.Wallet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, *first.ReferralCode, *second.ReferralCode)

	resp = postJSON(t, app, "/wallets", fiber.Map{"address": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetWalletEndpoint(t *testing.T) {
	app, db := setupTestApp(t)
	addr := "AddrHolder1111111111111111111111"

	resp := postJSON(t, app, "/wallets", fiber.Map{"address": addr})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var wallet models.Wallet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wallet))
	require.NotNil(t, wallet.ReferralCode)

	for _, referee := range []string{
		"AddrRefereeD11111111111111111111",
		"AddrRefereeE11111111111111111111",
	} {
		require.NoError(t, db.Create(&models.Referral{
			ReferredByCode:        *wallet.ReferralCode,
			ReferredWalletAddress: referee,
		}).Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/wallets/"+addr, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Referrals int64 `json:"referrals"`
		Points    int64 `json:"points"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, int64(2), payload.Referrals)
	assert.Equal(t, 2*services.PointsPerReferral, payload.Points)
}

func TestRecordReferralEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	body := fiber.Map{
		"referred_by_code":        "ABCD22",
		"referred_wallet_address": "AddrReferee111111111111111111111",
	}
	resp := postJSON(t, app, "/referrals", body)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Duplicate credit surfaces as a conflict, not a server error.
	resp = postJSON(t, app, "/referrals", body)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestLeaderboardEndpoint(t *testing.T) {
	app, db := setupTestApp(t)

	require.NoError(t, db.Create(&models.Referral{
		ReferredByCode:        "TOPP22",
		ReferredWalletAddress: "AddrReferee111111111111111111111",
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Leaderboard []services.LeaderboardEntry `json:"leaderboard"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Leaderboard, 1)
	assert.Equal(t, "TOPP22", payload.Leaderboard[0].Code)
	assert.Equal(t, services.PointsPerReferral, payload.Leaderboard[0].Points)
}
