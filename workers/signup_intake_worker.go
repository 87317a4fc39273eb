// workers/signup_intake_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"referral-service/services"
	"referral-service/utils"
)

// SignupSubmission is one signup pulled from the hosted signup service. The
// referral code is optional: direct signups register a wallet without a
// ledger credit.
type SignupSubmission struct {
	WalletAddress  string    `json:"wallet_address"`
	ReferredByCode string    `json:"referred_by_code,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// GetSignupsResponse is the top-level structure of the signup service response.
type GetSignupsResponse struct {
	Signups []SignupSubmission `json:"signups"`
}

// SignupIntakeWorker pulls signup submissions from the hosted signup service
// and replays them through the registration and credit protocols. Both are
// idempotent, so reprocessing a window after a failure is safe.
type SignupIntakeWorker struct {
	wallets      *services.WalletService
	referrals    *services.ReferralService
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewSignupIntakeWorker(wallets *services.WalletService, referrals *services.ReferralService, signupServiceBaseURL, serviceToken string) *SignupIntakeWorker {
	return &SignupIntakeWorker{
		wallets:      wallets,
		referrals:    referrals,
		interval:     1 * time.Minute,
		baseURL:      signupServiceBaseURL,
		endpointPath: "/api/v1/public/signups",
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *SignupIntakeWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Signup Intake Worker (signup-service → wallets/referrals)…")
	go w.run(ctx)
}

func (w *SignupIntakeWorker) run(ctx context.Context) {
	// Initial backfill window: one day, so a restart replays anything a
	// crashed instance may have dropped mid-batch.
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			batchStart := time.Now().UTC()
			if err := w.intakeBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ [INTAKE] Batch failed: %v", err)
				// Keep the window; the same signups are retried next tick.
				continue
			}
			lastSyncTime = batchStart
		case <-ctx.Done():
			log.Println("⏹️ Signup Intake Worker stopped")
			return
		}
	}
}

// intakeBatch fetches signups submitted since the cursor and persists each
// one. Persistence failures on individual signups fail the whole batch so the
// cursor does not advance past them.
func (w *SignupIntakeWorker) intakeBatch(ctx context.Context, since time.Time) error {
	signups, err := w.fetchSignups(ctx, since)
	if err != nil {
		return err
	}
	if len(signups) == 0 {
		return nil
	}

	log.Printf("[INTAKE] 📥 Processing %d signup(s) from signup service…", len(signups))

	var registered, credited, duplicates int
	for _, signup := range signups {
		err := utils.WithRetry(ctx, 3, func() error {
			_, created, rerr := w.wallets.RegisterWallet(ctx, signup.WalletAddress)
			if rerr != nil {
				return rerr
			}
			if created {
				registered++
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, services.ErrInvalidAddress) {
				log.Printf("[INTAKE] ⚠️ Skipping signup with malformed address %q", signup.WalletAddress)
				continue
			}
			return fmt.Errorf("failed to register wallet %s: %w", signup.WalletAddress, err)
		}

		if signup.ReferredByCode == "" {
			continue
		}
		err = utils.WithRetry(ctx, 3, func() error {
			_, _, rerr := w.referrals.RecordReferral(ctx, signup.ReferredByCode, signup.WalletAddress)
			return rerr
		})
		switch {
		case err == nil:
			credited++
		case errors.Is(err, services.ErrAlreadyReferred):
			duplicates++
		case errors.Is(err, services.ErrInvalidCode), errors.Is(err, services.ErrSelfReferral):
			log.Printf("[INTAKE] ⚠️ Dropping credit for %s: %v", signup.WalletAddress, err)
		default:
			return fmt.Errorf("failed to record referral for %s: %w", signup.WalletAddress, err)
		}
	}

	log.Printf("[INTAKE] ✅ Batch done: %d signup(s), %d new wallet(s), %d credit(s), %d duplicate(s)",
		len(signups), registered, credited, duplicates)
	return nil
}

func (w *SignupIntakeWorker) fetchSignups(ctx context.Context, since time.Time) ([]SignupSubmission, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signup service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to signup service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("signup service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetSignupsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode signup service response: %w", err)
	}
	return response.Signups, nil
}
