package services

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

func setupTestConfig(t *testing.T) {
	t.Helper()
	prev := utils.Config
	cfg := &types.Config{}
	cfg.Api.DefaultRateLimit = 10
	cfg.Api.DefaultRateLimitBurst = 20
	cfg.Api.DefaultMaxConnections = 2
	cfg.Api.DefaultStatementTimeout = 5 * time.Second
	cfg.Api.MaxStatementTimeout = 30 * time.Second
	utils.Config = cfg
	t.Cleanup(func() { utils.Config = prev })
}

func newTestAccountService() *AccountService {
	return &AccountService{
		accounts: map[string]*accountState{},
		logger:   logrus.StandardLogger().WithField("module", "accounts"),
	}
}

func addTestAccount(service *AccountService, key string, limits AccountLimits) *accountState {
	state := &accountState{
		limits:  limits,
		limiter: rate.NewLimiter(rate.Limit(limits.RateLimit), int(limits.RateBurst)),
	}
	service.accounts[key] = state
	return state
}

func TestCheckRequestUnknownKey(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	if err := service.CheckRequest("nope"); !errors.Is(err, ErrUnknownApiKey) {
		t.Errorf("expected ErrUnknownApiKey, got %v", err)
	}
}

func TestCheckRequestAnonymousAllowed(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	if err := service.CheckRequest(""); err != nil {
		t.Errorf("anonymous access should use default limits, got %v", err)
	}
}

func TestCheckRequestAnonymousRequiresAuth(t *testing.T) {
	setupTestConfig(t)
	utils.Config.Api.RequireAuth = true
	service := newTestAccountService()
	if err := service.CheckRequest(""); !errors.Is(err, ErrUnknownApiKey) {
		t.Errorf("expected ErrUnknownApiKey with requireAuth, got %v", err)
	}
}

func TestCheckRequestDisabled(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	addTestAccount(service, "k1", AccountLimits{Disabled: true, RateLimit: 10, RateBurst: 10})
	if err := service.CheckRequest("k1"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestCheckRequestRateLimit(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	addTestAccount(service, "k1", AccountLimits{RateLimit: 1, RateBurst: 2})

	if err := service.CheckRequest("k1"); err != nil {
		t.Fatalf("first request should pass, got %v", err)
	}
	if err := service.CheckRequest("k1"); err != nil {
		t.Fatalf("second request within burst should pass, got %v", err)
	}
	if err := service.CheckRequest("k1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestAcquireStreamLimit(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	addTestAccount(service, "k1", AccountLimits{RateLimit: 10, RateBurst: 10, MaxConnections: 1})

	release, err := service.AcquireStream("k1")
	if err != nil {
		t.Fatalf("first stream should pass, got %v", err)
	}
	if _, err := service.AcquireStream("k1"); !errors.Is(err, ErrTooManyStreams) {
		t.Errorf("expected ErrTooManyStreams, got %v", err)
	}
	release()
	release() // idempotent
	if _, err := service.AcquireStream("k1"); err != nil {
		t.Errorf("slot should be free after release, got %v", err)
	}
}

func TestStatementTimeoutClamped(t *testing.T) {
	setupTestConfig(t)
	service := newTestAccountService()
	addTestAccount(service, "k1", AccountLimits{RateLimit: 10, RateBurst: 10, StatementTimeout: time.Minute})
	if got := service.StatementTimeout("k1"); got != 30*time.Second {
		t.Errorf("expected clamp to 30s, got %v", got)
	}
	if got := service.StatementTimeout(""); got != 5*time.Second {
		t.Errorf("expected default 5s for anonymous, got %v", got)
	}
}
