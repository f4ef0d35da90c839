package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/utils"
)

var (
	ErrUnknownApiKey   = errors.New("unknown api key")
	ErrAccountDisabled = errors.New("account disabled")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrTooManyStreams  = errors.New("live query connection limit exceeded")
)

// AccountLimits are the effective limits for one api key after defaults
// are merged in.
type AccountLimits struct {
	Name             string
	RateLimit        uint
	RateBurst        uint
	MaxConnections   uint
	StatementTimeout time.Duration
	Disabled         bool
}

type accountState struct {
	limits  AccountLimits
	limiter *rate.Limiter
	streams uint
}

// AccountService resolves api keys to execution limits. The account table
// is refreshed periodically; limiter state survives a refresh so reloading
// does not reset rate windows.
type AccountService struct {
	mutex    sync.Mutex
	accounts map[string]*accountState
	logger   logrus.FieldLogger

	rejectedCounter *prometheus.CounterVec
	streamsGauge    prometheus.Gauge
}

var GlobalAccountService *AccountService

func (service *AccountService) reject(reason string) {
	if service.rejectedCounter != nil {
		service.rejectedCounter.WithLabelValues(reason).Inc()
	}
}

func StartAccountService(ctx context.Context, logger logrus.FieldLogger) error {
	if GlobalAccountService != nil {
		return nil
	}
	service := &AccountService{
		accounts: map[string]*accountState{},
		logger:   logger.WithField("module", "accounts"),
		rejectedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_axe_requests_rejected_total",
			Help: "Requests rejected before execution",
		}, []string{"reason"}),
		streamsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "golden_axe_live_streams",
			Help: "Open live query streams",
		}),
	}
	if err := service.refresh(); err != nil {
		return err
	}
	go service.refreshLoop(ctx)
	GlobalAccountService = service
	return nil
}

func defaultLimits() AccountLimits {
	cfg := &utils.Config.Api
	return AccountLimits{
		RateLimit:        cfg.DefaultRateLimit,
		RateBurst:        cfg.DefaultRateLimitBurst,
		MaxConnections:   cfg.DefaultMaxConnections,
		StatementTimeout: cfg.DefaultStatementTimeout,
	}
}

func (service *AccountService) refreshLoop(ctx context.Context) {
	defer utils.HandleSubroutinePanic("accounts.refresh")
	interval := utils.Config.Api.AccountsRefreshInterval
	if interval == 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := service.refresh(); err != nil {
				service.logger.WithError(err).Error("could not refresh api accounts")
			}
		}
	}
}

func (service *AccountService) refresh() error {
	accounts, err := db.GetApiAccounts()
	if err != nil {
		return err
	}
	service.mutex.Lock()
	defer service.mutex.Unlock()
	seen := map[string]bool{}
	for _, account := range accounts {
		limits := AccountLimits{
			Name:             account.Name,
			RateLimit:        uint(account.RateLimit),
			MaxConnections:   uint(account.MaxConnections),
			StatementTimeout: time.Duration(account.StatementTimeoutMs) * time.Millisecond,
			Disabled:         account.Disabled,
		}
		// unset account fields fall back to the configured defaults
		if err := mergo.Merge(&limits, defaultLimits()); err != nil {
			return err
		}
		seen[account.Key] = true
		state := service.accounts[account.Key]
		if state == nil {
			service.accounts[account.Key] = &accountState{
				limits:  limits,
				limiter: rate.NewLimiter(rate.Limit(limits.RateLimit), int(limits.RateBurst)),
			}
			continue
		}
		if state.limits != limits {
			state.limiter.SetLimit(rate.Limit(limits.RateLimit))
			state.limiter.SetBurst(int(limits.RateBurst))
			state.limits = limits
		}
	}
	for key := range service.accounts {
		if key != "" && !seen[key] {
			delete(service.accounts, key)
		}
	}
	return nil
}

// resolve returns the state for a key. An empty key maps to the shared
// anonymous account unless authentication is required.
func (service *AccountService) resolve(key string) (*accountState, error) {
	state := service.accounts[key]
	if state != nil {
		return state, nil
	}
	if key != "" || utils.Config.Api.RequireAuth {
		return nil, ErrUnknownApiKey
	}
	// lazily created shared state for unauthenticated callers
	limits := defaultLimits()
	state = &accountState{
		limits:  limits,
		limiter: rate.NewLimiter(rate.Limit(limits.RateLimit), int(limits.RateBurst)),
	}
	service.accounts[key] = state
	return state, nil
}

// CheckRequest applies the account's admission checks for one request.
func (service *AccountService) CheckRequest(key string) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	state, err := service.resolve(key)
	if err != nil {
		service.reject("unknown_key")
		return err
	}
	if state.limits.Disabled {
		service.reject("disabled")
		return ErrAccountDisabled
	}
	if !state.limiter.Allow() {
		service.reject("rate_limited")
		return ErrRateLimited
	}
	return nil
}

// StatementTimeout is the effective statement timeout for a key, clamped
// to the configured maximum.
func (service *AccountService) StatementTimeout(key string) time.Duration {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	state, err := service.resolve(key)
	if err != nil {
		return utils.Config.Api.DefaultStatementTimeout
	}
	return utils.StatementTimeout(state.limits.StatementTimeout)
}

// AcquireStream reserves a live query slot for the key. The returned
// release function must be called when the stream closes.
func (service *AccountService) AcquireStream(key string) (func(), error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	state, err := service.resolve(key)
	if err != nil {
		return nil, err
	}
	if state.limits.MaxConnections > 0 && state.streams >= state.limits.MaxConnections {
		service.reject("too_many_streams")
		return nil, ErrTooManyStreams
	}
	state.streams++
	if service.streamsGauge != nil {
		service.streamsGauge.Inc()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			service.mutex.Lock()
			state.streams--
			service.mutex.Unlock()
			if service.streamsGauge != nil {
				service.streamsGauge.Dec()
			}
		})
	}, nil
}
