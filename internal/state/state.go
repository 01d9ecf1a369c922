// Package state owns ProxyState: the lock-free, atomically-swapped
// snapshot of everything a live request needs (iam container, extended
// config, uni-key index), refreshed from the manager on a fixed interval.
package state

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/patsnapops/piam-sub000/internal/iam"
	"github.com/patsnapops/piam-sub000/internal/manager"
	"github.com/patsnapops/piam-sub000/internal/metrics"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
	"github.com/patsnapops/piam-sub000/internal/unikey"
)

// Health tracks consecutive update failures and the last successful
// refresh, surfaced on the admin health endpoint.
type Health struct {
	UpdateFailedTimes        int32
	LastSuccessfulUpdateAt   time.Time
	LastSuccessfulUpdateSeen bool
}

// ProxyState is one immutable snapshot of everything a request handler
// reads. A new ProxyState entirely replaces the old one; nothing within
// it is mutated after construction.
type ProxyState struct {
	IamContainer   *iam.Container
	ExtendedConfig objectstorage.Config
	UniKeyInfo     *unikey.Info
}

// Params configure how a ProxyState is built from the manager.
type Params struct {
	Manager               *manager.Client
	HTTPClient            *http.Client
	PolicyModel           string
	DevMode               bool
	UniKeyEnabled         bool
	PinRegion             string
	PinEnv                string
	Pinned                bool
	ConfigFetchingTimeout time.Duration
}

func newProxyState(ctx context.Context, p Params) (*ProxyState, error) {
	accounts, err := p.Manager.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	users, err := p.Manager.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := p.Manager.GetGroups(ctx)
	if err != nil {
		return nil, err
	}
	userInputPolicies, err := p.Manager.GetObjectStoragePolicies(ctx, p.PolicyModel)
	if err != nil {
		return nil, err
	}
	conditionPolicies, err := p.Manager.GetConditionPolicies(ctx)
	if err != nil {
		return nil, err
	}
	userGroupRelationships, err := p.Manager.GetUserGroupRelationships(ctx)
	if err != nil {
		return nil, err
	}
	policyRelationships, err := p.Manager.GetPolicyRelationships(ctx)
	if err != nil {
		return nil, err
	}

	raw := iam.RawData{
		Accounts:               accounts,
		Users:                  users,
		Groups:                 groups,
		UserInputPolicies:      userInputPolicies,
		ConditionPolicies:      conditionPolicies,
		UserGroupRelationships: userGroupRelationships,
		PolicyRelationships:    policyRelationships,
	}
	if p.Pinned {
		raw = iam.Prefilter(raw, p.PinRegion, p.PinEnv)
	}

	extendedConfig, err := p.Manager.GetExtendedConfig(ctx, objectstorage.Service)
	if err != nil {
		return nil, err
	}
	if p.DevMode {
		extendedConfig.ProxyHosts = append(extendedConfig.ProxyHosts, objectstorage.DevProxyHost)
	}

	var uniKeyInfo *unikey.Info
	if p.UniKeyEnabled {
		uniKeyInfo, err = unikey.Build(ctx, accounts, p.HTTPClient, p.ConfigFetchingTimeout)
		if err != nil {
			return nil, err
		}
		metrics.UniKeyBucketsIndexed.Set(float64(uniKeyInfo.BucketCount()))
	}

	return &ProxyState{
		IamContainer:   iam.New(raw),
		ExtendedConfig: extendedConfig,
		UniKeyInfo:     uniKeyInfo,
	}, nil
}

// Manager owns the current ProxyState behind an atomic.Pointer and
// refreshes it from the control-plane manager on a fixed interval,
// replacing Rust's arc-swap with Go's equivalent lock-free swap.
type Manager struct {
	params Params
	logger *slog.Logger

	state  atomic.Pointer[ProxyState]
	health atomic.Pointer[Health]
}

// NewManager constructs a Manager. Call Initialize before Current is ever
// read.
func NewManager(params Params, logger *slog.Logger) *Manager {
	m := &Manager{params: params, logger: logger}
	m.health.Store(&Health{})
	return m
}

// Initialize blocks, retrying on a fixed 5-second cadence, until the first
// ProxyState is fetched successfully. In dev mode, from the third failed
// attempt on (retries > 1), each failure additionally sleeps retries*5
// seconds before the fixed wait,
// matching the original's deliberately non-exponential backoff.
func (m *Manager) Initialize(ctx context.Context) {
	const retryInterval = 5 * time.Second
	var retries int
	for {
		s, err := newProxyState(ctx, m.params)
		if err == nil {
			m.state.Store(s)
			m.recordSuccess()
			metrics.StateUpdatesTotal.WithLabelValues("success").Inc()
			return
		}
		if pe, ok := asFatal(err); ok {
			proxyerrors.Fatal(m.logger, pe)
		}
		m.logger.Warn("ProxyState initialization failed", "error", err, "retries", retries)
		metrics.StateUpdatesTotal.WithLabelValues("failure").Inc()
		if m.params.DevMode && retries > 1 {
			time.Sleep(time.Duration(retries) * 5 * time.Second)
		}
		time.Sleep(retryInterval)
		retries++
	}
}

// RunUpdateLoop refreshes the state every interval until
// ctx is canceled. Meant to run in its own goroutine.
func (m *Manager) RunUpdateLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateOnce(ctx)
		}
	}
}

func (m *Manager) updateOnce(ctx context.Context) {
	s, err := newProxyState(ctx, m.params)
	if err != nil {
		if pe, ok := asFatal(err); ok {
			proxyerrors.Fatal(m.logger, pe)
		}
		m.logger.Warn("ProxyState updating failed", "error", err)
		h := *m.health.Load()
		h.UpdateFailedTimes++
		m.health.Store(&h)
		metrics.StateUpdatesTotal.WithLabelValues("failure").Inc()
		metrics.StateUpdateFailuresTotal.Inc()
		return
	}
	m.state.Store(s)
	m.recordSuccess()
	metrics.StateUpdatesTotal.WithLabelValues("success").Inc()
}

func (m *Manager) recordSuccess() {
	now := time.Now()
	m.health.Store(&Health{LastSuccessfulUpdateAt: now, LastSuccessfulUpdateSeen: true})
	metrics.StateLastSuccessUnix.Set(float64(now.Unix()))
}

// Current returns the latest ProxyState snapshot. Safe for concurrent use
// from any number of request-handling goroutines.
func (m *Manager) Current() *ProxyState {
	return m.state.Load()
}

// CurrentHealth returns the latest update-health snapshot.
func (m *Manager) CurrentHealth() Health {
	return *m.health.Load()
}

// asFatal reports whether err is a ProxyError whose kind means the process
// must terminate rather than retry.
func asFatal(err error) (*proxyerrors.ProxyError, bool) {
	var pe *proxyerrors.ProxyError
	if errors.As(err, &pe) && pe.IsFatal() {
		return pe, true
	}
	return nil, false
}
