// Package server implements the S3-compatible reverse proxy's request
// pipeline: parse, authenticate, authorize, transform, sign, forward.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patsnapops/piam-sub000/internal/admin"
	"github.com/patsnapops/piam-sub000/internal/analytics"
	"github.com/patsnapops/piam-sub000/internal/analytics/dto"
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/evaluator"
	"github.com/patsnapops/piam-sub000/internal/forwarder"
	"github.com/patsnapops/piam-sub000/internal/iam"
	"github.com/patsnapops/piam-sub000/internal/metrics"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
	"github.com/patsnapops/piam-sub000/internal/signer"
	"github.com/patsnapops/piam-sub000/internal/state"
	"github.com/patsnapops/piam-sub000/internal/transform"
)

// Handler is the top-level http.Handler implementing the proxy pipeline.
type Handler struct {
	State      *state.Manager
	Forwarder  *forwarder.Forwarder
	Logger     *slog.Logger
	ProxyType  string
	ClusterEnv string

	// UniKeyEnabled selects how an account is resolved: by bucket ownership
	// (uni-key) or by a suffix encoded in the access key itself.
	UniKeyEnabled bool
	// TencentEnabled selects Tencent COS request parsing for requests whose
	// User-Agent identifies a Tencent SDK client.
	TencentEnabled bool

	// Analytics publishes one Event per allowed request carrying an
	// emit_event.metric sink. Nil disables publishing entirely.
	Analytics *analytics.Analytics

	// Health and ManageAPI serve the health probe and the debug-level
	// toggle on this same listener, ahead of the S3 pipeline, per
	// SPEC_FULL.md §6's external interface.
	Health    *admin.HealthHandler
	ManageAPI *admin.DebugToggleHandler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		h.Health.ServeHTTP(w, r)
		return
	case "/_piam_manage_api":
		h.ManageAPI.ServeHTTP(w, r)
		return
	}

	requestID := uuid.NewString()
	st := h.State.Current()
	start := time.Now()

	resp, action, perr := h.handle(r, st)
	metrics.RequestDurationSeconds.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if perr != nil {
		metrics.RequestsTotal.WithLabelValues(action, "error").Inc()
		metrics.RequestErrorsTotal.WithLabelValues(string(perr.Kind)).Inc()
		if perr.IsFatal() {
			proxyerrors.Fatal(h.Logger, perr)
		}
		perr.WriteHTTP(w, h.Logger, h.ProxyType, h.ClusterEnv, requestID)
		return
	}
	metrics.RequestsTotal.WithLabelValues(action, "success").Inc()
	defer resp.Body.Close()

	proxyerrors.AddPiamHeaders(w.Header(), h.ProxyType, h.ClusterEnv, requestID)
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.Logger.Warn("copying upstream response body failed", "error", err, "request_id", requestID)
	}
}

func (h *Handler) handle(r *http.Request, st *state.ProxyState) (*http.Response, string, *proxyerrors.ProxyError) {
	h.Logger.Debug("incoming request", "method", r.Method, "host", r.Host, "url", r.URL.String())
	requestStart := time.Now()

	if err := transform.AdaptPathStyle(r, st.ExtendedConfig.ProxyHosts); err != nil {
		return nil, "unknown", asProxyError(err)
	}

	var input objectstorage.ObjectStorageInput
	var err error
	if h.TencentEnabled && objectstorage.IsTencentRequest(r) {
		input, err = objectstorage.ParseTencent(r, st.ExtendedConfig)
	} else {
		input, err = objectstorage.ParseS3(r, st.ExtendedConfig)
	}
	if err != nil {
		return nil, "unknown", asProxyError(err)
	}
	action := string(input.Action)

	accessKey, sigRegion, err := signer.ExtractAccessKeyAndRegion(r)
	if err != nil {
		return nil, action, asProxyError(err)
	}

	account, region, baseAccessKey, err := h.resolveAccount(st, input, accessKey, sigRegion)
	if err != nil {
		return nil, action, asProxyError(err)
	}

	user, err := st.IamContainer.FindUserByBaseAccessKey(baseAccessKey)
	if err != nil {
		return nil, action, asProxyError(err)
	}
	groups, err := st.IamContainer.FindGroupsByUser(user)
	if err != nil {
		return nil, action, asProxyError(err)
	}

	found, err := st.IamContainer.FindPolicies(iam.FilterParams{
		Account:      account,
		TargetRegion: region,
		Groups:       groups,
	})
	if err != nil {
		return nil, action, asProxyError(err)
	}

	evalStart := time.Now()
	decision, evalErr := evaluator.Evaluate(input, found.UserInput)
	metrics.PolicyDurationSeconds.WithLabelValues(action).Observe(time.Since(evalStart).Seconds())
	if evalErr != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues("deny").Inc()
		metrics.DeniedRequestsTotal.WithLabelValues(action, account.ID).Inc()
		return nil, action, asProxyError(evalErr)
	}
	metrics.PolicyEvaluationsTotal.WithLabelValues("allow").Inc()
	h.aggregate(r, decision, input, account, region, requestStart)

	if err := transform.SetActualHost(r, st.ExtendedConfig, region); err != nil {
		return nil, action, asProxyError(err)
	}

	if err := signer.SignSigV4(r.Context(), r, signer.SignParams{
		Account: account,
		Service: objectstorage.Service,
		Region:  region,
	}); err != nil {
		return nil, action, asProxyError(err)
	}

	upstreamStart := time.Now()
	resp, err := h.Forwarder.Forward(r)
	metrics.UpstreamLatencySeconds.WithLabelValues(region).Observe(time.Since(upstreamStart).Seconds())
	if err != nil {
		return nil, action, asProxyError(err)
	}
	return resp, action, nil
}

// resolveAccount determines the destination account, signing region and
// the base access key to look up a User with. Under uni-key, the bucket
// determines the account and region (the signing region only breaks ties
// between accounts owning the same bucket name); otherwise the caller's access
// key must itself encode the destination account's code.
func (h *Handler) resolveAccount(st *state.ProxyState, input objectstorage.ObjectStorageInput, accessKey, sigRegion string) (domain.Account, string, string, error) {
	if h.UniKeyEnabled {
		access, err := st.UniKeyInfo.FindAccessInfo(input, sigRegion)
		if err != nil {
			return domain.Account{}, "", "", err
		}
		return access.Account, access.Region, accessKey, nil
	}

	baseAccessKey, code, err := splitAccessKey(accessKey)
	if err != nil {
		return domain.Account{}, "", "", err
	}
	account, err := st.IamContainer.FindAccountByCode(code)
	if err != nil {
		return domain.Account{}, "", "", err
	}
	return account, sigRegion, baseAccessKey, nil
}

// splitAccessKey splits a non-uni-key virtual access key into its
// base-access-key and trailing account-code suffix, joined by "-".
func splitAccessKey(accessKey string) (base, code string, err error) {
	base, code, ok := strings.Cut(accessKey, "-")
	if !ok {
		return "", "", proxyerrors.NewInvalidAccessKey(
			"access key %q does not encode a base access key and account code", accessKey)
	}
	return base, code, nil
}

// aggregate fires each distinct emit_event.metric through the analytics
// publisher and each distinct emit_event.log as a structured log field, per
// the allowed decision's collected EmitEvents.
func (h *Handler) aggregate(r *http.Request, decision evaluator.Decision, input objectstorage.ObjectStorageInput, account domain.Account, region string, requestStart time.Time) {
	seenMetrics := make(map[string]bool)
	seenLogs := make(map[string]bool)
	for _, ee := range decision.EmitEvents {
		if ee.Metric != nil && !seenMetrics[ee.Metric.Address] {
			seenMetrics[ee.Metric.Address] = true
			if h.Analytics != nil {
				h.Analytics.Record(&dto.Event{
					RequestTimestamp: requestStart,
					MetricAddress:    ee.Metric.Address,
					Account:          account.ID,
					Action:           string(input.Action),
					Bucket:           input.Bucket,
					Key:              input.Key,
					Region:           region,
					UserAgent:        r.UserAgent(),
					LatencyMs:        time.Since(requestStart).Milliseconds(),
				})
			}
		}
		if ee.Log != nil && !seenLogs[ee.Log.Address] {
			seenLogs[ee.Log.Address] = true
			h.Logger.Info("policy emit_event.log", "address", ee.Log.Address, "action", input.Action, "bucket", input.Bucket)
		}
	}
}

func asProxyError(err error) *proxyerrors.ProxyError {
	var pe *proxyerrors.ProxyError
	if perr, ok := err.(*proxyerrors.ProxyError); ok {
		pe = perr
	} else {
		pe = proxyerrors.NewOtherInternal("%v", err)
	}
	return pe
}
