package server

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/patsnapops/piam-sub000/internal/admin"
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/forwarder"
	"github.com/patsnapops/piam-sub000/internal/manager"
	"github.com/patsnapops/piam-sub000/internal/metrics"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/state"
)

// TestMain initializes the (disabled, noop) metrics registry once so the
// handler's metric calls don't dereference a nil package var.
func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// deriveKeyIV and encryptYAML reproduce manager's AES-256-CBC encoding
// (see internal/manager/crypto.go) so this package's tests can stand up a
// fake manager endpoint without depending on manager's unexported helpers.
func deriveKeyIV(passphrase string) (key [32]byte, iv [16]byte) {
	var generated, previous []byte
	for len(generated) < len(key)+len(iv) {
		h := md5.New()
		h.Write(previous)
		h.Write([]byte(passphrase))
		previous = h.Sum(nil)
		generated = append(generated, previous...)
	}
	copy(key[:], generated[:32])
	copy(iv[:], generated[32:48])
	return key, iv
}

func encryptYAML(t *testing.T, v any, metaKey string) string {
	t.Helper()
	plain, err := yaml.Marshal(v)
	require.NoError(t, err)

	key, iv := deriveKeyIV(metaKey)
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)

	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(plain, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// fixture bundles the entities one shared end-to-end test scenario needs:
// an account reachable by a "-"-suffixed virtual access key, a user in a
// group, and a policy relationship binding that group to an object-storage
// policy allowing GetObject under "my-bucket/" but denying "my-bucket/deny/".
type fixture struct {
	account domain.Account
	user    domain.User
	group   domain.Group
	policy  domain.Policy[*objectstorage.Policy]
}

func newFixture() fixture {
	return fixture{
		account: domain.Account{ID: "acc-1", Code: "main", AccessKey: "AKIAACCOUNTMAIN", SecretKey: "accountsecret"},
		user:    domain.User{ID: "user-1", BaseAccessKey: "AKPSPERS01ABC", Kind: domain.UserKindPerson},
		group:   domain.Group{ID: "group-1", Name: "engineers"},
		policy: domain.Policy[*objectstorage.Policy]{
			ID: "policy-1",
			ModeledPolicy: &objectstorage.Policy{
				ID: "policy-1",
				InputPolicy: objectstorage.InputPolicy{
					Bucket: objectstorage.Bucket{
						Name:   &domain.StringMatcher{Eq: []string{"my-bucket"}},
						Effect: &domain.Effect{Kind: domain.EffectAllow},
					},
					Keys: []objectstorage.Key{
						{
							Path:   &domain.StringMatcher{StartWith: []string{"my-bucket/deny/"}},
							Effect: ptrEffect(domain.Deny()),
						},
						{
							Path: &domain.StringMatcher{StartWith: []string{"my-bucket/"}},
							Effect: &domain.Effect{
								Kind:      domain.EffectAllow,
								EmitEvent: &domain.EmitEvent{Metric: &domain.Metric{Address: "audit.s3"}},
							},
						},
					},
				},
			},
		},
	}
}

func ptrEffect(e domain.Effect) *domain.Effect { return &e }

// newFakeManagerServer serves fx's entities, all encrypted under metaKey.
func newFakeManagerServer(t *testing.T, metaKey string, fx fixture, proxyHosts []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(path string, payload string) {
		mux.HandleFunc("/v3/"+path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(payload))
		})
	}
	serve("accounts", encryptYAML(t, []domain.Account{fx.account}, metaKey))
	serve("users", encryptYAML(t, []domain.User{fx.user}, metaKey))
	serve("groups", encryptYAML(t, []domain.Group{fx.group}, metaKey))
	serve("policies/object_storage", encryptYAML(t, []domain.Policy[*objectstorage.Policy]{fx.policy}, metaKey))
	serve("policies/condition", encryptYAML(t, []domain.Policy[*domain.ConditionPolicy]{}, metaKey))
	serve("user_group_relationships", encryptYAML(t, []domain.UserGroupRelationship{
		{UserID: fx.user.ID, GroupID: fx.group.ID},
	}, metaKey))
	serve("policy_relationships", encryptYAML(t, []domain.PolicyRelationship{
		{AccountID: domain.Any, Region: domain.Any, GroupID: fx.group.ID, PolicyModel: domain.ObjectStorageModel, PolicyID: fx.policy.ID},
	}, metaKey))
	serve("extended_config/s3", encryptYAML(t, objectstorage.Config{ProxyHosts: proxyHosts}, metaKey))

	return httptest.NewServer(mux)
}

// dialingTransport always connects to addr regardless of the request's own
// host, letting tests intercept the rewritten upstream request (whose Host
// points at a hardcoded AWS/Tencent hostname that doesn't exist) without
// touching the network.
type dialingTransport struct {
	addr string
}

func (d dialingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, d.addr)
		},
	}
	defer t.CloseIdleConnections()
	return t.RoundTrip(req)
}

func newHandler(t *testing.T, mgrAddr string, upstreamAddr string, proxyHosts []string) *Handler {
	t.Helper()
	httpClient := &http.Client{}
	mgr := manager.New(mgrAddr, "test-meta-key", false, httpClient)
	sm := state.NewManager(state.Params{
		Manager:       mgr,
		HTTPClient:    httpClient,
		PolicyModel:   domain.ObjectStorageModel,
		UniKeyEnabled: false,
	}, slog.Default())
	sm.Initialize(context.Background())

	fwd := forwarder.New(&http.Client{Transport: dialingTransport{addr: upstreamAddr}}, slog.Default())
	return &Handler{
		State:      sm,
		Forwarder:  fwd,
		Logger:     slog.Default(),
		ProxyType:  "test-proxy",
		ClusterEnv: "test",
		Health:     &admin.HealthHandler{State: sm},
		ManageAPI:  &admin.DebugToggleHandler{Level: &slog.LevelVar{}},
	}
}

func newUpstream(t *testing.T) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var received []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Clone(r.Context()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	return srv, &received
}

func authHeader(accessKey, region string) string {
	return fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/20240101/%s/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=deadbeef",
		accessKey, region)
}

// Scenario 1: authorized GetObject is forwarded upstream with a fresh
// SigV4 signature computed from the owning account's real credentials.
func TestHandler_AuthorizedGetObject_ForwardedWithResignedSigV4(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().String()

	h := newHandler(t, mgrSrv.URL, upstreamAddr, []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://my-bucket.proxy.example.com/a/b.txt", nil)
	req.Host = "my-bucket.proxy.example.com"
	req.Header.Set("Authorization", authHeader("AKPSPERS01ABC-main", "cn-northwest-1"))
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *received, 1)
	got := (*received)[0]
	assert.Equal(t, "my-bucket.s3.cn-northwest-1.amazonaws.com.cn", got.Host)
	assert.Contains(t, got.Header.Get("Authorization"), "Credential=AKIAACCOUNTMAIN/")
	assert.Contains(t, got.Header.Get("Authorization"), "/cn-northwest-1/s3/aws4_request")
}

// Scenario 2: a Deny effect for the matched path rejects with 403 and
// PiamEffectNotFound, and the upstream is never called.
func TestHandler_DenyByPolicy_Returns403NoUpstreamCall(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://my-bucket.proxy.example.com/deny/secret.txt", nil)
	req.Host = "my-bucket.proxy.example.com"
	req.Header.Set("Authorization", authHeader("AKPSPERS01ABC-main", "cn-northwest-1"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "PiamEffectNotFound")
	assert.Empty(t, *received)
}

// Scenario 3: an unrecognized host is rejected with 400 PiamInvalidEndpoint.
func TestHandler_UnknownHost_Returns400(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://foo.unknown.tld/key", nil)
	req.Host = "foo.unknown.tld"
	req.Header.Set("Authorization", authHeader("AKPSPERS01ABC-main", "cn-northwest-1"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PiamInvalidEndpoint")
	assert.Empty(t, *received)
}

// Scenario 4 (ListBuckets under uni-key): a bare request to the configured
// proxy host with no bucket segment is rejected rather than forwarded. The
// bare host is also AdaptPathStyle's path-style trigger, so the concrete
// error kind observed here is whichever of ParserError/OperationNotSupported
// that precedence produces; what this scenario actually guards is that no
// such request ever reaches the upstream.
func TestHandler_BareProxyHost_RejectedNeverForwarded(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://proxy.example.com/", nil)
	req.Host = "proxy.example.com"
	req.Header.Set("Authorization", authHeader("AKPSPERS01ABC-main", "cn-northwest-1"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.Empty(t, *received)
}

// Scenario 5: a path-style request (bucket as the first path segment,
// rather than a subdomain) is adapted to virtual-hosted form and forwarded
// using the bucket-derived upstream host.
func TestHandler_PathStyleRewrite_AdaptedToVirtualHosted(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://proxy.example.com/my-bucket/a/b.txt", nil)
	req.Host = "proxy.example.com"
	req.Header.Set("Authorization", authHeader("AKPSPERS01ABC-main", "cn-northwest-1"))
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *received, 1)
	assert.Equal(t, "my-bucket.s3.cn-northwest-1.amazonaws.com.cn", (*received)[0].Host)
}

// /health and /_piam_manage_api are dispatched on the proxy listener itself,
// ahead of the S3 pipeline, per SPEC_FULL.md §6's external interface.
func TestHandler_HealthEndpoint_ServedOnProxyListener(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://proxy.example.com/health", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Empty(t, *received)
}

func TestHandler_ManageAPI_RequiresPUT(t *testing.T) {
	fx := newFixture()
	mgrSrv := newFakeManagerServer(t, "test-meta-key", fx, []string{"proxy.example.com"})
	defer mgrSrv.Close()
	upstream, received := newUpstream(t)
	defer upstream.Close()

	h := newHandler(t, mgrSrv.URL, upstream.Listener.Addr().String(), []string{"proxy.example.com"})

	getReq := httptest.NewRequest(http.MethodGet, "http://proxy.example.com/_piam_manage_api?debug=on", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusMethodNotAllowed, getRec.Code)

	putReq := httptest.NewRequest(http.MethodPut, "http://proxy.example.com/_piam_manage_api?debug=on", nil)
	putRec := httptest.NewRecorder()
	h.ServeHTTP(putRec, putReq)
	assert.Equal(t, http.StatusOK, putRec.Code)
	assert.Empty(t, *received)
}

// Scenario 6 (reload resilience — initialize() retries until success, and a
// failed per-interval update leaves the previous snapshot active and
// increments the failure counter) is exercised in internal/state's tests,
// where it can be driven directly against Manager.updateOnce without the
// 5-second retry cadence making an end-to-end run impractically slow here.
