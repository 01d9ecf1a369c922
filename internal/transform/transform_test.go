package transform

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patsnapops/piam-sub000/internal/objectstorage"
)

func TestFromRegionToHost(t *testing.T) {
	cases := []struct {
		region   string
		wantHost string
	}{
		{"cn-northwest-1", "s3.cn-northwest-1.amazonaws.com.cn"},
		{"us-east-1", "s3.us-east-1.amazonaws.com"},
		{"eu-central-1", "s3.eu-central-1.amazonaws.com"},
		{"ap-shanghai", "cos.ap-shanghai.myqcloud.com"},
		{"na-ashburn", "cos.na-ashburn.myqcloud.com"},
	}
	for _, c := range cases {
		got, err := FromRegionToHost(c.region)
		require.NoError(t, err)
		assert.Equal(t, c.wantHost, got)
	}

	_, err := FromRegionToHost("mars-1")
	assert.Error(t, err)
}

func TestFromRegionToEndpoint(t *testing.T) {
	got, err := FromRegionToEndpoint("ap-shanghai")
	require.NoError(t, err)
	assert.Equal(t, "http://cos.ap-shanghai.myqcloud.com", got)

	_, err = FromRegionToEndpoint("mars-1")
	assert.Error(t, err)
}

func TestAdaptPathStyle_NotAProxyHost_NoOp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://bucket.s3-proxy.example.com/key", nil)
	req.Host = "bucket.s3-proxy.example.com"

	err := AdaptPathStyle(req, []string{"s3-proxy.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bucket.s3-proxy.example.com", req.Host)
	assert.Equal(t, "/key", req.URL.Path)
}

func TestAdaptPathStyle_RewritesPathStyleToVirtualHosted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://s3-proxy.example.com/reports/2024/q1.csv", nil)
	req.Host = "s3-proxy.example.com"

	err := AdaptPathStyle(req, []string{"s3-proxy.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "reports.s3-proxy.example.com", req.Host)
	assert.Equal(t, "reports.s3-proxy.example.com", req.Header.Get("Host"))
	assert.Equal(t, "/2024/q1.csv", req.URL.Path)
}

func TestAdaptPathStyle_BucketOnly_PathBecomesRoot(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://s3-proxy.example.com/reports", nil)
	req.Host = "s3-proxy.example.com"

	err := AdaptPathStyle(req, []string{"s3-proxy.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "reports.s3-proxy.example.com", req.Host)
	assert.Equal(t, "/", req.URL.Path)
}

func TestAdaptPathStyle_EmptyPath_ParserError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://s3-proxy.example.com/", nil)
	req.Host = "s3-proxy.example.com"

	err := AdaptPathStyle(req, []string{"s3-proxy.example.com"})
	assert.Error(t, err)
}

func TestSetActualHost_RewritesToUpstreamPreservingBucketPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://reports.s3-proxy.example.com/2024/q1.csv", nil)
	req.Host = "reports.s3-proxy.example.com"

	cfg := objectstorage.Config{ProxyHosts: []string{"s3-proxy.example.com"}}
	err := SetActualHost(req, cfg, "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, "reports.s3.us-east-1.amazonaws.com", req.Host)
	assert.Equal(t, "reports.s3.us-east-1.amazonaws.com", req.URL.Host)
	assert.Equal(t, "http", req.URL.Scheme)
}

func TestSetActualHost_UnknownProxyHost_InvalidEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://reports.unknown-host.example.com/key", nil)
	req.Host = "reports.unknown-host.example.com"

	cfg := objectstorage.Config{ProxyHosts: []string{"s3-proxy.example.com"}}
	err := SetActualHost(req, cfg, "us-east-1")
	assert.Error(t, err)
}

func TestSetActualHost_UnknownRegion_InvalidRegion(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://reports.s3-proxy.example.com/key", nil)
	req.Host = "reports.s3-proxy.example.com"

	cfg := objectstorage.Config{ProxyHosts: []string{"s3-proxy.example.com"}}
	err := SetActualHost(req, cfg, "mars-1")
	assert.Error(t, err)
}
