// Package manager fetches policy artifacts from the control-plane manager
// service: GET, base64-decode, AES-256 decrypt, YAML decode.
package manager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

const (
	version                = "v3"
	pathAccounts           = "accounts"
	pathUsers              = "users"
	pathGroups             = "groups"
	pathPolicies           = "policies"
	pathUserGroupRelations = "user_group_relationships"
	pathPolicyRelations    = "policy_relationships"
	pathExtendedConfig     = "extended_config"
)

func policiesPath(model string) string     { return fmt.Sprintf("%s/%s", pathPolicies, model) }
func extendedConfigPath(key string) string { return fmt.Sprintf("%s/%s", pathExtendedConfig, key) }

// Client fetches and decrypts resources from the manager control plane.
type Client struct {
	BaseAddress string
	MetaKey     string
	DevMode     bool
	HTTPClient  *http.Client
}

// New builds a Client; httpClient may be shared with other components.
func New(baseAddress, metaKey string, devMode bool, httpClient *http.Client) *Client {
	return &Client{BaseAddress: baseAddress, MetaKey: metaKey, DevMode: devMode, HTTPClient: httpClient}
}

func (c *Client) getResourceString(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.BaseAddress, version, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", proxyerrors.NewManagerApi("building request for %s: %v", url, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", proxyerrors.NewManagerApi("requesting %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", proxyerrors.NewManagerApi("reading response from %s: %v", url, err)
	}
	if resp.StatusCode >= 300 {
		return "", proxyerrors.NewManagerApi("manager returned status %d for %s", resp.StatusCode, url)
	}
	return string(body), nil
}

func getResource[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	raw, err := c.getResourceString(ctx, path)
	if err != nil {
		return zero, err
	}
	plain, err := decrypt(raw, c.MetaKey)
	if err != nil {
		return zero, proxyerrors.NewDeserialize("decrypting resource %s: %v", path, err)
	}
	var out T
	if err := yaml.Unmarshal([]byte(plain), &out); err != nil {
		return zero, proxyerrors.NewDeserialize("from: %s, payload: %q, error: %v", path, plain, err)
	}
	return out, nil
}

func devSubstitute(devMode bool, id string) string {
	if !devMode {
		return id
	}
	return strings.Replace(id, "dev", "prod", 1)
}
