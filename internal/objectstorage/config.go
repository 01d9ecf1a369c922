package objectstorage

import (
	"strings"

	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// Config lists the DNS hostnames this proxy instance owns; virtual-hosted
// bucket requests arrive as "<bucket>.<proxy_host>" for one of these.
type Config struct {
	ProxyHosts []string `yaml:"proxy_hosts" json:"proxy_hosts"`
}

// DevProxyHost is appended to Config.ProxyHosts in dev mode.
const DevProxyHost = "s3-proxy.dev"

// Service names this extended-config resource under the manager's
// extended_config/<key> path.
const Service = "s3"

// FindProxyHost returns the configured proxy host that host ends with, or
// InvalidEndpoint if none matches.
func (c Config) FindProxyHost(host string) (string, error) {
	for _, v := range c.ProxyHosts {
		if strings.HasSuffix(host, v) {
			return v, nil
		}
	}
	return "", proxyerrors.NewInvalidEndpoint("%q is not ending with a valid piam s3 proxy endpoint", host)
}
