// Package transform rewrites an incoming request so it can be forwarded
// to the real object storage endpoint: path-style addressing is promoted
// to virtual-hosted style, then Host/URL are swapped to the resolved
// region's actual upstream host.
package transform

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// FromRegionToHost maps a resolved region to the real upstream host that
// serves it. Grounded on s3-proxy's region/endpoint table: AWS regions
// route to their native S3 endpoint, Tencent regions to COS.
func FromRegionToHost(region string) (string, error) {
	switch region {
	case "cn-northwest-1":
		return "s3.cn-northwest-1.amazonaws.com.cn", nil
	case "us-east-1":
		return "s3.us-east-1.amazonaws.com", nil
	case "eu-central-1":
		return "s3.eu-central-1.amazonaws.com", nil
	case "ap-shanghai":
		return "cos.ap-shanghai.myqcloud.com", nil
	case "na-ashburn":
		return "cos.na-ashburn.myqcloud.com", nil
	default:
		return "", proxyerrors.NewInvalidRegion("unsupported region: %s", region)
	}
}

// FromRegionToEndpoint is FromRegionToHost wrapped in an http:// scheme,
// used when building an SDK client endpoint override (Tencent COS).
func FromRegionToEndpoint(region string) (string, error) {
	host, err := FromRegionToHost(region)
	if err != nil {
		return "", err
	}
	return "http://" + host, nil
}

// AdaptPathStyle rewrites a path-style request (host == proxy host, bucket
// as the URL's first path segment) into virtual-hosted style (bucket
// prepended to Host, removed from the path). No-op if req.Host isn't one
// of proxyHosts.
func AdaptPathStyle(req *http.Request, proxyHosts []string) error {
	host := req.Host
	isProxyHost := false
	for _, ph := range proxyHosts {
		if host == ph {
			isProxyHost = true
			break
		}
	}
	if !isProxyHost {
		return nil
	}

	path := req.URL.Path
	bucket, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if bucket == "" {
		return proxyerrors.NewParserError("path should start with /<bucket>, but got %s", path)
	}

	withoutBucket := strings.TrimPrefix(path, "/"+bucket)
	if withoutBucket == "" {
		withoutBucket = "/"
	}
	req.URL.Path = withoutBucket
	req.URL.RawPath = ""

	newHost := fmt.Sprintf("%s.%s", bucket, host)
	req.Host = newHost
	req.Header.Set("Host", newHost)
	return nil
}

// SetActualHost rewrites Host and URL to point at the real upstream host
// serving region, preserving whatever bucket-dot-prefix the virtual-hosted
// Host already carries.
func SetActualHost(req *http.Request, config objectstorage.Config, region string) error {
	host := req.Host
	proxyHost, err := config.FindProxyHost(host)
	if err != nil {
		return err
	}
	bucketDot, ok := strings.CutSuffix(host, proxyHost)
	if !ok {
		return proxyerrors.NewInvalidEndpoint("host %s should end with %s", host, proxyHost)
	}

	actualHost, err := FromRegionToHost(region)
	if err != nil {
		return err
	}
	newHost := bucketDot + actualHost
	req.Host = newHost
	req.Header.Set("Host", newHost)

	req.URL.Scheme = "http"
	req.URL.Host = newHost
	return nil
}
