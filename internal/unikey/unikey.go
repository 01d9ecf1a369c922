// Package unikey implements the s3-proxy's uni-key feature: resolving a
// bucket name to the single (account, region) pair that owns it, so one
// shared access key can reach buckets scattered across many accounts and
// regions without the caller naming either.
package unikey

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/metrics"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
	"github.com/patsnapops/piam-sub000/internal/transform"
)

// ipProvider answers with the caller's public IP, plain text, used only to
// enrich the error raised when listing a account's buckets fails (usually
// an IP-whitelist misconfiguration on the account side).
const ipProvider = "http://cip.cc"

// AccessInfo is the account, region and (for Tencent) endpoint override
// that owns one bucket.
type AccessInfo struct {
	Account domain.Account
	Region  string
	// Endpoint is set only for non-AWS accounts needing an explicit
	// endpoint override (Tencent COS).
	Endpoint string
}

// Info maps a bucket name to every AccessInfo that owns a bucket by that
// name, rebuilt from a live ListBuckets sweep of every configured account
// each time a ProxyState is built (at startup and on every refresh).
type Info struct {
	byBucket map[string][]AccessInfo
}

// FindAccessInfo resolves input's bucket to the one AccessInfo that owns
// it. ListBuckets requests are never supported under uni-key: there is no
// bucket name to resolve against. When a bucket name is owned by more than
// one account, region disambiguates; with no match, ResourceNotFound.
func (i *Info) FindAccessInfo(input objectstorage.ObjectStorageInput, region string) (*AccessInfo, error) {
	if input.Kind() == objectstorage.KindListBuckets {
		metrics.UniKeyLookupsTotal.WithLabelValues("unsupported").Inc()
		return nil, proxyerrors.NewOperationNotSupported("ListBuckets not supported due to uni-key feature")
	}
	candidates, ok := i.byBucket[input.Bucket]
	if !ok {
		metrics.UniKeyLookupsTotal.WithLabelValues("not_found").Inc()
		return nil, proxyerrors.NewResourceNotFound("access info not found for bucket: %s", input.Bucket)
	}
	if len(candidates) == 1 {
		metrics.UniKeyLookupsTotal.WithLabelValues("found").Inc()
		return &candidates[0], nil
	}
	for _, c := range candidates {
		if c.Region == region {
			metrics.UniKeyLookupsTotal.WithLabelValues("found").Inc()
			return &c, nil
		}
	}
	metrics.UniKeyLookupsTotal.WithLabelValues("ambiguous").Inc()
	return nil, proxyerrors.NewResourceNotFound(
		"there are more than one buckets with the same name in multiple regions, "+
			"access info not found for bucket: %s in region: %s", input.Bucket, region)
}

// BucketCount reports how many distinct bucket names are indexed.
func (i *Info) BucketCount() int {
	return len(i.byBucket)
}

// accessInfoFromAccount derives the fixed (region, optional endpoint) an
// account id prefix maps to. Account ids not matching a known prefix are
// an AssertFail: the account list is expected to be curated for this
// proxy's supported regions.
func accessInfoFromAccount(account domain.Account) (AccessInfo, error) {
	switch {
	case strings.HasPrefix(account.ID, "cn_aws"):
		return AccessInfo{Account: account, Region: "cn-northwest-1"}, nil
	case strings.HasPrefix(account.ID, "us_aws"):
		return AccessInfo{Account: account, Region: "us-east-1"}, nil
	case strings.HasPrefix(account.ID, "cn_tencent"):
		ep, err := transform.FromRegionToEndpoint("ap-shanghai")
		if err != nil {
			return AccessInfo{}, err
		}
		return AccessInfo{Account: account, Region: "ap-shanghai", Endpoint: ep}, nil
	case strings.HasPrefix(account.ID, "us_tencent"):
		ep, err := transform.FromRegionToEndpoint("na-ashburn")
		if err != nil {
			return AccessInfo{}, err
		}
		return AccessInfo{Account: account, Region: "na-ashburn", Endpoint: ep}, nil
	default:
		return AccessInfo{}, proxyerrors.NewAssertFail("match region failed, unsupported account id: %s", account.Code)
	}
}

func clientFor(access AccessInfo) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(access.Account.AccessKey, access.Account.SecretKey, "")
	var opts []func(*s3.Options)
	if access.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(access.Endpoint)
			o.UsePathStyle = true
		})
	}
	cfg := aws.Config{
		Region:      access.Region,
		Credentials: creds,
	}
	return s3.NewFromConfig(cfg, opts...)
}

func fetchIPInfo(ctx context.Context, httpClient *http.Client) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ipProvider, nil)
	if err != nil {
		return "unknown"
	}
	req.Header.Set("User-Agent", "curl")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "unknown"
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "unknown"
	}
	s := string(body)
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\t", "")
	return s
}

func listBuckets(ctx context.Context, access AccessInfo, client *s3.Client) ([]string, error) {
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, proxyerrors.NewOtherInternal("account.access_key: %s failed to list buckets: %v", access.Account.AccessKey, err)
	}
	if out.Buckets == nil {
		return nil, proxyerrors.NewAssertFail("no buckets found")
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		if b.Name == nil {
			return nil, proxyerrors.NewAssertFail("bucket must have a name")
		}
		names = append(names, *b.Name)
	}
	return names, nil
}

// Build sweeps ListBuckets across every account, fanning the calls out
// concurrently, and indexes the result by bucket name. fetchTimeout bounds
// each account's ListBuckets call.
func Build(ctx context.Context, accounts []domain.Account, httpClient *http.Client, fetchTimeout time.Duration) (*Info, error) {
	accessInfos := make([]AccessInfo, 0, len(accounts))
	for _, a := range accounts {
		info, err := accessInfoFromAccount(a)
		if err != nil {
			return nil, err
		}
		accessInfos = append(accessInfos, info)
	}

	ipInfo := fetchIPInfo(ctx, httpClient)

	type result struct {
		access  AccessInfo
		buckets []string
		err     error
	}
	results := make([]result, len(accessInfos))

	var wg sync.WaitGroup
	for idx, access := range accessInfos {
		wg.Add(1)
		go func(idx int, access AccessInfo) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()
			client := clientFor(access)
			buckets, err := listBuckets(fetchCtx, access, client)
			if err != nil {
				err = proxyerrors.NewOtherInternal(
					"failed to get buckets for account: %s access_key: %s region: %s Error: %v, "+
						"normally it is caused by permissions not configured for the account, "+
						"try check the IP whitelist on peer, ip_info: %s",
					access.Account.Code, access.Account.AccessKey, access.Region, err, ipInfo)
			}
			results[idx] = result{access: access, buckets: buckets, err: err}
		}(idx, access)
	}
	wg.Wait()

	byBucket := make(map[string][]AccessInfo)
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		for _, bucket := range r.buckets {
			byBucket[bucket] = append(byBucket[bucket], r.access)
		}
	}
	return &Info{byBucket: byBucket}, nil
}
