// Package signer extracts the access key and region embedded in an AWS
// SigV4 Authorization header, and re-signs an outgoing request with a
// target account's real credentials before it is forwarded upstream.
package signer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

const (
	headerXAmzContentSHA256 = "X-Amz-Content-Sha256"
	headerXAmzDate          = "X-Amz-Date"
	headerXAmzSecurityToken = "X-Amz-Security-Token"
	headerAuthorization     = "Authorization"
	headerXForwardedFor     = "X-Forwarded-For"
)

// ExtractAccessKeyAndRegion parses an AWS SigV4 Authorization header of the
// shape "AWS4-HMAC-SHA256 Credential=<access_key>/<date>/<region>/<service>/aws4_request ...".
func ExtractAccessKeyAndRegion(req *http.Request) (accessKey, region string, err error) {
	auth := req.Header.Get(headerAuthorization)
	if auth == "" {
		return "", "", proxyerrors.NewInvalidAuthorizationHeader("missing authorization header")
	}
	parts := strings.Split(auth, "/")
	if len(parts) < 3 {
		return "", "", proxyerrors.NewInvalidAuthorizationHeader(
			"malformed authorization header found when extracting access_key and region "+
				"(not a valid AWS sigv4 authorization header): %s", auth)
	}
	_, accessKey, ok := strings.Cut(parts[0], "=")
	if !ok {
		return "", "", proxyerrors.NewInvalidAuthorizationHeader(
			"malformed authorization header found when extracting access_key "+
				"(not a valid AWS sigv4 authorization header): %s", auth)
	}
	return accessKey, parts[2], nil
}

// SignParams names the account, service and region a request gets signed
// with.
type SignParams struct {
	Account domain.Account
	Service string
	Region  string
}

// SignSigV4 strips the headers the caller's own signature touched, then
// re-signs req with params' credentials so it carries a signature the
// target account will accept upstream. Mirrors the save/remove/restore
// sequence of the original AwsSigv4 sign step: the content-sha256 header
// survives unsigned-payload streaming uploads, so it is preserved across
// the resign rather than recomputed.
func SignSigV4(ctx context.Context, req *http.Request, params SignParams) error {
	checksum := req.Header.Get(headerXAmzContentSHA256)
	if checksum == "" {
		// An upstream AWS SDK always sets this header; its absence means a
		// programmer error earlier in the pipeline, not a client mistake.
		return proxyerrors.NewAssertFail("x-amz-content-sha256 header missing before re-signing")
	}

	req.Header.Del(headerXAmzDate)
	req.Header.Del(headerXAmzContentSHA256)
	req.Header.Del(headerXAmzSecurityToken)
	req.Header.Del(headerAuthorization)
	// Added by gateways in front of this proxy (e.g. Kong); AWS rejects a
	// request carrying it with SignatureDoesNotMatch.
	req.Header.Del(headerXForwardedFor)

	creds := aws.Credentials{
		AccessKeyID:     params.Account.AccessKey,
		SecretAccessKey: params.Account.SecretKey,
	}

	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, req, checksum, params.Service, params.Region, time.Now()); err != nil {
		return proxyerrors.NewOtherInternal("signing request with sigv4: %v", err)
	}

	req.Header.Set(headerXAmzContentSHA256, checksum)
	return nil
}
