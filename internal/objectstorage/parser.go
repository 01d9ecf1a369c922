package objectstorage

import (
	"net/http"
	"strings"

	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// ParseS3 turns an HTTP request into an ObjectStorageInput per the dispatch
// table in SPEC_FULL.md §4.3. config supplies the proxy's own hostnames.
func ParseS3(req *http.Request, config Config) (ObjectStorageInput, error) {
	host := req.Host
	proxyHost, err := config.FindProxyHost(host)
	if err != nil {
		return ObjectStorageInput{}, err
	}

	// Bucket extraction is unconditional: a request to the bare proxy host
	// (no "<bucket>." prefix) fails here rather than falling through to a
	// ListBuckets dispatch below — under the uni-key feature the proxy
	// cannot answer ListBuckets without a bucket to resolve an account for.
	bucket, ok := strings.CutSuffix(host, "."+proxyHost)
	if !ok {
		return ObjectStorageInput{}, proxyerrors.NewOperationNotSupported(
			"ListBuckets not supported due to uni-key feature")
	}

	path := req.URL.Path
	method := req.Method
	q := req.URL.Query()
	hasListType := q.Has("list-type")
	hasTagging := q.Has("tagging")
	hasUploads := q.Has("uploads")
	hasUploadID := q.Has("uploadId")
	hasNotification := q.Has("notification")

	if path == "/" {
		switch {
		case hasListType && method == http.MethodGet:
			return ObjectStorageInput{Action: ActionListObjects, Bucket: bucket}, nil
		case hasTagging:
			switch method {
			case http.MethodGet:
				return ObjectStorageInput{Action: ActionGetBucketTagging, Bucket: bucket}, nil
			case http.MethodPut:
				return ObjectStorageInput{Action: ActionPutBucketTagging, Bucket: bucket}, nil
			case http.MethodDelete:
				return ObjectStorageInput{Action: ActionDeleteBucketTagging, Bucket: bucket}, nil
			default:
				return parseError("unknown bucket tagging operation", req)
			}
		case hasUploads:
			if method == http.MethodGet {
				return ObjectStorageInput{Action: ActionListMultiPartUploads, Bucket: bucket}, nil
			}
			return parseError("unknown bucket uploads operation", req)
		case hasNotification:
			switch method {
			case http.MethodGet:
				return ObjectStorageInput{Action: ActionGetBucketNotificationConfiguration, Bucket: bucket}, nil
			case http.MethodPut:
				return ObjectStorageInput{Action: ActionPutBucketNotificationConfiguration, Bucket: bucket}, nil
			default:
				return parseError("unknown bucket notification operation", req)
			}
		default:
			switch method {
			case http.MethodGet:
				// ListObjectsV1 fallback, not recommended by AWS but still valid.
				return ObjectStorageInput{Action: ActionListObjects, Bucket: bucket}, nil
			case http.MethodPut:
				return ObjectStorageInput{Action: ActionCreateBucket, Bucket: bucket}, nil
			case http.MethodHead:
				return ObjectStorageInput{Action: ActionHeadBucket, Bucket: bucket}, nil
			case http.MethodDelete:
				return ObjectStorageInput{Action: ActionDeleteBucket, Bucket: bucket}, nil
			default:
				return parseError("unknown bucket operation", req)
			}
		}
	}

	key := strings.TrimPrefix(path, "/")
	switch {
	case hasUploads:
		if method == http.MethodPost {
			return ObjectStorageInput{Action: ActionCreateMultipartUpload, Bucket: bucket, Key: key}, nil
		}
		return parseError("unknown object upload operation", req)
	case hasUploadID:
		switch method {
		case http.MethodGet:
			return ObjectStorageInput{Action: ActionListParts, Bucket: bucket, Key: key}, nil
		case http.MethodPut:
			return ObjectStorageInput{Action: ActionUploadPart, Bucket: bucket, Key: key}, nil
		case http.MethodPost:
			return ObjectStorageInput{Action: ActionCompleteMultipartUpload, Bucket: bucket, Key: key}, nil
		case http.MethodDelete:
			return ObjectStorageInput{Action: ActionAbortMultipartUpload, Bucket: bucket, Key: key}, nil
		default:
			return parseError("unknown object upload operation", req)
		}
	default:
		switch method {
		case http.MethodGet:
			return ObjectStorageInput{Action: ActionGetObject, Bucket: bucket, Key: key}, nil
		case http.MethodPut:
			if copySource := req.Header.Get("x-amz-copy-source"); copySource != "" {
				return ObjectStorageInput{Action: ActionCopyObject, Bucket: bucket, Key: key, CopySource: copySource}, nil
			}
			return ObjectStorageInput{Action: ActionPutObject, Bucket: bucket, Key: key}, nil
		case http.MethodHead:
			return ObjectStorageInput{Action: ActionHeadObject, Bucket: bucket, Key: key}, nil
		case http.MethodDelete:
			return ObjectStorageInput{Action: ActionDeleteObject, Bucket: bucket, Key: key}, nil
		default:
			return parseError("unknown object operation", req)
		}
	}
}

func parseError(msg string, req *http.Request) (ObjectStorageInput, error) {
	return ObjectStorageInput{}, proxyerrors.NewOperationNotSupported(
		"%s uri: %s method: %s headers: %v", msg, req.URL.String(), req.Method, req.Header)
}

// IsTencentRequest reports whether req's User-Agent identifies a Tencent
// COS client, selecting the (stubbed) Tencent parser path.
func IsTencentRequest(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("User-Agent"), "cos")
}

// ParseTencent is a stub: Tencent COS request parsing is not implemented,
// matching the original's unpopulated stub.
func ParseTencent(req *http.Request, config Config) (ObjectStorageInput, error) {
	return ObjectStorageInput{}, proxyerrors.NewOperationNotSupported("tencent cos parsing not implemented")
}
