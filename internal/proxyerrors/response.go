package proxyerrors

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// LogLevel reports the slog level this error's kind should be logged at,
// per SPEC_FULL.md §7's input/authorization/resource/infrastructure/
// programmer taxonomy.
func (e *ProxyError) LogLevel() slog.Level {
	switch e.Kind {
	case BadRequest, InvalidEndpoint, InvalidRegion, InvalidAuthorizationHeader:
		return slog.LevelInfo
	case InvalidAccessKey, ParserError, OperationNotSupported, MissingPolicy, EffectNotFound:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// HTTPStatus maps a Kind to its wire status code.
func (e *ProxyError) HTTPStatus() int {
	switch e.Kind {
	case BadRequest, InvalidEndpoint, InvalidRegion, InvalidAuthorizationHeader:
		return http.StatusBadRequest
	case InvalidAccessKey, ParserError, OperationNotSupported, MissingPolicy, EffectNotFound:
		return http.StatusForbidden
	case ResourceNotFound:
		return http.StatusForbidden
	default: // OtherInternal, ManagerApi, Deserialize, UserNotFound, GroupNotFound
		return http.StatusInternalServerError
	}
}

// IsFatal reports whether this error's kind means "terminate the process"
// rather than "answer the client".
func (e *ProxyError) IsFatal() bool {
	return e.Kind == FatalError || e.Kind == AssertFail
}

// awsErrorXML is the AWS-compatible error body shape.
type awsErrorXML struct {
	XMLName       xml.Name `xml:"Error"`
	Code          string   `xml:"Code"`
	Message       string   `xml:"Message"`
	AWSAccessKeyID string  `xml:"AWSAccessKeyId"`
	RequestID     string   `xml:"RequestId"`
	HostID        string   `xml:"HostId"`
}

// WriteHTTP logs e at its mapped level and writes the AWS-style XML error
// response with piam trace headers attached. requestID should be a fresh
// UUIDv4 generated once per request/response.
func (e *ProxyError) WriteHTTP(w http.ResponseWriter, logger *slog.Logger, proxyType, clusterEnv, requestID string) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger.Log(context.Background(), e.LogLevel(), "request rejected", "kind", e.Kind, "message", e.Msg, "request_id", requestID)

	AddPiamHeaders(w.Header(), proxyType, clusterEnv, requestID)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(e.HTTPStatus())

	body := awsErrorXML{
		Code:    "Piam" + string(e.Kind),
		Message: "PIAM " + e.Msg,
		RequestID: requestID,
	}
	out, marshalErr := xml.Marshal(body)
	if marshalErr != nil {
		logger.Error("failed to marshal error xml", "error", marshalErr)
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// AddPiamHeaders attaches the three trace headers every response carries.
func AddPiamHeaders(h http.Header, proxyType, clusterEnv, requestID string) {
	h.Set("x-patsnap-proxy-type", proxyType)
	h.Set("x-patsnap-proxy-cluster-env", clusterEnv)
	h.Set("x-patsnap-request-id", requestID)
}
