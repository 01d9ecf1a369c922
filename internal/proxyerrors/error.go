// Package proxyerrors defines the closed error taxonomy every pipeline
// component returns, and the HTTP/XML wire form the server layer converts
// it to.
package proxyerrors

import "fmt"

// Kind discriminates ProxyError variants for logging and HTTP-status
// mapping (SPEC_FULL.md §7).
type Kind string

const (
	BadRequest                 Kind = "BadRequest"
	InvalidEndpoint            Kind = "InvalidEndpoint"
	InvalidRegion              Kind = "InvalidRegion"
	InvalidAuthorizationHeader Kind = "InvalidAuthorizationHeader"
	InvalidAccessKey           Kind = "InvalidAccessKey"
	ParserError                Kind = "ParserError"
	OperationNotSupported      Kind = "OperationNotSupported"
	UserNotFound               Kind = "UserNotFound"
	GroupNotFound              Kind = "GroupNotFound"
	ResourceNotFound           Kind = "ResourceNotFound"
	MissingPolicy              Kind = "MissingPolicy"
	EffectNotFound             Kind = "EffectNotFound"
	ManagerApi                 Kind = "ManagerApi"
	Deserialize                Kind = "Deserialize"
	OtherInternal              Kind = "OtherInternal"
	FatalError                 Kind = "FatalError"
	AssertFail                 Kind = "AssertFail"
)

// ProxyError is the single error type returned by every component in the
// request pipeline.
type ProxyError struct {
	Kind Kind
	Msg  string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newf(kind Kind, format string, args ...any) *ProxyError {
	return &ProxyError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func New(kind Kind, msg string) *ProxyError { return &ProxyError{Kind: kind, Msg: msg} }

func Newf(kind Kind, format string, args ...any) *ProxyError { return newf(kind, format, args...) }

// Constructors mirroring the original taxonomy's variant-per-kind shape.
func NewBadRequest(format string, args ...any) *ProxyError {
	return newf(BadRequest, format, args...)
}
func NewInvalidEndpoint(format string, args ...any) *ProxyError {
	return newf(InvalidEndpoint, format, args...)
}
func NewInvalidRegion(format string, args ...any) *ProxyError {
	return newf(InvalidRegion, format, args...)
}
func NewInvalidAuthorizationHeader(format string, args ...any) *ProxyError {
	return newf(InvalidAuthorizationHeader, format, args...)
}
func NewInvalidAccessKey(format string, args ...any) *ProxyError {
	return newf(InvalidAccessKey, format, args...)
}
func NewParserError(format string, args ...any) *ProxyError {
	return newf(ParserError, format, args...)
}
func NewOperationNotSupported(format string, args ...any) *ProxyError {
	return newf(OperationNotSupported, format, args...)
}
func NewUserNotFound(format string, args ...any) *ProxyError {
	return newf(UserNotFound, format, args...)
}
func NewGroupNotFound(format string, args ...any) *ProxyError {
	return newf(GroupNotFound, format, args...)
}
func NewResourceNotFound(format string, args ...any) *ProxyError {
	return newf(ResourceNotFound, format, args...)
}
func NewMissingPolicy(format string, args ...any) *ProxyError {
	return newf(MissingPolicy, format, args...)
}
func NewEffectNotFound(format string, args ...any) *ProxyError {
	return newf(EffectNotFound, format, args...)
}
func NewManagerApi(format string, args ...any) *ProxyError {
	return newf(ManagerApi, format, args...)
}
func NewDeserialize(format string, args ...any) *ProxyError {
	return newf(Deserialize, format, args...)
}
func NewOtherInternal(format string, args ...any) *ProxyError {
	return newf(OtherInternal, format, args...)
}
func NewFatalError(format string, args ...any) *ProxyError {
	return newf(FatalError, format, args...)
}
func NewAssertFail(format string, args ...any) *ProxyError {
	return newf(AssertFail, format, args...)
}
