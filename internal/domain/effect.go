package domain

import "time"

// EffectKind discriminates the Effect tagged union.
type EffectKind string

const (
	EffectAllow EffectKind = "allow"
	EffectDeny  EffectKind = "deny"
)

// Effect is the decision a matched policy contributes: allow (optionally
// with modifiers) or deny. The zero value is Deny(nil), matching the
// original's default.
type Effect struct {
	Kind      EffectKind
	EmitEvent *EmitEvent // valid for both Allow and Deny
	RateLimit *RateLimit // only set on Allow
	Modify    *Modify    // only set on Allow
}

// Allow builds an Allow effect with no modifiers.
func Allow() Effect { return Effect{Kind: EffectAllow} }

// Deny builds a Deny effect with no emitted event.
func Deny() Effect { return Effect{Kind: EffectDeny} }

// IsAllow reports whether e is an Allow effect.
func (e Effect) IsAllow() bool { return e.Kind == EffectAllow }

// IsDeny reports whether e is a Deny effect. Any Kind other than
// EffectAllow, including the zero value's empty Kind, counts as Deny.
func (e Effect) IsDeny() bool { return e.Kind != EffectAllow }

// EmitEvent carries optional log and metric sinks a matched effect fires.
type EmitEvent struct {
	Log    *Log    `yaml:"log,omitempty" json:"log,omitempty"`
	Metric *Metric `yaml:"metric,omitempty" json:"metric,omitempty"`
}

// Log names a structured-log sink address.
type Log struct {
	Address string `yaml:"address" json:"address"`
}

// Metric names an analytics-publisher sink address.
type Metric struct {
	Address string `yaml:"address" json:"address"`
}

// RateLimit bounds how many requests are allowed per Duration.
type RateLimit struct {
	Duration time.Duration `yaml:"duration" json:"duration"`
	Count    uint32        `yaml:"count" json:"count"`
}

// Modify is reserved for future request-modification effects; it currently
// carries no fields, matching the original's placeholder.
type Modify struct{}
