package objectstorage

import (
	"github.com/patsnapops/piam-sub000/internal/domain"
)

// Tag constrains a bucket or key match by tag; it is carried through from
// policy documents but not evaluated against requests (no object tags are
// observable on a parsed ObjectStorageInput in this specification).
type Tag struct {
	KeyEq []string `yaml:"key_eq,omitempty" json:"key_eq,omitempty"`
}

// Bucket is the bucket-level clause of an ObjectStorageInputPolicy. Default
// logical operator between Name and Tag is "or"; absent Name matches any
// bucket.
type Bucket struct {
	Name   *domain.StringMatcher `yaml:"name,omitempty" json:"name,omitempty"`
	Tag    *Tag                  `yaml:"tag,omitempty" json:"tag,omitempty"`
	Effect *domain.Effect        `yaml:"effect,omitempty" json:"effect,omitempty"`
}

// Key is the object-level clause, scanned in document order; an entry
// without Path acts as the default if no more specific entry matches.
type Key struct {
	Path   *domain.StringMatcher `yaml:"path,omitempty" json:"path,omitempty"`
	Tag    *Tag                  `yaml:"tag,omitempty" json:"tag,omitempty"`
	Effect *domain.Effect        `yaml:"effect,omitempty" json:"effect,omitempty"`
}

// InputPolicy is the body of an ObjectStoragePolicy.
type InputPolicy struct {
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`
	Bucket  Bucket   `yaml:"bucket" json:"bucket"`
	Keys    []Key    `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// Policy is the ModeledPolicy for object-storage access control.
type Policy struct {
	Version     int         `yaml:"version" json:"version"`
	ID          string      `yaml:"id" json:"id"`
	InputPolicy InputPolicy `yaml:"input_policy" json:"input_policy"`
}

func (Policy) ModelName() string { return domain.ObjectStorageModel }

// FindEffect returns the effect this policy contributes for input, if any.
func (p *Policy) FindEffect(input ObjectStorageInput) *domain.Effect {
	if !p.matchAction(input) {
		return nil
	}
	switch input.Kind() {
	case KindListBuckets, KindBucket:
		return p.findBucketEffect(input)
	default:
		return p.findObjectEffect(input)
	}
}

func (p *Policy) matchAction(input ObjectStorageInput) bool {
	if p.InputPolicy.Actions == nil {
		return true
	}
	for _, a := range p.InputPolicy.Actions {
		if a == string(input.Action) || a == ActionAny {
			return true
		}
	}
	return false
}

func (p *Policy) findBucketEffect(input ObjectStorageInput) *domain.Effect {
	b := p.InputPolicy.Bucket
	if b.Name == nil {
		return b.Effect
	}
	if b.Name.Matches(input.Bucket) {
		return b.Effect
	}
	return nil
}

func (p *Policy) findObjectEffect(input ObjectStorageInput) *domain.Effect {
	if p.findBucketEffect(input) == nil {
		return nil
	}
	if len(p.InputPolicy.Keys) == 0 {
		return nil
	}
	return p.findKeysEffect(input, p.InputPolicy.Keys)
}

// findKeysEffect scans policies in order, returning the first matching
// path's effect; a path-less entry is remembered as the default and
// returned only if no more specific entry matched.
func (p *Policy) findKeysEffect(input ObjectStorageInput, policies []Key) *domain.Effect {
	var defaultEffect *domain.Effect
	for _, k := range policies {
		if k.Path != nil {
			if input.Action == ActionDeleteObjects {
				if matchDeleteObjects(input.Bucket, input.Keys, k.Path) {
					return k.Effect
				}
				continue
			}
			if k.Path.Matches(FullPath(input.Bucket, input.Key)) {
				return k.Effect
			}
		} else {
			defaultEffect = k.Effect
		}
	}
	return defaultEffect
}

// matchDeleteObjects requires every key's full path to satisfy matcher.
func matchDeleteObjects(bucket string, keys []string, matcher *domain.StringMatcher) bool {
	for _, k := range keys {
		if !matcher.Matches(FullPath(bucket, k)) {
			return false
		}
	}
	return true
}
