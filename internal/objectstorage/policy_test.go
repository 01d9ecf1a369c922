package objectstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patsnapops/piam-sub000/internal/domain"
)

func allowEffect() *domain.Effect {
	e := domain.Allow()
	return &e
}

func denyEffect() *domain.Effect {
	e := domain.Deny()
	return &e
}

func TestPolicy_FindEffect_ActionMismatch_NoEffect(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Actions: []string{string(ActionGetObject)},
		Bucket:  Bucket{Effect: allowEffect()},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionPutObject, Bucket: "b"})
	assert.Nil(t, got)
}

func TestPolicy_FindEffect_ActionAny_Matches(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Actions: []string{ActionAny},
		Bucket:  Bucket{Effect: allowEffect()},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionListBuckets, Bucket: "b"})
	require.NotNil(t, got)
	assert.True(t, got.IsAllow())
}

func TestPolicy_FindEffect_NilActions_MatchesEverything(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{Bucket: Bucket{Effect: allowEffect()}}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionHeadBucket, Bucket: "b"})
	require.NotNil(t, got)
	assert.True(t, got.IsAllow())
}

func TestPolicy_FindBucketEffect_NilName_MatchesAnyBucket(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{Bucket: Bucket{Effect: denyEffect()}}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionHeadBucket, Bucket: "any-bucket"})
	require.NotNil(t, got)
	assert.True(t, got.IsDeny())
}

func TestPolicy_FindBucketEffect_NameMismatch_NoEffect(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{
			Name:   &domain.StringMatcher{Eq: []string{"reports"}},
			Effect: allowEffect(),
		},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionHeadBucket, Bucket: "other"})
	assert.Nil(t, got)
}

func TestPolicy_FindObjectEffect_BucketMismatch_NoEffect(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Name: &domain.StringMatcher{Eq: []string{"reports"}}, Effect: allowEffect()},
		Keys:   []Key{{Effect: allowEffect()}},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionGetObject, Bucket: "other", Key: "k"})
	assert.Nil(t, got)
}

func TestPolicy_FindObjectEffect_NoKeys_NoEffect(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{Bucket: Bucket{Effect: allowEffect()}}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionGetObject, Bucket: "b", Key: "k"})
	assert.Nil(t, got)
}

func TestPolicy_FindKeysEffect_ExplicitPathWinsOverDefault(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Effect: allowEffect()},
		Keys: []Key{
			{Effect: denyEffect()}, // default, path-less
			{Path: &domain.StringMatcher{StartWith: []string{"b/public/"}}, Effect: allowEffect()},
		},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionGetObject, Bucket: "b", Key: "public/file.txt"})
	require.NotNil(t, got)
	assert.True(t, got.IsAllow())
}

func TestPolicy_FindKeysEffect_FallsBackToDefault(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Effect: allowEffect()},
		Keys: []Key{
			{Path: &domain.StringMatcher{StartWith: []string{"public/"}}, Effect: allowEffect()},
			{Effect: denyEffect()}, // default
		},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionGetObject, Bucket: "b", Key: "private/file.txt"})
	require.NotNil(t, got)
	assert.True(t, got.IsDeny())
}

func TestPolicy_FindKeysEffect_FirstMatchWinsInDocumentOrder(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Effect: allowEffect()},
		Keys: []Key{
			{Path: &domain.StringMatcher{StartWith: []string{"b/logs/"}}, Effect: allowEffect()},
			{Path: &domain.StringMatcher{StartWith: []string{"b/logs/archive"}}, Effect: denyEffect()},
		},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionGetObject, Bucket: "b", Key: "logs/archive/old.txt"})
	require.NotNil(t, got)
	assert.True(t, got.IsAllow())
}

func TestPolicy_DeleteObjects_AllKeysMustMatch(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Effect: allowEffect()},
		Keys: []Key{
			{Path: &domain.StringMatcher{StartWith: []string{"b/tmp/"}}, Effect: allowEffect()},
		},
	}}
	matching := ObjectStorageInput{Action: ActionDeleteObjects, Bucket: "b", Keys: []string{"tmp/a", "tmp/b"}}
	got := p.FindEffect(matching)
	require.NotNil(t, got)
	assert.True(t, got.IsAllow())

	mixed := ObjectStorageInput{Action: ActionDeleteObjects, Bucket: "b", Keys: []string{"tmp/a", "other/b"}}
	assert.Nil(t, p.FindEffect(mixed))
}

// TestPolicy_DeleteObjects_EmptyKeys_VacuouslyMatches documents that an
// ActionDeleteObjects input with no Keys satisfies matchDeleteObjects
// vacuously (the for-range over zero keys never finds a mismatch), so the
// first Key entry with a Path determines the effect regardless of content.
func TestPolicy_DeleteObjects_EmptyKeys_VacuouslyMatches(t *testing.T) {
	p := &Policy{InputPolicy: InputPolicy{
		Bucket: Bucket{Effect: allowEffect()},
		Keys: []Key{
			{Path: &domain.StringMatcher{StartWith: []string{"tmp/"}}, Effect: denyEffect()},
		},
	}}
	got := p.FindEffect(ObjectStorageInput{Action: ActionDeleteObjects, Bucket: "b", Keys: nil})
	require.NotNil(t, got)
	assert.True(t, got.IsDeny())
}

func TestInput_Kind(t *testing.T) {
	assert.Equal(t, KindListBuckets, ObjectStorageInput{Action: ActionListBuckets}.Kind())
	assert.Equal(t, KindBucket, ObjectStorageInput{Action: ActionHeadBucket}.Kind())
	assert.Equal(t, KindObject, ObjectStorageInput{Action: ActionGetObject}.Kind())
}

func TestFullPath(t *testing.T) {
	assert.Equal(t, "bucket/key.txt", FullPath("bucket", "key.txt"))
}
