package domain

// ModeledPolicy is implemented by every concrete policy body type
// (ObjectStoragePolicy, ConditionPolicy, ...). It lets the iam container
// hold heterogeneous policy models behind one interface while still keying
// them by concrete type for FindPolicies' partitioned output.
type ModeledPolicy interface {
	ModelName() string
}

// Policy is the generic envelope around a modeled policy body M.
type Policy[M ModeledPolicy] struct {
	Kind          string `yaml:"kind" json:"kind"`
	Version       string `yaml:"version" json:"version"`
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	ModeledPolicy M      `yaml:"modeled_policy" json:"modeled_policy"`
}

// ObjectStorageModel and ConditionModel name the two policy models this
// proxy resolves PolicyRelationship.PolicyModel against.
const (
	ObjectStorageModel = "object_storage"
	ConditionModel     = "condition"
)
