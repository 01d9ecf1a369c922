package domain

// UserKind classifies the owner of a base access key.
type UserKind string

const (
	UserKindService  UserKind = "Service"
	UserKindPerson   UserKind = "Person"
	UserKindTeam     UserKind = "Team"
	UserKindCompany  UserKind = "Company"
	UserKindCustomer UserKind = "Customer"
)

// User is a principal identified by the account-independent portion of a
// virtual access key, its BaseAccessKey.
type User struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	BaseAccessKey string   `yaml:"base_access_key" json:"base_access_key"`
	Secret        string   `yaml:"secret" json:"-"`
	Kind          UserKind `yaml:"kind" json:"kind"`
}

// Group is a named collection of users.
type Group struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Role is referenced by PolicyRelationship but has no further behavior in
// this specification beyond its id.
type Role struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// UserGroupRelationship is a many-to-many edge between User and Group.
type UserGroupRelationship struct {
	ID      string `yaml:"id" json:"id"`
	UserID  string `yaml:"user_id" json:"user_id"`
	GroupID string `yaml:"group_id" json:"group_id"`
}

// Any is the sentinel meaning "applies to any value of this field" in a
// PolicyRelationship.
const Any = "any"

// PolicyRelationship binds a policy to the set of principals, account and
// region it applies to. A nil/empty UserID, GroupID or RoleID means "any";
// AccountID or Region equal to Any also means "any".
type PolicyRelationship struct {
	ID          string `yaml:"id" json:"id"`
	PolicyModel string `yaml:"policy_model" json:"policy_model"`
	UserID      string `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	GroupID     string `yaml:"group_id,omitempty" json:"group_id,omitempty"`
	RoleID      string `yaml:"role_id,omitempty" json:"role_id,omitempty"`
	AccountID   string `yaml:"account_id" json:"account_id"`
	Region      string `yaml:"region" json:"region"`
	PolicyID    string `yaml:"policy_id" json:"policy_id"`
}
