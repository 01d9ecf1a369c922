// Package domain holds the proxy's core entity types: accounts, users,
// groups, policies, and the effect algebra matched policies contribute.
package domain

// Account is a cloud tenant whose credentials the proxy may sign requests
// with. Indexed by Code within an iam container.
type Account struct {
	ID        string `yaml:"id" json:"id"`
	Code      string `yaml:"code" json:"code"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Comment   string `yaml:"comment" json:"comment"`
}

func (a Account) String() string {
	return a.Code + "(" + a.ID + ")"
}
