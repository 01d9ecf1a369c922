package manager

import (
	"context"

	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
)

// GetAccounts fetches all accounts; in dev mode each account's id has the
// literal substring "dev" rewritten to "prod" (SPEC_FULL.md §2.3).
func (c *Client) GetAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := getResource[[]domain.Account](ctx, c, pathAccounts)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].ID = devSubstitute(c.DevMode, accounts[i].ID)
	}
	return accounts, nil
}

// GetUsers fetches all users.
func (c *Client) GetUsers(ctx context.Context) ([]domain.User, error) {
	return getResource[[]domain.User](ctx, c, pathUsers)
}

// GetGroups fetches all groups.
func (c *Client) GetGroups(ctx context.Context) ([]domain.Group, error) {
	return getResource[[]domain.Group](ctx, c, pathGroups)
}

// GetObjectStoragePolicies fetches the user-input policy set for the given
// policy model name (e.g. "object_storage").
func (c *Client) GetObjectStoragePolicies(ctx context.Context, policyModel string) ([]domain.Policy[*objectstorage.Policy], error) {
	return getResource[[]domain.Policy[*objectstorage.Policy]](ctx, c, policiesPath(policyModel))
}

// GetConditionPolicies fetches every ConditionPolicy.
func (c *Client) GetConditionPolicies(ctx context.Context) ([]domain.Policy[*domain.ConditionPolicy], error) {
	return getResource[[]domain.Policy[*domain.ConditionPolicy]](ctx, c, policiesPath(domain.ConditionModel))
}

// GetUserGroupRelationships fetches every user-group edge.
func (c *Client) GetUserGroupRelationships(ctx context.Context) ([]domain.UserGroupRelationship, error) {
	return getResource[[]domain.UserGroupRelationship](ctx, c, pathUserGroupRelations)
}

// GetPolicyRelationships fetches every policy relationship.
func (c *Client) GetPolicyRelationships(ctx context.Context) ([]domain.PolicyRelationship, error) {
	return getResource[[]domain.PolicyRelationship](ctx, c, pathPolicyRelations)
}

// GetExtendedConfig fetches the extended_config/<key> resource, decoded
// into an objectstorage.Config (the only extended-config shape this proxy
// consumes).
func (c *Client) GetExtendedConfig(ctx context.Context, key string) (objectstorage.Config, error) {
	return getResource[objectstorage.Config](ctx, c, extendedConfigPath(key))
}
