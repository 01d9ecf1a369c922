package iam

import (
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// FilterParams narrows PolicyRelationship selection to one request's
// context.
type FilterParams struct {
	Account      domain.Account
	TargetRegion string
	User         *domain.User
	Groups       []domain.Group
	Roles        []domain.Role
}

// FoundPolicies partitions the PolicyRelationships selected by a filter
// into their two supported policy models.
type FoundPolicies struct {
	Condition []domain.Policy[*domain.ConditionPolicy]
	UserInput []domain.Policy[*objectstorage.Policy]
}

// FindPolicies scans policy_relationships linearly, keeping every record
// that matches filter under the "any" semantics documented in
// SPEC_FULL.md §4.2, then partitions the matches by policy model.
func (c *Container) FindPolicies(filter FilterParams) (FoundPolicies, error) {
	var relations []domain.PolicyRelationship
	for _, r := range c.policyRelationships {
		if !accountFilter(r.AccountID, filter.Account) {
			continue
		}
		if !regionFilter(r.Region, filter.TargetRegion) {
			continue
		}
		if !userFilter(r.UserID, filter.User) {
			continue
		}
		if !groupFilter(r.GroupID, filter.Groups) {
			continue
		}
		if !roleFilter(r.RoleID, filter.Roles) {
			continue
		}
		relations = append(relations, r)
	}

	if len(relations) == 0 {
		return FoundPolicies{}, proxyerrors.NewMissingPolicy(
			"access denied by missing policy, account: %s region: %s groups: %v",
			filter.Account.ID, filter.TargetRegion, filter.Groups)
	}

	var found FoundPolicies
	for _, rel := range relations {
		switch rel.PolicyModel {
		case domain.ConditionModel:
			p, ok := c.conditionPolicies[rel.PolicyID]
			if !ok {
				return FoundPolicies{}, proxyerrors.NewAssertFail(
					"condition policy referenced by relationship not found: %s", rel.PolicyID)
			}
			found.Condition = append(found.Condition, p)
		case domain.ObjectStorageModel:
			p, ok := c.userInputPolicies[rel.PolicyID]
			if !ok {
				return FoundPolicies{}, proxyerrors.NewAssertFail(
					"user input policy referenced by relationship not found: %s", rel.PolicyID)
			}
			found.UserInput = append(found.UserInput, p)
		default:
			return FoundPolicies{}, proxyerrors.NewAssertFail("unknown policy model found: %s", rel.PolicyModel)
		}
	}
	return found, nil
}

func accountFilter(recordID string, account domain.Account) bool {
	return recordID == account.ID || recordID == domain.Any
}

func regionFilter(record, target string) bool {
	return record == target || record == domain.Any
}

func userFilter(recordID string, user *domain.User) bool {
	if user == nil {
		return true
	}
	if recordID == "" {
		return true
	}
	return recordID == user.ID || recordID == domain.Any
}

func groupFilter(recordID string, groups []domain.Group) bool {
	if groups == nil {
		return true
	}
	if recordID == "" {
		return true
	}
	if recordID == domain.Any {
		return true
	}
	for _, g := range groups {
		if recordID == g.ID {
			return true
		}
	}
	return false
}

func roleFilter(recordID string, roles []domain.Role) bool {
	if roles == nil {
		return true
	}
	if recordID == "" {
		return true
	}
	if recordID == domain.Any {
		return true
	}
	for _, r := range roles {
		if recordID == r.ID {
			return true
		}
	}
	return false
}
