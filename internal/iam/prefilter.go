package iam

import (
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
)

// Prefilter shrinks a RawData set to what a proxy pinned to (region, env)
// can actually evaluate. Any ConditionPolicy whose range.proxy is set and
// does not match (region, env) is dropped, along with the group ids it
// names, and everything that referenced only those groups cascades away:
// user-group relationships, the groups themselves, policy relationships
// pointing at a dropped group, and user-input policies left with no
// remaining relationship.
func Prefilter(data RawData, region, env string) RawData {
	keepConditionPolicies := make([]domain.Policy[*domain.ConditionPolicy], 0, len(data.ConditionPolicies))
	droppedGroupIDs := make(map[string]bool)

	for _, p := range data.ConditionPolicies {
		if p.ModeledPolicy.Range.Proxy != nil && !p.ModeledPolicy.MatchesProxy(region, env) {
			for _, gid := range p.ModeledPolicy.Range.GroupIDs {
				droppedGroupIDs[gid] = true
			}
			continue
		}
		keepConditionPolicies = append(keepConditionPolicies, p)
	}
	if len(droppedGroupIDs) == 0 {
		data.ConditionPolicies = keepConditionPolicies
		return data
	}

	keepGroups := make([]domain.Group, 0, len(data.Groups))
	for _, g := range data.Groups {
		if !droppedGroupIDs[g.ID] {
			keepGroups = append(keepGroups, g)
		}
	}

	keepUserGroupRels := make([]domain.UserGroupRelationship, 0, len(data.UserGroupRelationships))
	for _, r := range data.UserGroupRelationships {
		if !droppedGroupIDs[r.GroupID] {
			keepUserGroupRels = append(keepUserGroupRels, r)
		}
	}

	keepPolicyRels := make([]domain.PolicyRelationship, 0, len(data.PolicyRelationships))
	droppedUserInputPolicyIDs := make(map[string]bool)
	survivingUserInputPolicyIDs := make(map[string]bool)
	for _, r := range data.PolicyRelationships {
		if r.GroupID != "" && droppedGroupIDs[r.GroupID] {
			if r.PolicyModel == domain.ObjectStorageModel {
				droppedUserInputPolicyIDs[r.PolicyID] = true
			}
			continue
		}
		keepPolicyRels = append(keepPolicyRels, r)
		if r.PolicyModel == domain.ObjectStorageModel {
			survivingUserInputPolicyIDs[r.PolicyID] = true
		}
	}

	keepUserInputPolicies := make([]domain.Policy[*objectstorage.Policy], 0, len(data.UserInputPolicies))
	for _, p := range data.UserInputPolicies {
		if droppedUserInputPolicyIDs[p.ID] && !survivingUserInputPolicyIDs[p.ID] {
			continue
		}
		keepUserInputPolicies = append(keepUserInputPolicies, p)
	}

	data.ConditionPolicies = keepConditionPolicies
	data.Groups = keepGroups
	data.UserGroupRelationships = keepUserGroupRels
	data.PolicyRelationships = keepPolicyRels
	data.UserInputPolicies = keepUserInputPolicies
	return data
}
