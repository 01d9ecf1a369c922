// Package iam holds the in-memory indexed graph of accounts, users,
// groups, policies and their relationships, built fresh on every reload.
package iam

import (
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// RawData is the flat, list-shaped form fetched from the manager, before
// Container indexes it.
type RawData struct {
	Accounts              []domain.Account
	Users                 []domain.User
	Groups                []domain.Group
	UserInputPolicies     []domain.Policy[*objectstorage.Policy]
	ConditionPolicies     []domain.Policy[*domain.ConditionPolicy]
	UserGroupRelationships []domain.UserGroupRelationship
	PolicyRelationships   []domain.PolicyRelationship
}

// Container is the queryable, read-only snapshot built from RawData. It is
// never mutated after construction.
type Container struct {
	accounts            map[string]domain.Account
	users               map[string]domain.User
	groups              map[string]domain.Group
	userInputPolicies   map[string]domain.Policy[*objectstorage.Policy]
	conditionPolicies   map[string]domain.Policy[*domain.ConditionPolicy]
	baseAccessKeyToUser map[string]string
	userToGroupIDs      map[string][]string
	policyRelationships []domain.PolicyRelationship
}

// New builds an indexed Container from raw lists.
func New(data RawData) *Container {
	c := &Container{
		accounts:            make(map[string]domain.Account, len(data.Accounts)),
		users:               make(map[string]domain.User, len(data.Users)),
		groups:              make(map[string]domain.Group, len(data.Groups)),
		userInputPolicies:   make(map[string]domain.Policy[*objectstorage.Policy], len(data.UserInputPolicies)),
		conditionPolicies:   make(map[string]domain.Policy[*domain.ConditionPolicy], len(data.ConditionPolicies)),
		baseAccessKeyToUser: make(map[string]string, len(data.Users)),
		userToGroupIDs:      make(map[string][]string),
		policyRelationships: data.PolicyRelationships,
	}
	for _, a := range data.Accounts {
		c.accounts[a.Code] = a
	}
	for _, u := range data.Users {
		c.users[u.ID] = u
		c.baseAccessKeyToUser[u.BaseAccessKey] = u.ID
	}
	for _, g := range data.Groups {
		c.groups[g.ID] = g
	}
	for _, p := range data.UserInputPolicies {
		c.userInputPolicies[p.ID] = p
	}
	for _, p := range data.ConditionPolicies {
		c.conditionPolicies[p.ID] = p
	}
	for _, rel := range data.UserGroupRelationships {
		c.userToGroupIDs[rel.UserID] = append(c.userToGroupIDs[rel.UserID], rel.GroupID)
	}
	return c
}

// FindAccountByCode looks up an Account by its cloud-tenant code.
func (c *Container) FindAccountByCode(code string) (domain.Account, error) {
	a, ok := c.accounts[code]
	if !ok {
		return domain.Account{}, proxyerrors.NewInvalidAccessKey("account not found for access key with code: %s", code)
	}
	return a, nil
}

// FindUserByBaseAccessKey resolves the virtual-access-key's base portion to
// a User.
func (c *Container) FindUserByBaseAccessKey(baseAccessKey string) (domain.User, error) {
	userID, ok := c.baseAccessKeyToUser[baseAccessKey]
	if !ok {
		return domain.User{}, proxyerrors.NewInvalidAccessKey("user not found for base access key id: %q", baseAccessKey)
	}
	u, ok := c.users[userID]
	if !ok {
		return domain.User{}, proxyerrors.NewUserNotFound("user not found by id: %s", userID)
	}
	return u, nil
}

// FindGroupsByUser returns every Group the user belongs to.
func (c *Container) FindGroupsByUser(user domain.User) ([]domain.Group, error) {
	groupIDs, ok := c.userToGroupIDs[user.ID]
	if !ok {
		return nil, proxyerrors.NewGroupNotFound("groups not found for user id: %s", user.ID)
	}
	groups := make([]domain.Group, 0, len(groupIDs))
	for _, gid := range groupIDs {
		g, ok := c.groups[gid]
		if !ok {
			return nil, proxyerrors.NewGroupNotFound("group not found by id: %s", gid)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
