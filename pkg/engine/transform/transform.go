// Package transform reshapes the permission-set-keyed collector output
// into the account-keyed report model consumed by the renderers.
package transform

import (
	"context"
	"log/slog"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// PrincipalResolver is the identity lookup the transformer queries on
// demand. *identity.Resolver satisfies it.
type PrincipalResolver interface {
	ResolveUser(ctx context.Context, userID string) model.User
	ResolveGroup(ctx context.Context, groupID string) model.Group
}

// Transformer denormalizes assignment data and collects the set of
// referenced principals.
type Transformer struct {
	Resolver PrincipalResolver
	Logger   *slog.Logger
}

func New(resolver PrincipalResolver, logger *slog.Logger) *Transformer {
	return &Transformer{Resolver: resolver, Logger: logger}
}

// Transform builds the account-keyed report. Groups are resolved
// before users: membership expansion can reference users that have no
// direct assignment, and those must be known before the user pass
// runs. Referenced IDs are accumulated in first-seen order so output
// is reproducible across runs.
func (t *Transformer) Transform(ctx context.Context, set model.AssignmentSet) *model.Report {
	report := model.NewReport()

	var referencedUsers, referencedGroups []string
	seenUsers := map[string]bool{}
	seenGroups := map[string]bool{}

	for _, ps := range set {
		for _, acct := range ps.Accounts {
			entry, ok := report.Accounts[acct.ID]
			if !ok {
				entry = &model.AccountReport{
					AccountName:    acct.Name,
					AccountStatus:  acct.Status,
					PermissionSets: map[string]model.PermissionSetGrant{},
				}
				report.Accounts[acct.ID] = entry
			}
			// Account metadata is not re-validated when the account
			// shows up again under another permission set.
			entry.PermissionSets[ps.Details.Name] = model.PermissionSetGrant{
				PermissionSetARN: ps.Details.ARN,
				Users:            acct.Assignments.Users,
				Groups:           acct.Assignments.Groups,
			}

			for _, id := range acct.Assignments.Users {
				if !seenUsers[id] {
					seenUsers[id] = true
					referencedUsers = append(referencedUsers, id)
				}
			}
			for _, id := range acct.Assignments.Groups {
				if !seenGroups[id] {
					seenGroups[id] = true
					referencedGroups = append(referencedGroups, id)
				}
			}
		}
	}

	for _, groupID := range referencedGroups {
		group := t.Resolver.ResolveGroup(ctx, groupID)
		report.Principals.Groups[groupID] = group
		for _, userID := range group.AssignedUsers {
			if !seenUsers[userID] {
				seenUsers[userID] = true
				referencedUsers = append(referencedUsers, userID)
			}
		}
	}

	for _, userID := range referencedUsers {
		if userID == "" {
			// Known-acceptable dangling reference from malformed
			// upstream data.
			t.Logger.Error("Empty user ID referenced by an assignment, leaving it unresolved")
			continue
		}
		report.Principals.Users[userID] = t.Resolver.ResolveUser(ctx, userID)
	}

	return report
}
