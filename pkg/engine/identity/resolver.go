// Package identity resolves Identity Store user and group IDs to
// display attributes, memoizing every successful lookup for the
// lifetime of one run.
package identity

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/types"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// Unknown is the placeholder for attributes the backend did not return.
const Unknown = "n/a"

// IdentityStoreClient is the slice of the Identity Store API used by
// the resolver.
type IdentityStoreClient interface {
	DescribeUser(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error)
	DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error)
	ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error)
	ListGroups(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error)
	ListGroupMemberships(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error)
}

// Resolver looks up users and groups in one identity store. It owns
// the cache; the transformer holds a reference and queries on demand.
type Resolver struct {
	Client  IdentityStoreClient
	StoreID string
	Logger  *slog.Logger

	store *Store
}

// NewResolver builds a resolver against the given identity store.
func NewResolver(cfg aws.Config, storeID string, logger *slog.Logger) *Resolver {
	return &Resolver{
		Client:  identitystore.NewFromConfig(cfg),
		StoreID: storeID,
		Logger:  logger,
		store:   NewStore(),
	}
}

// NewResolverWithClient builds a resolver around an injected client.
func NewResolverWithClient(client IdentityStoreClient, storeID string, logger *slog.Logger) *Resolver {
	return &Resolver{
		Client:  client,
		StoreID: storeID,
		Logger:  logger,
		store:   NewStore(),
	}
}

// ResolveUser returns the display attributes for a user ID. Cache hits
// never touch the backend. A lookup failure returns placeholder
// attributes without caching them, so a later lookup can still succeed.
func (r *Resolver) ResolveUser(ctx context.Context, userID string) model.User {
	fallback := model.User{UserName: Unknown, DisplayName: Unknown}
	if userID == "" {
		r.Logger.Error("Empty user ID in assignment data")
		return fallback
	}

	if u, ok := r.store.User(userID); ok {
		return u
	}

	out, err := r.Client.DescribeUser(ctx, &identitystore.DescribeUserInput{
		IdentityStoreId: aws.String(r.StoreID),
		UserId:          aws.String(userID),
	})
	if err != nil {
		r.Logger.Error("Failed to describe user", "user_id", userID, "error", err)
		return fallback
	}

	u := model.User{
		UserName:    orUnknown(out.UserName),
		DisplayName: orUnknown(out.DisplayName),
	}
	r.store.PutUser(userID, u)
	return u
}

// ResolveGroup returns the display attributes and expanded membership
// for a group ID. Membership listing failures degrade to an empty
// member list; the group metadata is still cached. Describe failures
// return placeholder attributes without caching.
func (r *Resolver) ResolveGroup(ctx context.Context, groupID string) model.Group {
	fallback := model.Group{
		DisplayName:   Unknown,
		AssignedUsers: []string{},
		ExternalIDs:   []model.ExternalID{},
	}
	if groupID == "" {
		r.Logger.Error("Empty group ID in assignment data")
		return fallback
	}

	if g, ok := r.store.Group(groupID); ok {
		return g
	}

	out, err := r.Client.DescribeGroup(ctx, &identitystore.DescribeGroupInput{
		IdentityStoreId: aws.String(r.StoreID),
		GroupId:         aws.String(groupID),
	})
	if err != nil {
		r.Logger.Error("Failed to describe group", "group_id", groupID, "error", err)
		return fallback
	}

	g := model.Group{
		DisplayName:   orUnknown(out.DisplayName),
		AssignedUsers: r.listGroupMembers(ctx, groupID),
		ExternalIDs:   externalIDs(out.ExternalIds),
	}
	r.store.PutGroup(groupID, g)
	return g
}

// Prime bulk-loads all users and groups so that targeted lookups
// during transformation hit the cache. Not required for correctness;
// memoized lazy resolution alone produces the same report.
func (r *Resolver) Prime(ctx context.Context) {
	r.Logger.Info("Pre-populating user and group caches")
	r.primeUsers(ctx)
	r.primeGroups(ctx)
}

// CacheSizes reports how many users and groups are currently cached.
func (r *Resolver) CacheSizes() (users, groups int) {
	return r.store.Sizes()
}

func (r *Resolver) primeUsers(ctx context.Context) {
	paginator := identitystore.NewListUsersPaginator(r.Client, &identitystore.ListUsersInput{
		IdentityStoreId: aws.String(r.StoreID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.Logger.Error("Failed to list users", "error", err)
			return
		}
		for _, u := range page.Users {
			if u.UserId == nil {
				continue
			}
			r.store.PutUser(*u.UserId, model.User{
				UserName:    orUnknown(u.UserName),
				DisplayName: orUnknown(u.DisplayName),
			})
		}
	}
}

func (r *Resolver) primeGroups(ctx context.Context) {
	paginator := identitystore.NewListGroupsPaginator(r.Client, &identitystore.ListGroupsInput{
		IdentityStoreId: aws.String(r.StoreID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.Logger.Error("Failed to list groups", "error", err)
			return
		}
		for _, g := range page.Groups {
			if g.GroupId == nil {
				continue
			}
			// Eager resolution so membership expansion is cached too.
			r.ResolveGroup(ctx, *g.GroupId)
		}
	}
}

func (r *Resolver) listGroupMembers(ctx context.Context, groupID string) []string {
	userIDs := []string{}
	paginator := identitystore.NewListGroupMembershipsPaginator(r.Client, &identitystore.ListGroupMembershipsInput{
		IdentityStoreId: aws.String(r.StoreID),
		GroupId:         aws.String(groupID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.Logger.Error("Failed to list group memberships", "group_id", groupID, "error", err)
			return userIDs
		}
		for _, m := range page.GroupMemberships {
			if member, ok := m.MemberId.(*types.MemberIdMemberUserId); ok && member.Value != "" {
				userIDs = append(userIDs, member.Value)
			}
		}
	}
	return userIDs
}

func externalIDs(ids []types.ExternalId) []model.ExternalID {
	out := []model.ExternalID{}
	for _, id := range ids {
		out = append(out, model.ExternalID{
			Issuer: aws.ToString(id.Issuer),
			ID:     aws.ToString(id.Id),
		})
	}
	return out
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return Unknown
	}
	return *s
}
