package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockIdentityStore implements IdentityStoreClient and counts calls.
type mockIdentityStore struct {
	DescribeUserFunc         func(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error)
	DescribeGroupFunc        func(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error)
	ListUsersFunc            func(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error)
	ListGroupsFunc           func(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error)
	ListGroupMembershipsFunc func(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error)

	DescribeUserCalls  int
	DescribeGroupCalls int
}

func (m *mockIdentityStore) DescribeUser(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
	m.DescribeUserCalls++
	if m.DescribeUserFunc != nil {
		return m.DescribeUserFunc(ctx, params, optFns...)
	}
	return &identitystore.DescribeUserOutput{}, nil
}

func (m *mockIdentityStore) DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
	m.DescribeGroupCalls++
	if m.DescribeGroupFunc != nil {
		return m.DescribeGroupFunc(ctx, params, optFns...)
	}
	return &identitystore.DescribeGroupOutput{}, nil
}

func (m *mockIdentityStore) ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, params, optFns...)
	}
	return &identitystore.ListUsersOutput{}, nil
}

func (m *mockIdentityStore) ListGroups(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
	if m.ListGroupsFunc != nil {
		return m.ListGroupsFunc(ctx, params, optFns...)
	}
	return &identitystore.ListGroupsOutput{}, nil
}

func (m *mockIdentityStore) ListGroupMemberships(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error) {
	if m.ListGroupMembershipsFunc != nil {
		return m.ListGroupMembershipsFunc(ctx, params, optFns...)
	}
	return &identitystore.ListGroupMembershipsOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveUserMemoization(t *testing.T) {
	mock := &mockIdentityStore{
		DescribeUserFunc: func(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
			return &identitystore.DescribeUserOutput{
				UserName:    aws.String("jdoe"),
				DisplayName: aws.String("Jane Doe"),
			}, nil
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	first := r.ResolveUser(context.Background(), "u-1")
	second := r.ResolveUser(context.Background(), "u-1")

	assert.Equal(t, "jdoe", first.UserName)
	assert.Equal(t, "Jane Doe", first.DisplayName)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.DescribeUserCalls, "second lookup must hit the cache")
}

func TestResolveUserFailureNotCached(t *testing.T) {
	failing := true
	mock := &mockIdentityStore{
		DescribeUserFunc: func(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
			if failing {
				return nil, errors.New("throttled")
			}
			return &identitystore.DescribeUserOutput{
				UserName:    aws.String("jdoe"),
				DisplayName: aws.String("Jane Doe"),
			}, nil
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	got := r.ResolveUser(context.Background(), "u-1")
	assert.Equal(t, Unknown, got.UserName)
	assert.Equal(t, Unknown, got.DisplayName)

	// The failed lookup must not poison the cache.
	failing = false
	got = r.ResolveUser(context.Background(), "u-1")
	assert.Equal(t, "jdoe", got.UserName)
	assert.Equal(t, 2, mock.DescribeUserCalls)

	// The successful result is cached from here on.
	_ = r.ResolveUser(context.Background(), "u-1")
	assert.Equal(t, 2, mock.DescribeUserCalls)
}

func TestResolveUserEmptyID(t *testing.T) {
	mock := &mockIdentityStore{}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	got := r.ResolveUser(context.Background(), "")

	assert.Equal(t, Unknown, got.UserName)
	assert.Zero(t, mock.DescribeUserCalls)
}

func TestResolveGroupExpandsMembership(t *testing.T) {
	mock := &mockIdentityStore{
		DescribeGroupFunc: func(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
			return &identitystore.DescribeGroupOutput{
				DisplayName: aws.String("Platform Admins"),
				ExternalIds: []types.ExternalId{
					{Issuer: aws.String("https://idp.example.com"), Id: aws.String("ext-1")},
				},
			}, nil
		},
		ListGroupMembershipsFunc: func(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error) {
			return &identitystore.ListGroupMembershipsOutput{
				GroupMemberships: []types.GroupMembership{
					{MemberId: &types.MemberIdMemberUserId{Value: "u-1"}},
					{MemberId: &types.MemberIdMemberUserId{Value: "u-2"}},
				},
			}, nil
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	got := r.ResolveGroup(context.Background(), "g-1")

	require.Equal(t, "Platform Admins", got.DisplayName)
	assert.Equal(t, []string{"u-1", "u-2"}, got.AssignedUsers)
	require.Len(t, got.ExternalIDs, 1)
	assert.Equal(t, "ext-1", got.ExternalIDs[0].ID)

	_ = r.ResolveGroup(context.Background(), "g-1")
	assert.Equal(t, 1, mock.DescribeGroupCalls)
}

func TestResolveGroupMembershipFailureDegrades(t *testing.T) {
	mock := &mockIdentityStore{
		DescribeGroupFunc: func(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
			return &identitystore.DescribeGroupOutput{DisplayName: aws.String("Ops")}, nil
		},
		ListGroupMembershipsFunc: func(ctx context.Context, params *identitystore.ListGroupMembershipsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupMembershipsOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	got := r.ResolveGroup(context.Background(), "g-1")

	assert.Equal(t, "Ops", got.DisplayName)
	assert.Empty(t, got.AssignedUsers)

	// Metadata is still cached despite the membership failure.
	_ = r.ResolveGroup(context.Background(), "g-1")
	assert.Equal(t, 1, mock.DescribeGroupCalls)
}

func TestResolveGroupDescribeFailureNotCached(t *testing.T) {
	mock := &mockIdentityStore{
		DescribeGroupFunc: func(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
			return nil, errors.New("boom")
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	got := r.ResolveGroup(context.Background(), "g-1")
	assert.Equal(t, Unknown, got.DisplayName)
	assert.Empty(t, got.AssignedUsers)

	_ = r.ResolveGroup(context.Background(), "g-1")
	assert.Equal(t, 2, mock.DescribeGroupCalls, "failures must not be cached")
}

func TestPrimeFillsBothCaches(t *testing.T) {
	mock := &mockIdentityStore{
		ListUsersFunc: func(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
			return &identitystore.ListUsersOutput{
				Users: []types.User{
					{UserId: aws.String("u-1"), UserName: aws.String("jdoe"), DisplayName: aws.String("Jane Doe")},
					{UserId: aws.String("u-2"), UserName: aws.String("asmith")},
				},
			}, nil
		},
		ListGroupsFunc: func(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
			return &identitystore.ListGroupsOutput{
				Groups: []types.Group{{GroupId: aws.String("g-1")}},
			}, nil
		},
		DescribeGroupFunc: func(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
			return &identitystore.DescribeGroupOutput{DisplayName: aws.String("Ops")}, nil
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	r.Prime(context.Background())

	users, groups := r.CacheSizes()
	assert.Equal(t, 2, users)
	assert.Equal(t, 1, groups)

	// List attributes missing a display name fall back to the sentinel.
	u := r.ResolveUser(context.Background(), "u-2")
	assert.Equal(t, Unknown, u.DisplayName)
	assert.Zero(t, mock.DescribeUserCalls, "primed lookups must not call the backend")
}

func TestPrimeListFailureDegrades(t *testing.T) {
	mock := &mockIdentityStore{
		ListUsersFunc: func(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
			return nil, errors.New("denied")
		},
		ListGroupsFunc: func(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
			return nil, errors.New("denied")
		},
	}
	r := NewResolverWithClient(mock, "d-123", testLogger())

	r.Prime(context.Background())

	users, groups := r.CacheSizes()
	assert.Zero(t, users)
	assert.Zero(t, groups)
}
