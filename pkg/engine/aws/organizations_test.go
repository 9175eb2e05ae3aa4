package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrganizations implements OrganizationsClient for testing.
type mockOrganizations struct {
	ListAccountsFunc func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

func (m *mockOrganizations) ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, params, optFns...)
	}
	return &organizations.ListAccountsOutput{}, nil
}

func TestAccountDirectoryLoadDedupes(t *testing.T) {
	joined := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	acct := types.Account{
		Id:              aws.String("111111111111"),
		Arn:             aws.String("arn:aws:organizations::111111111111:account/o-x/111111111111"),
		Email:           aws.String("prod@example.com"),
		Name:            aws.String("prod"),
		Status:          types.AccountStatusActive,
		JoinedMethod:    types.AccountJoinedMethodInvited,
		JoinedTimestamp: aws.Time(joined),
	}

	pages := 0
	mock := &mockOrganizations{
		ListAccountsFunc: func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
			pages++
			if pages == 1 {
				return &organizations.ListAccountsOutput{
					Accounts:  []types.Account{acct},
					NextToken: aws.String("page-2"),
				}, nil
			}
			// Same record again on the second page.
			return &organizations.ListAccountsOutput{Accounts: []types.Account{acct}}, nil
		},
	}
	d := &AccountDirectory{Client: mock, Logger: testLogger()}

	require.NoError(t, d.Load(context.Background()))
	assert.Equal(t, 1, d.Len())

	got, ok := d.LookupByID("111111111111")
	require.True(t, ok)
	assert.Equal(t, "prod", got.Name)
	assert.Equal(t, "ACTIVE", got.Status)
	assert.Equal(t, "INVITED", got.JoinedMethod)
	assert.Equal(t, joined, got.JoinedTimestamp)
}

func TestAccountDirectoryLookupMiss(t *testing.T) {
	d := testDirectory()

	_, ok := d.LookupByID("999999999999")
	assert.False(t, ok)

	name, ok := d.NameByID("999999999999")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestAccountDirectoryLoadError(t *testing.T) {
	mock := &mockOrganizations{
		ListAccountsFunc: func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
			return nil, errors.New("organizations unavailable")
		},
	}
	d := &AccountDirectory{Client: mock, Logger: testLogger()}

	err := d.Load(context.Background())
	assert.Error(t, err)
	assert.Zero(t, d.Len())
}
