package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// OrganizationsClient is the slice of the Organizations API used by
// the account directory.
type OrganizationsClient interface {
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

// AccountDirectory holds the organization's member account inventory,
// loaded once per run and queried by ID during collection.
type AccountDirectory struct {
	Client OrganizationsClient
	Logger *slog.Logger

	accounts []model.Account
}

// NewAccountDirectory builds an empty directory; call Load before use.
func NewAccountDirectory(cfg aws.Config, logger *slog.Logger) *AccountDirectory {
	return &AccountDirectory{
		Client: organizations.NewFromConfig(cfg),
		Logger: logger,
	}
}

// Load enumerates all member accounts via organizations:ListAccounts,
// deduplicating exact duplicate records.
func (d *AccountDirectory) Load(ctx context.Context) error {
	d.Logger.Info("Loading organization accounts")

	paginator := organizations.NewListAccountsPaginator(d.Client, &organizations.ListAccountsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list organization accounts: %w", err)
		}
		for _, acct := range page.Accounts {
			entry := model.Account{
				ID:           aws.ToString(acct.Id),
				ARN:          aws.ToString(acct.Arn),
				Email:        aws.ToString(acct.Email),
				Name:         aws.ToString(acct.Name),
				Status:       string(acct.Status),
				JoinedMethod: string(acct.JoinedMethod),
			}
			if acct.JoinedTimestamp != nil {
				entry.JoinedTimestamp = *acct.JoinedTimestamp
			}
			d.add(entry)
		}
	}

	d.Logger.Info("Organization accounts loaded", "count", len(d.accounts))
	return nil
}

func (d *AccountDirectory) add(entry model.Account) {
	for _, existing := range d.accounts {
		if existing == entry {
			return
		}
	}
	d.accounts = append(d.accounts, entry)
}

// LookupByID returns the account record for an account ID.
func (d *AccountDirectory) LookupByID(id string) (model.Account, bool) {
	for _, acct := range d.accounts {
		if acct.ID == id {
			return acct, true
		}
	}
	return model.Account{}, false
}

// NameByID returns the account name for an account ID.
func (d *AccountDirectory) NameByID(id string) (string, bool) {
	acct, ok := d.LookupByID(id)
	if !ok {
		return "", false
	}
	return acct.Name, true
}

// Len reports the directory size.
func (d *AccountDirectory) Len() int {
	return len(d.accounts)
}
