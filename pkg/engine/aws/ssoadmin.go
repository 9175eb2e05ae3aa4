package aws

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// ErrNoInstance is returned when the account has no Identity Center
// instance to report on.
var ErrNoInstance = errors.New("no identity center instance found")

// SSOAdminClient is the slice of the SSO Admin API used by the
// collector.
type SSOAdminClient interface {
	ListInstances(ctx context.Context, params *ssoadmin.ListInstancesInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListInstancesOutput, error)
	ListPermissionSets(ctx context.Context, params *ssoadmin.ListPermissionSetsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsOutput, error)
	DescribePermissionSet(ctx context.Context, params *ssoadmin.DescribePermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error)
	ListAccountsForProvisionedPermissionSet(ctx context.Context, params *ssoadmin.ListAccountsForProvisionedPermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountsForProvisionedPermissionSetOutput, error)
	ListAccountAssignments(ctx context.Context, params *ssoadmin.ListAccountAssignmentsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountAssignmentsOutput, error)
}

// Collector enumerates permission sets, the accounts they are
// provisioned to and the per-account principal assignments for one
// Identity Center instance. Collection is best-effort: a listing
// failure degrades that branch to an empty result and the walk
// continues.
type Collector struct {
	Client   SSOAdminClient
	Accounts *AccountDirectory
	Logger   *slog.Logger

	InstanceARN     string
	IdentityStoreID string
}

// NewCollector builds a collector; call DiscoverInstance before
// Collect unless the instance ARN and identity store ID are set.
func NewCollector(cfg aws.Config, accounts *AccountDirectory, logger *slog.Logger) *Collector {
	return &Collector{
		Client:   ssoadmin.NewFromConfig(cfg),
		Accounts: accounts,
		Logger:   logger,
	}
}

// DiscoverInstance resolves the instance ARN and identity store ID,
// taking the first instance the backend reports when none was
// supplied.
func (c *Collector) DiscoverInstance(ctx context.Context) error {
	if c.InstanceARN != "" && c.IdentityStoreID != "" {
		return nil
	}

	out, err := c.Client.ListInstances(ctx, &ssoadmin.ListInstancesInput{})
	if err != nil {
		c.Logger.Error("Failed to list identity center instances", "error", err)
		return err
	}
	if len(out.Instances) == 0 {
		return ErrNoInstance
	}

	inst := out.Instances[0]
	c.InstanceARN = aws.ToString(inst.InstanceArn)
	c.IdentityStoreID = aws.ToString(inst.IdentityStoreId)
	c.Logger.Info("Discovered identity center instance",
		"instance_arn", c.InstanceARN, "identity_store_id", c.IdentityStoreID)
	return nil
}

// Collect walks every permission set (filtered by scope names when
// provided) and fills in its provisioned accounts and per-account
// assignment lists.
func (c *Collector) Collect(ctx context.Context, scope []string) model.AssignmentSet {
	set := c.loadPermissionSets(ctx, scope)
	for i := range set {
		for j := range set[i].Accounts {
			acct := &set[i].Accounts[j]
			acct.Assignments = c.accountAssignments(ctx, set[i].Details.ARN, acct.ID)
		}
	}
	return set
}

func (c *Collector) loadPermissionSets(ctx context.Context, scope []string) model.AssignmentSet {
	c.Logger.Info("Retrieving permission sets")

	inScope := make(map[string]bool, len(scope))
	for _, name := range scope {
		inScope[name] = true
	}

	set := model.AssignmentSet{}
	paginator := ssoadmin.NewListPermissionSetsPaginator(c.Client, &ssoadmin.ListPermissionSetsInput{
		InstanceArn: aws.String(c.InstanceARN),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.Logger.Error("Failed to list permission sets", "error", err)
			return set
		}
		for _, arn := range page.PermissionSets {
			details := c.describePermissionSet(ctx, arn)
			if len(inScope) > 0 && !inScope[details.Name] {
				continue
			}
			set = append(set, model.ProvisionedPermissionSet{
				Details:  details,
				Accounts: c.accountsForPermissionSet(ctx, arn),
			})
		}
	}
	return set
}

func (c *Collector) describePermissionSet(ctx context.Context, arn string) model.PermissionSetDetails {
	out, err := c.Client.DescribePermissionSet(ctx, &ssoadmin.DescribePermissionSetInput{
		InstanceArn:      aws.String(c.InstanceARN),
		PermissionSetArn: aws.String(arn),
	})
	if err != nil || out.PermissionSet == nil {
		c.Logger.Error("Failed to describe permission set", "permission_set_arn", arn, "error", err)
		return model.PermissionSetDetails{ARN: arn}
	}

	ps := out.PermissionSet
	return model.PermissionSetDetails{
		Name:            aws.ToString(ps.Name),
		ARN:             aws.ToString(ps.PermissionSetArn),
		Description:     aws.ToString(ps.Description),
		SessionDuration: aws.ToString(ps.SessionDuration),
		RelayState:      aws.ToString(ps.RelayState),
	}
}

func (c *Collector) accountsForPermissionSet(ctx context.Context, arn string) []model.AssignedAccount {
	accounts := []model.AssignedAccount{}
	paginator := ssoadmin.NewListAccountsForProvisionedPermissionSetPaginator(c.Client,
		&ssoadmin.ListAccountsForProvisionedPermissionSetInput{
			InstanceArn:      aws.String(c.InstanceARN),
			PermissionSetArn: aws.String(arn),
		})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.Logger.Error("Failed to list accounts for permission set",
				"permission_set_arn", arn, "error", err)
			return accounts
		}
		for _, accountID := range page.AccountIds {
			// Accounts missing from the directory are dropped.
			acct, ok := c.Accounts.LookupByID(accountID)
			if !ok {
				continue
			}
			accounts = append(accounts, model.AssignedAccount{
				ID:     acct.ID,
				Name:   acct.Name,
				Status: acct.Status,
			})
		}
	}
	return accounts
}

func (c *Collector) accountAssignments(ctx context.Context, arn, accountID string) model.Assignment {
	c.Logger.Debug("Retrieving assignments", "permission_set_arn", arn, "account_id", accountID)

	assignments := model.Assignment{Users: []string{}, Groups: []string{}}
	paginator := ssoadmin.NewListAccountAssignmentsPaginator(c.Client, &ssoadmin.ListAccountAssignmentsInput{
		InstanceArn:      aws.String(c.InstanceARN),
		PermissionSetArn: aws.String(arn),
		AccountId:        aws.String(accountID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.Logger.Error("Failed to list account assignments",
				"permission_set_arn", arn, "account_id", accountID, "error", err)
			return assignments
		}
		for _, assignment := range page.AccountAssignments {
			principalID := aws.ToString(assignment.PrincipalId)
			if principalID == "" {
				continue
			}
			switch assignment.PrincipalType {
			case types.PrincipalTypeUser:
				assignments.Users = append(assignments.Users, principalID)
			case types.PrincipalTypeGroup:
				assignments.Groups = append(assignments.Groups, principalID)
			}
		}
	}
	return assignments
}
