// Package model defines the data structures shared between the
// collector, the identity resolver, the transformer and the renderers.
package model

import "time"

// Account is an AWS Organizations member account as reported by
// organizations:ListAccounts.
type Account struct {
	ID              string    `json:"id"`
	ARN             string    `json:"arn"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	JoinedMethod    string    `json:"joined_method"`
	JoinedTimestamp time.Time `json:"joined_timestamp"`
}

// PermissionSetDetails holds the describe-level attributes of a
// permission set.
type PermissionSetDetails struct {
	Name            string `json:"name"`
	ARN             string `json:"arn"`
	Description     string `json:"description"`
	SessionDuration string `json:"session_duration"`
	RelayState      string `json:"relay_state"`
}

// Assignment is the principal split for one (permission set, account)
// pair. A principal ID is either a user ID or a group ID, never both.
type Assignment struct {
	Users  []string `json:"users"`
	Groups []string `json:"groups"`
}

// AssignedAccount is an account a permission set is provisioned to,
// joined against the account directory for name and status.
type AssignedAccount struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Assignments Assignment `json:"assignments"`
}

// ProvisionedPermissionSet pairs a permission set with the accounts it
// is provisioned to.
type ProvisionedPermissionSet struct {
	Details  PermissionSetDetails `json:"permissionset_details"`
	Accounts []AssignedAccount    `json:"accounts"`
}

// AssignmentSet is the collector output. It is an ordered slice rather
// than a map keyed by ARN so that downstream iteration order matches
// the enumeration order of the backend.
type AssignmentSet []ProvisionedPermissionSet

// User holds the display attributes of an identity store user.
type User struct {
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
}

// ExternalID links a group to an identity in an external issuer.
type ExternalID struct {
	Issuer string `json:"issuer"`
	ID     string `json:"id"`
}

// Group holds the display attributes and expanded membership of an
// identity store group.
type Group struct {
	DisplayName   string       `json:"display_name"`
	AssignedUsers []string     `json:"assigned_users"`
	ExternalIDs   []ExternalID `json:"external_ids"`
}

// PermissionSetGrant is one permission set as seen from a single
// account in the denormalized report.
type PermissionSetGrant struct {
	PermissionSetARN string   `json:"permission_set_arn"`
	Users            []string `json:"users"`
	Groups           []string `json:"groups"`
}

// AccountReport is the account-centric view of all grants touching one
// account, keyed by permission set name.
type AccountReport struct {
	AccountName    string                        `json:"account_name"`
	AccountStatus  string                        `json:"account_status"`
	PermissionSets map[string]PermissionSetGrant `json:"permission_sets"`
}

// Principals holds every user and group referenced by at least one
// assignment, directly or via group membership.
type Principals struct {
	Users  map[string]User  `json:"users"`
	Groups map[string]Group `json:"groups"`
}

// Report is the denormalized, account-keyed report model consumed by
// the renderers.
type Report struct {
	Accounts   map[string]*AccountReport `json:"accounts"`
	Principals Principals                `json:"principals"`
}

// NewReport returns an empty report with all maps initialized.
func NewReport() *Report {
	return &Report{
		Accounts: map[string]*AccountReport{},
		Principals: Principals{
			Users:  map[string]User{},
			Groups: map[string]Group{},
		},
	}
}
