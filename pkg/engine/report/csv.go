// Package report renders the transformed assignment model into flat
// CSV files and an Excel workbook.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// timestampLayout names artifacts so successive runs sort lexically.
const timestampLayout = "20060102_150405"

// Artifact is a rendered report file ready for upload.
type Artifact struct {
	Name    string
	Content []byte
}

// RenderCSV produces the group-assignment rows plus the user and group
// lookup files. Iteration is sorted so identical input yields
// byte-identical output.
func RenderCSV(r *model.Report, now time.Time) ([]Artifact, error) {
	ts := now.Format(timestampLayout)

	assignments, err := assignmentsCSV(r)
	if err != nil {
		return nil, fmt.Errorf("render assignments csv: %w", err)
	}
	users, err := userLookupCSV(r)
	if err != nil {
		return nil, fmt.Errorf("render user lookup csv: %w", err)
	}
	groups, err := groupLookupCSV(r)
	if err != nil {
		return nil, fmt.Errorf("render group lookup csv: %w", err)
	}

	return []Artifact{
		{Name: ts + "_assignments.csv", Content: assignments},
		{Name: ts + "_user_lookup.csv", Content: users},
		{Name: ts + "_group_lookup.csv", Content: groups},
	}, nil
}

// assignmentsCSV flattens group-based grants: one row per group member
// per (account, permission set, group) triple.
func assignmentsCSV(r *model.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"account_id", "account_name", "permission_set_name", "group_id", "user_id"}); err != nil {
		return nil, err
	}

	for _, accountID := range sortedKeys(r.Accounts) {
		acct := r.Accounts[accountID]
		for _, psName := range sortedKeys(acct.PermissionSets) {
			grant := acct.PermissionSets[psName]
			for _, groupID := range grant.Groups {
				group, ok := r.Principals.Groups[groupID]
				if !ok {
					continue
				}
				for _, userID := range group.AssignedUsers {
					row := []string{accountID, acct.AccountName, psName, groupID, userID}
					if err := w.Write(row); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func userLookupCSV(r *model.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"principal_id", "display_name", "user_name"}); err != nil {
		return nil, err
	}
	for _, userID := range sortedKeys(r.Principals.Users) {
		user := r.Principals.Users[userID]
		if err := w.Write([]string{userID, user.DisplayName, user.UserName}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func groupLookupCSV(r *model.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"principal_id", "display_name", "external_id_0", "external_id_issuer_0"}); err != nil {
		return nil, err
	}
	for _, groupID := range sortedKeys(r.Principals.Groups) {
		group := r.Principals.Groups[groupID]
		// Only the first external ID is reported.
		externalID, issuer := "", ""
		if len(group.ExternalIDs) > 0 {
			externalID = group.ExternalIDs[0].ID
			issuer = group.ExternalIDs[0].Issuer
		}
		if err := w.Write([]string{groupID, group.DisplayName, externalID, issuer}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
