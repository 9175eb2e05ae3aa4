package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

const (
	assignmentsSheet = "Assignments"
	summarySheet     = "Group-User Summary"
)

// RenderExcel produces the two-sheet assignment workbook: a flat
// assignment listing and a group-membership summary.
func RenderExcel(r *model.Report, now time.Time) (Artifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", assignmentsSheet)
	if _, err := f.NewSheet(summarySheet); err != nil {
		return Artifact{}, fmt.Errorf("create summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D3D3D3"}},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("create header style: %w", err)
	}

	if err := writeAssignmentsSheet(f, r, headerStyle); err != nil {
		return Artifact{}, err
	}
	if err := writeSummarySheet(f, r, headerStyle); err != nil {
		return Artifact{}, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Artifact{}, fmt.Errorf("serialize workbook: %w", err)
	}

	return Artifact{
		Name:    now.Format(timestampLayout) + "_assignments.xlsx",
		Content: buf.Bytes(),
	}, nil
}

func writeAssignmentsSheet(f *excelize.File, r *model.Report, headerStyle int) error {
	headers := []interface{}{
		"Account-ID", "Account-Name", "PermSet-Name", "Group-Name",
		"User-Name", "User-Display-Name", "Group-ID", "User-ID",
	}
	if err := f.SetSheetRow(assignmentsSheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetCellStyle(assignmentsSheet, "A1", "H1", headerStyle); err != nil {
		return err
	}

	widths := map[string]float64{"A": 20, "B": 30, "C": 30, "D": 30, "E": 30, "F": 30, "G": 50, "H": 50}
	for col, width := range widths {
		if err := f.SetColWidth(assignmentsSheet, col, col, width); err != nil {
			return err
		}
	}
	if err := freezeHeader(f, assignmentsSheet); err != nil {
		return err
	}
	if err := f.AutoFilter(assignmentsSheet, "A1:H1", nil); err != nil {
		return err
	}

	row := 2
	for _, accountID := range sortedKeys(r.Accounts) {
		acct := r.Accounts[accountID]
		for _, psName := range sortedKeys(acct.PermissionSets) {
			grant := acct.PermissionSets[psName]

			for _, groupID := range grant.Groups {
				group := r.Principals.Groups[groupID]
				groupName := group.DisplayName
				if groupName == "" {
					groupName = "Group-" + groupID
				}
				for _, userID := range group.AssignedUsers {
					userName, displayName := userLabels(r, userID)
					cells := []interface{}{
						accountID, acct.AccountName, psName, groupName,
						userName, displayName, groupID, userID,
					}
					if err := f.SetSheetRow(assignmentsSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
						return err
					}
					row++
				}
			}

			// Direct user assignments carry no group columns.
			for _, userID := range grant.Users {
				userName, displayName := userLabels(r, userID)
				cells := []interface{}{
					accountID, acct.AccountName, psName, "",
					userName, displayName, "", userID,
				}
				if err := f.SetSheetRow(assignmentsSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
					return err
				}
				row++
			}
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, r *model.Report, headerStyle int) error {
	headers := []interface{}{"Group-Name", "User-Name", "User-Display-Name", "Group-ID", "User-ID"}
	if err := f.SetSheetRow(summarySheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "E1", headerStyle); err != nil {
		return err
	}

	widths := map[string]float64{"A": 30, "B": 30, "C": 30, "D": 50, "E": 50}
	for col, width := range widths {
		if err := f.SetColWidth(summarySheet, col, col, width); err != nil {
			return err
		}
	}
	if err := freezeHeader(f, summarySheet); err != nil {
		return err
	}

	row := 2
	for _, groupID := range sortedKeys(r.Principals.Groups) {
		group := r.Principals.Groups[groupID]
		groupName := group.DisplayName
		if groupName == "" {
			groupName = "Group-" + groupID
		}
		for _, userID := range group.AssignedUsers {
			userName, displayName := userLabels(r, userID)
			cells := []interface{}{groupName, userName, displayName, groupID, userID}
			if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &cells); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// userLabels returns display labels, falling back to an ID-derived
// label for dangling references.
func userLabels(r *model.Report, userID string) (userName, displayName string) {
	user, ok := r.Principals.Users[userID]
	if !ok {
		return "User-" + userID, "User-" + userID
	}
	return user.UserName, user.DisplayName
}

func freezeHeader(f *excelize.File, sheet string) error {
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
