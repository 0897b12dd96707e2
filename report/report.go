/*
report.go - Spreadsheet export of employee leave balances

PURPOSE:
  Renders the admin employee list (one row per employee, one column per
  active leave type) as an XLSX workbook for payroll and HR.

LAYOUT:
  Sheet "Balances"
    A: Name   B: Email   C: Joined   D..: one column per leave type
  Row 1 is a bold, frozen header. Balances are numeric cells.

SEE ALSO:
  - leave/balance.go: BalanceQuery.AllEmployeeBalances
  - api/handlers.go: GET /api/admin/employees/export
  - cmd/leavectl: export subcommand
*/
package report

import (
	"fmt"
	"io"

	"github.com/warp/leave-ledger/leave"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Balances"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var fixedHeaders = []string{"Name", "Email", "Joined"}

// Balances builds the workbook. Leave type columns follow the order of the
// first row's balances; every row from BalanceQuery shares that order.
func Balances(rows []leave.EmployeeBalances) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := append([]string(nil), fixedHeaders...)
	if len(rows) > 0 {
		for _, b := range rows[0].Balances {
			headers = append(headers, b.LeaveTypeName)
		}
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for r, row := range rows {
		values := []any{row.Name, row.Email, row.CreatedAt.UTC().Format("2006-01-02")}
		for _, b := range row.Balances {
			values = append(values, b.Balance.InexactFloat64())
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := format(f, len(headers)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteBalances streams the workbook to w.
func WriteBalances(w io.Writer, rows []leave.EmployeeBalances) error {
	f, err := Balances(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func format(f *excelize.File, columns int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.ColumnNumberToName(columns)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "B", 30); err != nil {
		return err
	}
	if columns > 2 {
		if err := f.SetColWidth(SheetName, "C", last, 14); err != nil {
			return err
		}
	}
	return f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
