package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
)

const (
	sheetSummary      = "Summary"
	sheetTransactions = "Transactions"
	sheetInvestments  = "Investments"
	dateLayout        = "2006-01-02 15:04"
)

// ContentType is the MIME type of a statement workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Statement builds a workbook with the account summary, its transactions (newest first) and its
// investments.
func Statement(acct models.Account, loc *time.Location, now time.Time) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetTransactions, sheetInvestments} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	summary := [][]any{
		{"Name", acct.Name},
		{"Email", acct.Email},
		{"Referral code", acct.ReferralCode},
		{"Balance", acct.Balance.InexactFloat64()},
		{"Total deposits", acct.TotalDeposits.InexactFloat64()},
		{"KYC", acct.KYCStatus},
		{"Generated", now.In(loc).Format(dateLayout)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}

	txs := make([]models.Transaction, len(acct.Transactions))
	copy(txs, acct.Transactions)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Seq > txs[j].Seq })
	rows := [][]any{{"Date", "Type", "Status", "Amount", "Balance effect", "Description", "Reference", "ID"}}
	for _, tx := range txs {
		rows = append(rows, []any{
			tx.Date.In(loc).Format(dateLayout),
			string(tx.Type),
			string(tx.Status),
			tx.Amount.InexactFloat64(),
			ledger.Effect(tx).InexactFloat64(),
			tx.Description,
			tx.Reference,
			tx.ID,
		})
	}
	if err := writeRows(f, sheetTransactions, rows); err != nil {
		return nil, err
	}

	rows = [][]any{{"Plan", "Amount", "Expected return", "Daily return", "Duration", "Start", "End", "Paid through", "Status"}}
	for _, inv := range acct.Investments {
		status := "Active"
		if inv.Completed(now) {
			status = "Completed"
		}
		rows = append(rows, []any{
			inv.PlanName,
			inv.Amount.InexactFloat64(),
			inv.ExpectedReturn.InexactFloat64(),
			ledger.DailyReturn(inv).InexactFloat64(),
			inv.Duration,
			inv.StartDate.In(loc).Format(dateLayout),
			inv.EndDate().In(loc).Format(dateLayout),
			inv.LastPayoutDate.In(loc).Format(dateLayout),
			status,
		})
	}
	if err := writeRows(f, sheetInvestments, rows); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteStatement streams the workbook of acct to w.
func WriteStatement(w io.Writer, acct models.Account, loc *time.Location, now time.Time) error {
	f, err := Statement(acct, loc, now)
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
