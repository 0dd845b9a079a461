package claims

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/xuri/excelize/v2"
)

// Columns of the bulk payment request file.
var RequestHeader = []string{
	"RegistrationNumber",
	"NDISNumber",
	"SupportsDeliveredFrom",
	"SupportsDeliveredTo",
	"SupportNumber",
	"ClaimReference",
	"Quantity",
	"Hours",
	"UnitPrice",
	"GSTCode",
	"AuthorisedBy",
	"ParticipantApproved",
	"InKindFundingProgram",
	"ClaimType",
	"CancellationReason",
	"ABN of Support Provider",
}

const gstFree = "P2"

type Provider struct {
	RegistrationNumber string
	ABN                string
}

// RequestRows renders one row per claimed transaction, header first.
// Transactions must have their Resident loaded.
func RequestRows(p Provider, lines []models.Transaction) [][]string {
	rows := make([][]string, 0, len(lines)+1)
	rows = append(rows, RequestHeader)
	for _, t := range lines {
		ndis := ""
		if t.Resident != nil {
			ndis = t.Resident.NDISNumber
		}
		day := t.ServiceDate.Format(respond.DateLayout)
		rows = append(rows, []string{
			p.RegistrationNumber,
			ndis,
			day,
			day,
			t.SupportItemNumber,
			t.ClaimReference,
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			"",
			strconv.FormatFloat(t.UnitPrice, 'f', 2, 64),
			gstFree,
			"",
			"",
			"",
			"",
			"",
			p.ABN,
		})
	}
	return rows
}

func WriteCSV(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func WriteXLSX(w io.Writer, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// -------------------------
// Response file
// -------------------------

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// ResponseRow is one line of the funder's payment response.
type ResponseRow struct {
	Line         int // 1-based, header is line 1
	Reference    string
	Outcome      Outcome
	PaidAmount   float64
	ErrorMessage string
}

var ErrMissingReferenceColumn = errors.New("response file has no ClaimReference column")

// normalize folds header names so "Claim Reference", "claim_reference" and
// "ClaimReference" match.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

var successStatuses = map[string]bool{
	"success":    true,
	"successful": true,
	"paid":       true,
	"approved":   true,
	"accepted":   true,
}

// ParseResponse reads a response file, CSV or xlsx, into rows. Blank lines
// are skipped.
func ParseResponse(r io.Reader, xlsx bool) ([]ResponseRow, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)
	if xlsx {
		records, err = readXLSX(r)
		for i := range records {
			lines = append(lines, i+1)
		}
	} else {
		records, lines, err = readCSV(r)
	}
	if err != nil {
		return nil, fmt.Errorf("read response file: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("response file is empty")
	}

	cols := map[string]int{}
	for i, h := range records[0] {
		cols[normalize(h)] = i
	}
	refCol, ok := cols["claimreference"]
	if !ok {
		return nil, ErrMissingReferenceColumn
	}
	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]ResponseRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		if refCol >= len(rec) || strings.TrimSpace(rec[refCol]) == "" {
			continue
		}
		row := ResponseRow{
			Line:         lines[n+1],
			Reference:    strings.TrimSpace(rec[refCol]),
			ErrorMessage: get(rec, "errormessage"),
			Outcome:      OutcomeError,
		}
		status := strings.ToLower(get(rec, "status"))
		if successStatuses[status] || (status == "" && row.ErrorMessage == "") {
			row.Outcome = OutcomeSuccess
		}
		if paid := get(rec, "paidtotalamount"); paid != "" {
			v, err := strconv.ParseFloat(strings.TrimPrefix(paid, "$"), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid PaidTotalAmount %q", row.Line, paid)
			}
			row.PaidAmount = v
		}
		out = append(out, row)
	}
	return out, nil
}

// readCSV also returns the physical line each record starts on; blank lines
// and quoted newlines make it differ from the record index.
func readCSV(r io.Reader) ([][]string, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
