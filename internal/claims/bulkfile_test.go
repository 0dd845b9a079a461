package claims

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"housing-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func claimLines() []models.Transaction {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return []models.Transaction{
		{
			ID: 21, ServiceDate: day, SupportItemNumber: "01_821_0115_1_1", ClaimReference: "CLM-1-001",
			Quantity: 1.5, UnitPrice: 200.5, Resident: &models.Resident{NDISNumber: "430123456"},
		},
		{
			ID: 22, ServiceDate: day.AddDate(0, 0, 1), SupportItemNumber: "01_821_0115_1_1", ClaimReference: "CLM-1-002",
			Quantity: 2, UnitPrice: 100,
		},
	}
}

var provider = Provider{RegistrationNumber: "4050000001", ABN: "51824753556"}

func TestRequestRows(t *testing.T) {
	rows := RequestRows(provider, claimLines())
	require.Len(t, rows, 3)
	assert.Equal(t, RequestHeader, rows[0])
	assert.Equal(t, []string{
		"4050000001", "430123456", "2025-03-03", "2025-03-03", "01_821_0115_1_1", "CLM-1-001",
		"1.5", "", "200.50", "P2", "", "", "", "", "", "51824753556",
	}, rows[1])
	assert.Equal(t, "", rows[2][1])
	assert.Equal(t, "2", rows[2][6])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RequestRows(provider, claimLines()[:1])))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "RegistrationNumber,NDISNumber,"))
	assert.True(t, strings.HasSuffix(lines[0], ",ABN of Support Provider"))
	assert.Contains(t, lines[1], ",CLM-1-001,1.5,,200.50,P2,")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, RequestRows(provider, claimLines())))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ClaimReference", rows[0][5])
	assert.Equal(t, "CLM-1-002", rows[2][5])
}

func TestParseResponseCSV(t *testing.T) {
	body := "\ufeffClaim Reference,Status,Paid Total Amount,Error Message\n" +
		"CLM-1-001,Success,$301.50,\n" +
		"CLM-1-002,Error,,Participant plan not active\n" +
		",,,\n" +
		"CLM-1-003,,,\n"

	rows, err := ParseResponse(strings.NewReader(body), false)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, ResponseRow{Line: 2, Reference: "CLM-1-001", Outcome: OutcomeSuccess, PaidAmount: 301.5}, rows[0])
	assert.Equal(t, OutcomeError, rows[1].Outcome)
	assert.Equal(t, "Participant plan not active", rows[1].ErrorMessage)
	assert.Equal(t, 5, rows[2].Line)
	assert.Equal(t, OutcomeSuccess, rows[2].Outcome)
}

func TestParseResponseHeaderVariants(t *testing.T) {
	body := "claim_reference,status,paidtotalamount,errormessage\nCLM-1-001,rejected,0,Duplicate\n"
	rows, err := ParseResponse(strings.NewReader(body), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, OutcomeError, rows[0].Outcome)
}

func TestParseResponseErrors(t *testing.T) {
	_, err := ParseResponse(strings.NewReader("Reference,Status\nX,Success\n"), false)
	assert.ErrorIs(t, err, ErrMissingReferenceColumn)

	_, err = ParseResponse(strings.NewReader(""), false)
	assert.Error(t, err)

	_, err = ParseResponse(strings.NewReader("ClaimReference,PaidTotalAmount\nX,abc\n"), false)
	assert.ErrorContains(t, err, "line 2")
}

func TestParseResponseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"ClaimReference", "status", "PaidTotalAmount", "ErrorMessage"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"CLM-1-001", "SUCCESS", "301.50", ""}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := ParseResponse(&buf, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, OutcomeSuccess, rows[0].Outcome)
	assert.Equal(t, 301.5, rows[0].PaidAmount)
}

func TestParseResponseReportsPhysicalLines(t *testing.T) {
	body := "ClaimReference,Status,ErrorMessage\n" +
		"\n" +
		"CLM-1-001,Error,\"Plan ended\nsee portal\"\n" +
		"CLM-1-002,Success,\n" +
		"CLM-1-003,Success,abc\n"

	rows, err := ParseResponse(strings.NewReader(body), false)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 3, rows[0].Line)
	assert.Equal(t, "Plan ended\nsee portal", rows[0].ErrorMessage)
	assert.Equal(t, 5, rows[1].Line)
	assert.Equal(t, 6, rows[2].Line)

	_, err = ParseResponse(strings.NewReader("ClaimReference,PaidTotalAmount\n\n\nX,abc\n"), false)
	assert.ErrorContains(t, err, "line 4")
}
