package receipt

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"kirapay/internal/domain"
)

// Renderer produces the receipt artifact handed to tenants. One sheet per
// receipt; the artifact store keeps the bytes, the payment row keeps the key.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(payment *domain.Payment) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Receipt"
	f.SetSheetName(f.GetSheetName(0), sheet)

	_ = f.SetDocProps(&excelize.DocProperties{Creator: "kirapay"})

	rows := [][2]any{
		{"Receipt No", payment.ReceiptNumber},
		{"Payment ID", payment.ID.String()},
		{"Contract", payment.ContractID.String()},
		{"Tenant", payment.TenantID.String()},
		{"Amount (cents)", payment.AmountCents},
		{"Method", string(payment.Method)},
		{"Status", string(payment.Status)},
		{"Due Date", payment.DueDate.Format("2006-01-02")},
	}
	if payment.PaidAt != nil {
		rows = append(rows, [2]any{"Paid At", payment.PaidAt.Format("2006-01-02 15:04:05")})
	}
	if payment.ProviderTxnID != nil {
		rows = append(rows, [2]any{"Provider Txn", *payment.ProviderTxnID})
	}

	for i, row := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(sheet, labelCell, row[0])
		_ = f.SetCellValue(sheet, valueCell, row[1])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", payment.ReceiptNumber, err)
	}
	return buf.Bytes(), nil
}

// ObjectKey is the storage key the artifact lives under.
func (r *Renderer) ObjectKey(payment *domain.Payment) string {
	return fmt.Sprintf("receipts/%s.xlsx", payment.ReceiptNumber)
}
