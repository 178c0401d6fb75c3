package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"ticketsales/models"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptPDF lays out a purchase receipt on one A4 page with a QR code of the transaction
// reference.
func ReceiptPDF(r models.Receipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+r.Reference, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, "Ticket Receipt", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, "Reference "+r.Reference, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.5)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(6)

	rows := [][2]string{
		{"Event", r.EventName},
		{"Category", r.CategoryName},
		{"Seats", formatSeats(r.Seats)},
		{"Quantity", strconv.Itoa(r.Quantity)},
		{"Unit price", r.UnitPrice.StringFixed(2)},
		{"Total", r.Total.StringFixed(2)},
		{"Purchased", r.PurchasedAt.UTC().Format("January 2, 2006 15:04 MST")},
	}
	if r.CardLast4 != "" {
		rows = append(rows, [2]string{"Card", "**** " + r.CardLast4})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(45, 8, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "B", 12)
		pdf.MultiCell(0, 8, row[1], "", "L", false)
	}

	qr, err := QRCodePNG(r.Reference, DefaultQRSize)
	if err != nil {
		return nil, err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("receipt_qr", opts, bytes.NewReader(qr))
	pdf.Ln(6)
	pdf.ImageOptions("receipt_qr", (210.0-60.0)/2, pdf.GetY(), 60, 60, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("generate receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// formatSeats collapses consecutive seat numbers: 3,4,5,9 becomes "3-5, 9".
func formatSeats(seats []int) string {
	var parts []string
	for i := 0; i < len(seats); {
		j := i
		for j+1 < len(seats) && seats[j+1] == seats[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(seats[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", seats[i], seats[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
