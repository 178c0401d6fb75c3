package render

import (
	"fmt"
	"ticketsales/models"

	"github.com/skip2/go-qrcode"
)

// DefaultQRSize is the edge length in pixels of ticket QR codes.
const DefaultQRSize = 300

// TicketPayload is the text encoded in a ticket's QR code. Gate staff scan it and look the
// ticket up by id; the reference ties it to the purchase.
func TicketPayload(ticket models.Ticket, reference string) string {
	return fmt.Sprintf("ticket:%d:%s:%d:%d", ticket.ID, reference, ticket.CategoryID, ticket.SeatNo)
}

// QRCodePNG encodes text as a PNG QR code with medium error correction.
func QRCodePNG(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}

	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("generate qr code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}

func TicketQRCode(ticket models.Ticket, reference string, size int) ([]byte, error) {
	return QRCodePNG(TicketPayload(ticket, reference), size)
}
