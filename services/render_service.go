package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"eventpass/models"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// RenderService produces the client-facing ticket artifacts: a QR image of
// the signed token and a printable PDF embedding it.
type RenderService struct {
	baseURL string
}

func NewRenderService(baseURL string) *RenderService {
	return &RenderService{baseURL: baseURL}
}

// RenderQr encodes the validation URL for a ticket's token as a PNG.
func (s *RenderService) RenderQr(qrToken string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(fmt.Sprintf("%s/validate/%s", s.baseURL, qrToken), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// RenderTicketDocument builds a single-page A4 PDF for one ticket.
func (s *RenderService) RenderTicketDocument(ticket *models.Ticket, event *models.Event) ([]byte, error) {
	png, err := s.RenderQr(ticket.QrToken, 512)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Ticket %s", ticket.TicketCode), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, event.Name, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, event.Venue, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, event.EventDate.Format("Monday, 2 January 2006 at 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	imageName := fmt.Sprintf("qr-%s", ticket.TicketCode)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(png))
	pdf.ImageOptions(imageName, 65, 60, 80, 80, false, opts, 0, "")
	pdf.SetY(145)

	pdf.SetFont("Courier", "", 11)
	pdf.CellFormat(0, 8, ticket.TicketCode, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Price: %s", ticket.Price.StringFixed(2)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", ticket.PurchaseDate.Format(time.DateOnly)), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, "Present this QR code at the entrance. Valid for one admission.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket %s: %w", ticket.TicketCode, err)
	}
	return buf.Bytes(), nil
}

// RenderBatch renders documents for a set of tickets, skipping the ones that
// fail. One corrupt ticket must not block the rest of an approval batch.
func (s *RenderService) RenderBatch(ctx context.Context, tickets []*models.Ticket, event *models.Event) map[string][]byte {
	documents := make(map[string][]byte, len(tickets))
	for _, ticket := range tickets {
		doc, err := s.RenderTicketDocument(ticket, event)
		if err != nil {
			slog.Error("ticket document skipped", "ticket_code", ticket.TicketCode, "error", err)
			continue
		}
		documents[ticket.TicketCode] = doc
	}
	return documents
}
