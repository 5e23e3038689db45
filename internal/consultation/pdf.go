package consultation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// RenderPrescription lays out a single-page A4 prescription.
func RenderPrescription(rec *Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(30, 64, 175)
	pdf.CellFormat(0, 10, "Telecare - Prescription", "", 1, "C", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	addDetail(pdf, "Doctor", "Dr. "+rec.DoctorName)
	addDetail(pdf, "Patient", rec.PatientName)
	addDetail(pdf, "Date", rec.AppointmentDate.Format("02 Jan 2006"))
	addDetail(pdf, "Reference", rec.ID.String())
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(240, 240, 240)
	widths := []float64{55, 35, 25, 20, 55}
	for i, h := range []string{"Medicine", "Dosage", "Frequency", "Days", "Instructions"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	if len(rec.Prescription.Medicines) == 0 {
		pdf.CellFormat(0, 8, "No medicines prescribed", "1", 1, "C", false, 0, "")
	}
	for _, m := range rec.Prescription.Medicines {
		pdf.CellFormat(widths[0], 8, m.Name, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 8, m.Dosage, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 8, m.Frequency.Label(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 8, fmt.Sprintf("%d", m.DurationDays), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 8, m.Instructions, "1", 1, "", false, 0, "")
	}

	addList(pdf, "Additional instructions", rec.Prescription.AdditionalInstructions)
	addList(pdf, "Contraindications", rec.Prescription.Contraindications)

	if rec.Prescription.FollowUpDate != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "Follow-up: "+rec.Prescription.FollowUpDate, "", 1, "", false, 0, "")
	}

	pdf.SetY(pdf.GetY() + 12)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 10, "This is a computer generated prescription", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render prescription: %w", err)
	}
	return buf.Bytes(), nil
}

func addDetail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(35, 8, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, value, "1", 1, "", false, 0, "")
}

func addList(pdf *gofpdf.Fpdf, title string, items []string) {
	if len(items) == 0 {
		return
	}
	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, title, "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, "- "+strings.Join(items, "\n- "), "", "L", false)
}
