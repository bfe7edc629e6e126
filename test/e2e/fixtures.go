package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/healthassist/internal/schema"
)

// ReportExtensions are the formats the fixtures can generate. PDF is left out:
// there is no in-process writer for a PDF with extractable text.
var ReportExtensions = []string{".csv", ".xlsx", ".txt", ".docx"}

// reportLabels maps field names to the labels a lab report prints them under.
var reportLabels = map[string]string{
	"Pregnancies":              "Pregnancies",
	"Glucose":                  "Glucose",
	"BloodPressure":            "Blood Pressure",
	"SkinThickness":            "Skin Thickness",
	"Insulin":                  "Insulin",
	"BMI":                      "BMI",
	"DiabetesPedigreeFunction": "Diabetes Pedigree Function",
	"Cholesterol":              "Cholesterol",
	"RestingBP":                "Resting BP",
	"MaxHR":                    "Max HR",
	"ExerciseInducedAngina":    "Exercise Induced Angina",
	"MDVP_Fo":                  "MDVP:Fo(Hz)",
	"MDVP_Fhi":                 "MDVP:Fhi(Hz)",
	"MDVP_Flo":                 "MDVP:Flo(Hz)",
	"MDVP_Jitter":              "MDVP:Jitter(%)",
	"MDVP_Shimmer":             "MDVP:Shimmer",
	"HNR":                      "HNR",
}

// Columns returns Name followed by every schema field, without duplicates.
func Columns() []string {
	cols := []string{"Name"}
	seen := map[string]bool{"Name": true}
	for _, s := range schema.All() {
		for _, f := range s.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				cols = append(cols, f.Name)
			}
		}
	}
	return cols
}

// TabularReport renders patients as a .csv or .xlsx file.
func TabularReport(ext string, patients []Patient) ([]byte, error) {
	cols := Columns()
	rows := [][]string{cols}
	for _, p := range patients {
		row := make([]string, len(cols))
		for i, c := range cols {
			if c == "Name" {
				row[i] = p.Name
			} else {
				row[i] = p.Values[c]
			}
		}
		rows = append(rows, row)
	}
	switch ext {
	case ".csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ".xlsx":
		return xlsxRows(rows)
	default:
		return nil, fmt.Errorf("not a tabular extension: %s", ext)
	}
}

func xlsxRows(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				return nil, err
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LabReportLines prints one patient as "Label: value unit" lines.
func LabReportLines(p Patient) []string {
	lines := []string{
		"Name: " + p.Name,
		"Age: " + p.Values["Age"] + " years",
		"Gender: " + p.Values["Gender"],
	}
	for _, c := range Columns() {
		label, ok := reportLabels[c]
		if !ok {
			continue
		}
		lines = append(lines, label+": "+p.Values[c]+unit(c))
	}
	return lines
}

func unit(field string) string {
	switch field {
	case "Glucose", "Cholesterol":
		return " mg/dL"
	case "BloodPressure", "RestingBP":
		return " mmHg"
	default:
		return ""
	}
}

// TextReport renders one patient as a .txt or .docx lab report.
func TextReport(ext string, p Patient) ([]byte, error) {
	lines := LabReportLines(p)
	switch ext {
	case ".txt":
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	case ".docx":
		return docxParagraphs(lines)
	default:
		return nil, fmt.Errorf("not a text report extension: %s", ext)
	}
}

func docxParagraphs(lines []string) ([]byte, error) {
	var body strings.Builder
	for _, l := range lines {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + html.EscapeString(l) + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`
	if _, err := fw.Write([]byte(doc)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Report renders a fixture for ext: the whole cohort for tabular formats, the
// named patient otherwise.
func Report(ext string, c *Cohort, patient int) ([]byte, error) {
	if ext == ".csv" || ext == ".xlsx" {
		return TabularReport(ext, c.Patients)
	}
	return TextReport(ext, c.Patients[patient])
}
