// Package extract turns uploaded patient reports into PatientRecords.
//
// Tabular files (.csv, .xlsx) are looked up by patient name. Text documents
// (.pdf, .docx, .txt) are scanned with keyword rules; see Rule for the exact
// and deliberately literal matching semantics.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/healthassist/internal/models"
)

// SupportedExtensions lists the report formats the extractor accepts.
var SupportedExtensions = []string{".csv", ".xlsx", ".pdf", ".docx", ".txt"}

// Extractor converts report bytes into a PatientRecord.
type Extractor struct {
	rules []Rule
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithRules replaces the default keyword rules used for text documents.
func WithRules(rules []Rule) ExtractorOption {
	return func(e *Extractor) { e.rules = append([]Rule(nil), rules...) }
}

// NewExtractor returns an Extractor using DefaultRules unless overridden.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns a copy of the keyword rules in use.
func (e *Extractor) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Extract reads the report at path and extracts the record for patient
// (empty patient selects the first row of a table).
func (e *Extractor) Extract(path, patient string) (*models.ExtractResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path), patient)
}

// ExtractBytes extracts a record from content based on ext (with leading dot).
// Patients is filled for tabular formats that carry a Name column.
func (e *Extractor) ExtractBytes(content []byte, ext, patient string) (*models.ExtractResult, error) {
	ext = strings.ToLower(ext)
	switch ext {
	case ".csv", ".xlsx":
		var (
			table *Table
			err   error
		)
		if ext == ".csv" {
			table, err = ReadCSV(bytes.NewReader(content))
		} else {
			table, err = ReadXLSX(bytes.NewReader(content))
		}
		if err != nil {
			return nil, err
		}
		record, err := table.Lookup(patient)
		if err != nil {
			return nil, err
		}
		record.Source = strings.TrimPrefix(ext, ".")
		res := &models.ExtractResult{Record: record}
		if names, err := table.Names(); err == nil {
			res.Patients = names
		}
		return res, nil
	case ".pdf", ".docx", ".txt", ".md", "":
		text, err := e.ExtractText(content, ext)
		if err != nil {
			return nil, err
		}
		record := Scrape(text, e.rules)
		record.Source = textSource(ext)
		return &models.ExtractResult{Record: record}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", models.ErrUnreadableFile, ext)
	}
}

// ExtractText returns the plain text of a document, pages or paragraphs separated by newlines.
func (e *Extractor) ExtractText(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	default:
		return extractPlain(content)
	}
}

func textSource(ext string) string {
	switch ext {
	case ".pdf":
		return models.SourcePDF
	case ".docx":
		return models.SourceDOCX
	default:
		return models.SourceText
	}
}
