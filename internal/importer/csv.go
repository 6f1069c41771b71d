// Package importer parses uploaded contact lists.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/zapgatehq/zapgate/internal/db"
)

// Row is one parsed contact line, phone already normalized.
type Row struct {
	Phone string
	Name  string
	Email string
}

// Result reports what a parse run accepted and rejected.
type Result struct {
	Rows    []Row
	Skipped int
}

// ParseContacts reads a CSV contact list. The first line is a header;
// column order is free as long as a phone column exists. Lines with
// no usable phone are counted, not fatal, so one bad row never sinks
// a 50k-contact upload.
func ParseContacts(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	phoneIdx, nameIdx, emailIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "phone", "phone_number", "telefone", "celular", "whatsapp":
			phoneIdx = i
		case "name", "nome", "full_name":
			nameIdx = i
		case "email", "e-mail":
			emailIdx = i
		}
	}
	if phoneIdx == -1 {
		return nil, fmt.Errorf("csv has no phone column, headers were %v", header)
	}

	result := &Result{}
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}
		if phoneIdx >= len(record) {
			result.Skipped++
			continue
		}

		phone := db.NormalizePhone(record[phoneIdx])
		if len(phone) < 8 {
			result.Skipped++
			continue
		}
		if seen[phone] {
			result.Skipped++
			continue
		}
		seen[phone] = true

		row := Row{Phone: phone}
		if nameIdx >= 0 && nameIdx < len(record) {
			row.Name = strings.TrimSpace(record[nameIdx])
		}
		if emailIdx >= 0 && emailIdx < len(record) {
			row.Email = strings.TrimSpace(record[emailIdx])
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}
