package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/entrhq/inreach/pkg/types"
)

// column aliases accepted in the CSV header, after normalization
var columnAliases = map[string][]string{
	"profile_url": {"profile_url", "linkedin_url", "person_linkedin_url", "linkedin", "profile", "url"},
	"email":       {"email", "email_address", "work_email"},
	"first_name":  {"first_name", "firstname", "first", "given_name"},
	"last_name":   {"last_name", "lastname", "last", "surname", "family_name"},
	"name":        {"name", "full_name"},
	"company":     {"company", "company_name", "organization", "organisation", "employer"},
}

var errNoProfileColumn = errors.New("CSV must contain a profile URL column (e.g. 'LinkedIn URL')")

// loadRows reads profile rows from a CSV file
func loadRows(path string) ([]types.ProfileRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	rows, err := parseRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// parseRows parses a header line followed by one profile per line. Row
// indexes follow source order, so a row without a profile URL is dropped but
// still consumes its index; resume depends on indexes staying stable.
func parseRows(r io.Reader) ([]types.ProfileRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("CSV is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := mapColumns(header)
	if _, ok := cols["profile_url"]; !ok {
		return nil, errNoProfileColumn
	}

	var rows []types.ProfileRow
	for index := 0; ; index++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := types.ProfileRow{
			Index:      index,
			ProfileURL: field("profile_url"),
			Email:      field("email"),
			FirstName:  field("first_name"),
			LastName:   field("last_name"),
			Company:    field("company"),
		}
		if row.ProfileURL == "" {
			continue
		}
		if row.FirstName == "" && row.LastName == "" {
			row.FirstName, row.LastName = splitName(field("name"))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func mapColumns(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := byName[name]; !dup {
			byName[name] = i
		}
	}

	cols := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
