// Package importfile reads membership-registry exports (CSV or XLSX) into
// import records for the reconciliation engine.
package importfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ramblersclub/membership-system/internal/model"
)

// Column headings of the registry export, matched case-insensitively with
// whitespace ignored. Unknown columns are ignored; missing columns yield
// empty values.
var columnFields = map[string]func(*model.ImportRecord, string){
	"membershipnumber":       func(r *model.ImportRecord, v string) { r.MembershipNumber = v },
	"forenames":              func(r *model.ImportRecord, v string) { r.FirstName = v },
	"firstname":              func(r *model.ImportRecord, v string) { r.FirstName = v },
	"surname":                func(r *model.ImportRecord, v string) { r.LastName = v },
	"lastname":               func(r *model.ImportRecord, v string) { r.LastName = v },
	"email":                  func(r *model.ImportRecord, v string) { r.Email = v },
	"emailaddress":           func(r *model.ImportRecord, v string) { r.Email = v },
	"mobiletelephone":        func(r *model.ImportRecord, v string) { r.Mobile = v },
	"mobile":                 func(r *model.ImportRecord, v string) { r.Mobile = v },
	"postcode":               func(r *model.ImportRecord, v string) { r.Postcode = v },
	"membershipexpirydate":   func(r *model.ImportRecord, v string) { r.MembershipExpiryDate = v },
	"emailmarketingconsent":  func(r *model.ImportRecord, v string) { r.MarketingConsent = v },
	"marketingconsent":       func(r *model.ImportRecord, v string) { r.MarketingConsent = v },
	"emailconsentdate":       func(r *model.ImportRecord, v string) { r.ConsentUpdatedAt = v },
	"consentdate":            func(r *model.ImportRecord, v string) { r.ConsentUpdatedAt = v },
	"jointwith":              func(r *model.ImportRecord, v string) { r.JointWith = v },
	"jointmembershipnumber":  func(r *model.ImportRecord, v string) { r.JointWith = v },
}

func canonicalHeading(heading string) string {
	return strings.ToLower(strings.Join(strings.Fields(heading), ""))
}

// ReadCSV parses a CSV registry export. The first row must be the heading
// row; field values are trimmed.
func ReadCSV(r io.Reader) ([]model.ImportRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	return fromRows(rows)
}

// ReadXLSX parses an XLSX registry export. Only the first sheet is read.
func ReadXLSX(r io.Reader) ([]model.ImportRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	return fromRows(rows)
}

func fromRows(rows [][]string) ([]model.ImportRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	setters := make([]func(*model.ImportRecord, string), len(rows[0]))
	known := 0
	for i, heading := range rows[0] {
		if set, ok := columnFields[canonicalHeading(heading)]; ok {
			setters[i] = set
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("no recognised columns in heading row")
	}

	records := make([]model.ImportRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}

		var rec model.ImportRecord
		for i, value := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, strings.TrimSpace(value))
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
