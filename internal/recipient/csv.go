package recipient

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// FromCSV reads recipients from CSV data with columns
// email, creator_name, social_media_link. A header row is detected by the
// literal "email" in the first column and skipped. Rows with missing or
// invalid required fields fail the whole import with the row number.
func FromCSV(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var recipients []Recipient
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row+1, err)
		}
		row++

		// Header row
		if row == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "email") {
			continue
		}

		if len(record) < 3 {
			return nil, fmt.Errorf("row %d: expected 3 columns (email, creator_name, social_media_link), got %d", row, len(record))
		}

		rcpt := Recipient{
			Email:           strings.TrimSpace(record[0]),
			CreatorName:     strings.TrimSpace(record[1]),
			SocialMediaLink: strings.TrimSpace(record[2]),
		}
		if err := rcpt.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		recipients = append(recipients, rcpt)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found")
	}

	return recipients, nil
}
