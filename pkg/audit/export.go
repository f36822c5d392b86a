package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportRecords serializes records in the requested format
func ExportRecords(records []*LogRecord, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON, "":
		return exportJSON(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	case ExportFormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrBadRequest, format)
	}
}

// Valid reports whether the format is supported
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
		return true
	}
	return false
}

// ContentType returns the MIME type of the export format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// exportJSON exports log records as a JSON array
func exportJSON(records []*LogRecord) ([]byte, error) {
	if records == nil {
		records = []*LogRecord{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports log records as newline-delimited JSON
func exportNDJSON(records []*LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteNDJSON streams log records to w, one JSON document per line
func WriteNDJSON(w io.Writer, records []*LogRecord) error {
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", record.ID, err)
		}
	}
	return nil
}

// exportCSV exports log records as CSV, with changes as a JSON column
func exportCSV(records []*LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"Timestamp",
		"ActorID",
		"Actor",
		"Action",
		"EntityType",
		"EntityID",
		"EntityRepr",
		"Changes",
		"RemoteAddr",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range records {
		changes := ""
		if len(record.Changes) > 0 {
			data, err := json.Marshal(record.Changes)
			if err != nil {
				return nil, fmt.Errorf("failed to encode changes of record %d: %w", record.ID, err)
			}
			changes = string(data)
		}

		row := []string{
			strconv.FormatInt(record.ID, 10),
			record.Timestamp.UTC().Format(time.RFC3339),
			formatInt64Ptr(record.ActorID),
			actorDisplay(record),
			record.Action.String(),
			record.EntityType.String(),
			record.EntityID,
			record.EntityRepr,
			changes,
			record.RemoteAddr,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// formatInt64Ptr formats an int64 pointer as string, returning empty string for nil
func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}

// actorDisplay is the username of the actor, or "System" when there is none
func actorDisplay(record *LogRecord) string {
	if record.IsSystem() {
		return "System"
	}
	if record.ActorUsername != "" {
		return record.ActorUsername
	}
	return strconv.FormatInt(*record.ActorID, 10)
}

// entityTypeDisplay is the qualified entity type, or "Unknown" when unset
func entityTypeDisplay(t EntityType) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.String()
}
