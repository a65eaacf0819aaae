package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const utf8BOM = "\ufeff"

// ReadResult is the outcome of parsing one input file
type ReadResult struct {
	Records   []models.RawRecord
	Errors    []models.RecordError // rows that could not be parsed
	TotalRows int
}

// Reader parses CSV input with a required header row
type Reader struct {
	logger ectologger.Logger
}

// NewReader creates a new Reader
func NewReader(logger ectologger.Logger) *Reader {
	return &Reader{logger: logger}
}

// HashInput returns the hex SHA256 of the raw input bytes
func HashInput(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Read parses every data row. Malformed rows become RecordErrors and reading
// continues; any other read failure aborts with an error.
func (r *Reader) Read(ctx context.Context, in io.Reader, batchID string) (*ReadResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Reader.Read")
	defer span.End()

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	result := &ReadResult{Records: []models.RawRecord{}, Errors: []models.RecordError{}}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return result, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := mapHeader(header)

	row := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.Errors = append(result.Errors, models.RecordError{Row: row, Message: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if isBlank(fields) {
			row--
			continue
		}

		result.Records = append(result.Records, newRawRecord(row, batchID, columns, fields))
	}
	result.TotalRows = row

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":     batchID,
		"total_rows":   result.TotalRows,
		"parse_errors": len(result.Errors),
	}).Debug("Input parsed")
	return result, nil
}

// headerColumn is one header cell: a recognized column or a metadata key
type headerColumn struct {
	column Column
	known  bool
	raw    string
}

func mapHeader(header []string) []headerColumn {
	out := make([]headerColumn, len(header))
	seen := map[Column]bool{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		col, ok := ResolveColumn(h)
		if ok && seen[col] {
			ok = false
		}
		if ok {
			seen[col] = true
		}
		out[i] = headerColumn{column: col, known: ok, raw: h}
	}
	return out
}

// newRawRecord builds a record from one parsed row. Without an id column the id
// is derived from the batch and row, so re-reading a file yields stable ids.
func newRawRecord(row int, batchID string, columns []headerColumn, fields []string) models.RawRecord {
	values := map[Column]string{}
	meta := models.Metadata{}
	for i, raw := range fields {
		value := strings.TrimSpace(raw)
		if i >= len(columns) {
			meta.Set("column_"+strconv.Itoa(i+1), models.String(value))
			continue
		}
		if columns[i].known {
			values[columns[i].column] = value
			continue
		}
		meta.Set(columns[i].raw, models.String(value))
	}

	rec := models.RawRecord{
		ID:               values[ColumnID],
		SourceID:         values[ColumnSourceID],
		Name:             values[ColumnName],
		Email:            values[ColumnEmail],
		Phone:            values[ColumnPhone],
		Address:          values[ColumnAddress],
		OrganizationName: values[ColumnOrganizationName],
		OrganizationID:   values[ColumnOrganizationID],
		Source:           values[ColumnSource],
		BatchID:          values[ColumnBatchID],
		Metadata:         meta,
		Row:              row,
	}
	if rec.BatchID == "" {
		rec.BatchID = batchID
	}
	if rec.ID == "" {
		rec.ID = models.NameID("record", batchID, strconv.Itoa(row))
	}
	return rec
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
