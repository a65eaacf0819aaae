package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestReader() *Reader {
	return NewReader(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestRead(t *testing.T) {
	t.Run("should map recognized columns and synonyms", func(t *testing.T) {
		input := "ID,FullName,E-Mail,phone_number,Company,org_id,Source,batch_id,tier\n" +
			"r1, John Smith ,john@x.com,555-111-2222,Acme,A1,crm,b9,gold\n"

		result, err := newTestReader().Read(context.Background(), strings.NewReader(input), "b1")
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, 1, result.TotalRows)

		rec := result.Records[0]
		assert.Equal(t, "r1", rec.ID)
		assert.Equal(t, "John Smith", rec.Name)
		assert.Equal(t, "john@x.com", rec.Email)
		assert.Equal(t, "555-111-2222", rec.Phone)
		assert.Equal(t, "Acme", rec.OrganizationName)
		assert.Equal(t, "A1", rec.OrganizationID)
		assert.Equal(t, "crm", rec.Source)
		assert.Equal(t, "b9", rec.BatchID)
		assert.Equal(t, "gold", rec.Metadata["tier"].Text())
		assert.Equal(t, 1, rec.Row)
	})

	t.Run("should default batch id and derive stable record ids", func(t *testing.T) {
		input := "name,source\nJane,crm\nBob,crm\n"
		first, err := newTestReader().Read(context.Background(), strings.NewReader(input), "b1")
		require.NoError(t, err)
		second, err := newTestReader().Read(context.Background(), strings.NewReader(input), "b1")
		require.NoError(t, err)

		require.Len(t, first.Records, 2)
		assert.Equal(t, "b1", first.Records[0].BatchID)
		assert.NotEqual(t, first.Records[0].ID, first.Records[1].ID)
		assert.Equal(t, first.Records[0].ID, second.Records[0].ID)
	})

	t.Run("should treat an empty file as zero rows", func(t *testing.T) {
		result, err := newTestReader().Read(context.Background(), strings.NewReader(""), "b1")
		require.NoError(t, err)
		assert.Equal(t, 0, result.TotalRows)
		assert.Empty(t, result.Records)
		assert.Empty(t, result.Errors)
	})

	t.Run("should treat a header-only file as zero rows", func(t *testing.T) {
		result, err := newTestReader().Read(context.Background(), strings.NewReader("name,source,batchId\n"), "b1")
		require.NoError(t, err)
		assert.Equal(t, 0, result.TotalRows)
	})

	t.Run("should record malformed rows and keep reading", func(t *testing.T) {
		input := "name,source\nJane,crm\n\"Bro\"ken\",crm\nBob,crm\n"
		result, err := newTestReader().Read(context.Background(), strings.NewReader(input), "b1")
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 2, result.Errors[0].Row)
		assert.Len(t, result.Records, 2)
		assert.Equal(t, 3, result.TotalRows)
	})

	t.Run("should strip a byte order mark", func(t *testing.T) {
		result, err := newTestReader().Read(context.Background(), strings.NewReader("\ufeffname,source\nJane,crm\n"), "b1")
		require.NoError(t, err)
		assert.Equal(t, "Jane", result.Records[0].Name)
	})

	t.Run("should keep extra cells without a header", func(t *testing.T) {
		result, err := newTestReader().Read(context.Background(), strings.NewReader("name\nJane,extra\n"), "b1")
		require.NoError(t, err)
		assert.Equal(t, "extra", result.Records[0].Metadata["column_2"].Text())
	})

	t.Run("should fail on a reader error", func(t *testing.T) {
		_, err := newTestReader().Read(context.Background(), failingReader{}, "b1")
		assert.Error(t, err)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashInput(t *testing.T) {
	assert.Equal(t, HashInput([]byte("a,b\n")), HashInput([]byte("a,b\n")))
	assert.NotEqual(t, HashInput([]byte("a,b\n")), HashInput([]byte("a,c\n")))
	assert.Len(t, HashInput(nil), 64)
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	good := models.RawRecord{ID: "1", Name: "Jane", Source: "crm", BatchID: "b1", Row: 1}

	t.Run("should accept a complete record", func(t *testing.T) {
		assert.Empty(t, v.ValidateRecord(good))
	})

	t.Run("should require name source and batch id", func(t *testing.T) {
		errs := v.ValidateRecord(models.RawRecord{ID: "1", Row: 4})
		fields := map[string]string{}
		for _, e := range errs {
			fields[e.Field] = e.Message
			assert.Equal(t, 4, e.Row)
		}
		assert.Equal(t, "is required", fields["name"])
		assert.Equal(t, "is required", fields["source"])
		assert.Equal(t, "is required", fields["batch_id"])
	})

	t.Run("should reject malformed email and long fields", func(t *testing.T) {
		rec := good
		rec.Email = "not-an-email"
		rec.Name = strings.Repeat("n", 256)
		errs := v.ValidateRecord(rec)
		require.Len(t, errs, 2)
		assert.Equal(t, "row 1: field 'name': exceeds maximum length of 255", errs[0].Error())
		assert.Equal(t, "email", errs[1].Field)
	})

	t.Run("should allow an empty email", func(t *testing.T) {
		rec := good
		rec.Email = ""
		assert.Empty(t, v.ValidateRecord(rec))
	})

	t.Run("should split valid records from invalid and duplicate ones", func(t *testing.T) {
		dup := good
		dup.Row = 3
		bad := models.RawRecord{ID: "2", Source: "crm", BatchID: "b1", Row: 2}
		valid, errs := v.Validate([]models.RawRecord{good, bad, dup})

		require.Len(t, valid, 1)
		require.Len(t, errs, 2)
		assert.Equal(t, "name", errs[0].Field)
		assert.Equal(t, "id", errs[1].Field)
		assert.Contains(t, errs[1].Message, "first seen on row 1")
	})
}
