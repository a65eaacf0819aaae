package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	t.Run("should decode scalar values by kind", func(t *testing.T) {
		var md Metadata
		require.NoError(t, json.Unmarshal([]byte(`{"tier":"gold","score":0.5,"vip":true,"note":null}`), &md))

		assert.Equal(t, ValueKindString, md["tier"].Kind())
		assert.Equal(t, ValueKindNumber, md["score"].Kind())
		assert.Equal(t, ValueKindBool, md["vip"].Kind())
		assert.Equal(t, ValueKindNull, md["note"].Kind())
		assert.Equal(t, []string{"note", "score", "tier", "vip"}, md.Keys())
	})

	t.Run("should reject nested values", func(t *testing.T) {
		var md Metadata
		assert.Error(t, json.Unmarshal([]byte(`{"tags":["a","b"]}`), &md))
		assert.Error(t, json.Unmarshal([]byte(`{"address":{"city":"x"}}`), &md))
	})

	t.Run("should render text and read typed values", func(t *testing.T) {
		md := Metadata{}.Set("count", Int(3)).Set("capped", Bool(true)).Set("ratio", Number(0.25))

		n, ok := md.GetInt("count")
		assert.True(t, ok)
		assert.Equal(t, 3, n)

		b, ok := md.GetBool("capped")
		assert.True(t, ok)
		assert.True(t, b)

		_, ok = md.GetInt("capped")
		assert.False(t, ok)

		assert.Equal(t, "0.25", md["ratio"].Text())
		assert.Equal(t, "", Value{}.Text())
	})

	t.Run("should round trip through the database encoding", func(t *testing.T) {
		md := Metadata{"stage": String("writing"), "links": Int(2)}
		raw, err := md.Value()
		require.NoError(t, err)

		var out Metadata
		require.NoError(t, out.Scan(raw))
		assert.Equal(t, md.Native(), out.Native())

		require.NoError(t, out.Scan(nil))
		assert.Empty(t, out)
		assert.Error(t, out.Scan(42))
	})

	t.Run("should clone without sharing", func(t *testing.T) {
		md := Metadata{"a": Int(1)}
		c := md.Clone()
		c["a"] = Int(2)

		n, _ := md.GetInt("a")
		assert.Equal(t, 1, n)
	})
}

func TestNameID(t *testing.T) {
	assert.Equal(t, NameID("golden", "r1", "r3"), NameID("golden", "r1", "r3"))
	assert.NotEqual(t, NameID("golden", "r1", "r3"), NameID("golden", "r1r3"))
}

func TestPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PageSize: 50}, Pagination{}.Normalize())
	assert.Equal(t, Pagination{Page: 3, PageSize: 20}, Pagination{Page: 3, PageSize: 20}.Normalize())
	assert.Equal(t, 40, Pagination{Page: 3, PageSize: 20}.Offset())
	assert.Equal(t, 50, Pagination{Page: 1, PageSize: 1000}.Normalize().PageSize)
}

func TestAuditOperation_IsTerminal(t *testing.T) {
	assert.True(t, AuditOperationComplete.IsTerminal())
	assert.True(t, AuditOperationFailed.IsTerminal())
	assert.False(t, AuditOperationStart.IsTerminal())
	assert.False(t, AuditOperationWritingComplete.IsTerminal())
}

func TestRecordError(t *testing.T) {
	assert.Equal(t, "row 2: field 'email': must be a valid email", RecordError{Row: 2, Field: "email", Message: "must be a valid email"}.Error())
	assert.Equal(t, "row 4: extraneous quote", RecordError{Row: 4, Message: "extraneous quote"}.Error())
}
