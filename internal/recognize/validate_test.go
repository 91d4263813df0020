package recognize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRecordsValid(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{"name":"A Sharma","relation_name":"B Sharma","address":"12 Lake Rd","age":42,"gender":"F","identifier":"XYZ123"},
		{"name":"C Rao","relation_name":"D Rao","address":"9 Hill St","age":67,"gender":"M","identifier":"XYZ124"}
	]`)

	records, err := DecodeRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "A Sharma", records[0].Name)
	require.Equal(t, 42, records[0].Age)
	require.Equal(t, "XYZ124", records[1].Identifier)
}

func TestDecodeRecordsEmptyArray(t *testing.T) {
	t.Parallel()

	records, err := DecodeRecords([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestDecodeRecordsMissingRequiredField(t *testing.T) {
	t.Parallel()

	// age is missing from the second record.
	raw := []byte(`[
		{"name":"A","relation_name":"B","address":"12 Lake Rd","age":42,"gender":"F","identifier":"X1"},
		{"name":"C","relation_name":"D","address":"9 Hill St","gender":"M","identifier":"X2"}
	]`)

	_, err := DecodeRecords(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema")
}

func TestDecodeRecordsWrongType(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"name":"A","relation_name":"B","address":"C","age":"forty","gender":"F","identifier":"X"}]`)
	_, err := DecodeRecords(raw)
	require.Error(t, err)
}

func TestDecodeRecordsExtraField(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"name":"A","relation_name":"B","address":"C","age":4,"gender":"F","identifier":"X","notes":"extra"}]`)
	_, err := DecodeRecords(raw)
	require.Error(t, err, "additional properties are rejected")
}

func TestDecodeRecordsNotAnArray(t *testing.T) {
	t.Parallel()

	_, err := DecodeRecords([]byte(`{"name":"A"}`))
	require.Error(t, err)

	_, err = DecodeRecords([]byte(`this is not json`))
	require.Error(t, err)
}
