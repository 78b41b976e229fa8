package objectstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordKey(t *testing.T) {
	require.Equal(t, "eml/abc123", RecordKey("abc123"))
}

func TestExportKey(t *testing.T) {
	require.Equal(t, "exports/xyz789", ExportKey("xyz789"))
}
