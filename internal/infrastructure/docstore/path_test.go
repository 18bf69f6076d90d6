package docstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"invoices/10001", "invoices/10001", false},
		{"/invoices/10001/", "invoices/10001", false},
		{" settings/usdRate ", "settings/usdRate", false},
		{"", "", true},
		{"/", "", true},
		{"a//b", "", true},
		{"a/../b", "", true},
		{"a/b*", "", true},
		{"a/50%", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "invoices/10001", Join("invoices", "/10001/"))
	assert.Equal(t, "counters", Join("", "counters", ""))
	assert.Equal(t, "invoices", Parent("invoices/10001"))
	assert.Equal(t, "", Parent("invoices"))
	assert.Equal(t, "10001", Base("invoices/10001"))
	assert.Equal(t, "invoices", Base("invoices"))

	assert.True(t, IsUnder("invoices/1", "invoices"))
	assert.True(t, IsUnder("invoices", "invoices"))
	assert.True(t, IsUnder("anything", ""))
	assert.False(t, IsUnder("invoicesArchive/1", "invoices"))

	assert.True(t, related("invoices", "invoices/1"))
	assert.True(t, related("invoices/1", "invoices"))
	assert.False(t, related("orders/1", "invoices"))
}

func TestMergeFields(t *testing.T) {
	got, err := MergeFields(nil, map[string]json.RawMessage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	_, err = MergeFields([]byte(`[1,2]`), nil)
	assert.Error(t, err)
}
