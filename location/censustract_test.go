package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCensusTract(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty stays empty", input: "", want: ""},
		{name: "canonical unchanged", input: "123456789.12", want: "123456789.12"},
		{name: "legacy 11 digits", input: "12345678912", want: "123456789.12"},
		{name: "current 15 digits drops block", input: "170310301001234", want: "170310301.00"},
		{name: "letters rejected", input: "abc", wantErr: true},
		{name: "wrong digit count rejected", input: "123456789", wantErr: true},
		{name: "misplaced dot rejected", input: "12345678.912", wantErr: true},
		{name: "14 digits rejected", input: "12345678901234", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCensusTract(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "censustract", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
