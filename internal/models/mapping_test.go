package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapping_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mapping Mapping
		wantErr error
	}{
		{
			name: "valid mapping",
			mapping: Mapping{
				ShortCode: "bC3dF4",
				LongValue: "https://example.com/path",
			},
			wantErr: nil,
		},
		{
			name: "empty long value is allowed",
			mapping: Mapping{
				ShortCode: "bC3dF4",
			},
			wantErr: nil,
		},
		{
			name: "empty short code",
			mapping: Mapping{
				LongValue: "https://example.com",
			},
			wantErr: ErrEmptyShortCode,
		},
		{
			name: "short code too long",
			mapping: Mapping{
				ShortCode: strings.Repeat("x", MaxShortCodeLength+1),
				LongValue: "https://example.com",
			},
			wantErr: ErrShortCodeLength,
		},
		{
			name: "long value at the limit",
			mapping: Mapping{
				ShortCode: "bC3dF4",
				LongValue: strings.Repeat("a", MaxLongValueLength),
			},
			wantErr: nil,
		},
		{
			name: "long value over the limit",
			mapping: Mapping{
				ShortCode: "bC3dF4",
				LongValue: strings.Repeat("a", MaxLongValueLength+1),
			},
			wantErr: ErrLongValueTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLongValue_CountsCharacters(t *testing.T) {
	// 2000 three-byte runes is 6000 bytes but still within the bound.
	multiByte := strings.Repeat("€", MaxLongValueLength)
	assert.NoError(t, ValidateLongValue(multiByte))

	assert.ErrorIs(t, ValidateLongValue(multiByte+"€"), ErrLongValueTooLong)
}
