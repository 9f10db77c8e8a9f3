package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "What are EV charging options in Austin?", "What are EV charging options in Austin?", false},
		{"trims whitespace", "  solar payback in 78701  ", "solar payback in 78701", false},
		{"minimum length", "abc", "abc", false},
		{"too short after trim", "  ab  ", "", true},
		{"empty", "", "", true},
		{"whitespace only", "   \t\n  ", "", true},
		{"maximum length", strings.Repeat("q", 2000), strings.Repeat("q", 2000), false},
		{"too long", strings.Repeat("q", 2001), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Question(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZipCode(t *testing.T) {
	assert.NoError(t, ZipCode(""))
	assert.NoError(t, ZipCode("94103"))
	assert.NoError(t, ZipCode("00501"))

	assert.Error(t, ZipCode("9410"))
	assert.Error(t, ZipCode("941033"))
	assert.Error(t, ZipCode("94103-1234"))
	assert.Error(t, ZipCode("abcde"))
	assert.Error(t, ZipCode(" 94103"))
}

func TestTopK(t *testing.T) {
	assert.NoError(t, TopK(0)) // unset, engine applies DefaultTopK
	assert.NoError(t, TopK(1))
	assert.NoError(t, TopK(5))
	assert.NoError(t, TopK(100))

	assert.Error(t, TopK(-1))
	assert.Error(t, TopK(101))
}

func TestIsStateCode(t *testing.T) {
	assert.True(t, IsStateCode("CA"))
	assert.True(t, IsStateCode("tx"))
	assert.True(t, IsStateCode(" ny "))
	assert.True(t, IsStateCode("DC"))

	assert.False(t, IsStateCode("ZZ"))
	assert.False(t, IsStateCode("California"))
	assert.False(t, IsStateCode(""))
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "CA", NormalizeState("ca"))
	assert.Equal(t, "NY", NormalizeState(" ny "))
	assert.Equal(t, "", NormalizeState("XX"))
	assert.Equal(t, "", NormalizeState(""))
}
