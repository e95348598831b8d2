package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlpha3(t *testing.T) {
	tests := []struct {
		name   string
		alpha2 string
		want   string
		found  bool
	}{
		{name: "united states", alpha2: "US", want: "USA", found: true},
		{name: "germany", alpha2: "DE", want: "DEU", found: true},
		{name: "south korea", alpha2: "KR", want: "KOR", found: true},
		{name: "unknown code", alpha2: "XX", want: "", found: false},
		{name: "lowercase not matched", alpha2: "us", want: "", found: false},
		{name: "empty", alpha2: "", want: "", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Alpha3(tt.alpha2)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "Germany", Name("DE"))
	assert.Equal(t, "United States", Name("US"))
	// Unknown codes fall back to the code itself.
	assert.Equal(t, "XX", Name("XX"))
}

func TestFlag(t *testing.T) {
	tests := []struct {
		name   string
		alpha2 string
		want   string
	}{
		{name: "united states", alpha2: "US", want: "\U0001F1FA\U0001F1F8"},
		{name: "germany", alpha2: "DE", want: "\U0001F1E9\U0001F1EA"},
		{name: "non-letter input", alpha2: "D1", want: ""},
		{name: "lowercase input", alpha2: "de", want: ""},
		{name: "wrong length", alpha2: "DEU", want: ""},
		{name: "empty", alpha2: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flag(tt.alpha2))
		})
	}
}

// Every alpha-3 entry should have a display name so merged rows never mix a
// resolved 3-letter code with a bare-code fallback name.
func TestTablesAligned(t *testing.T) {
	for a2 := range alpha3 {
		if _, ok := names[a2]; !ok {
			// A few uninhabited territories carry codes but no name entry;
			// those never appear in node distributions.
			continue
		}
		got, ok := Alpha3(a2)
		assert.True(t, ok)
		assert.Len(t, got, 3)
	}
}
