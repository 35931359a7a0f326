package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKeywords(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		want     string
		relevant bool
	}{
		{
			name:     "corporation tax in subject",
			subject:  "Corporation Tax Return due",
			body:     "Please prepare the return.",
			want:     CorporationTax,
			relevant: true,
		},
		{
			name:     "ct600 in body",
			subject:  "Reminder",
			body:     "The CT600 needs filing this month.",
			want:     CorporationTax,
			relevant: true,
		},
		{
			name:     "self assessment hyphenated",
			subject:  "Self-Assessment reminder",
			body:     "",
			want:     SelfAssessment,
			relevant: true,
		},
		{
			name:     "sa100 form",
			subject:  "SA100 for Mrs Patel",
			body:     "",
			want:     SelfAssessment,
			relevant: true,
		},
		{
			name:    "no keyword",
			subject: "Lunch on Friday?",
			body:    "Fancy the usual place at one?",
		},
		{
			name:    "near miss",
			subject: "VAT return Q3",
			body:    "Quarterly VAT filing attached.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.subject, tt.body)
			assert.Equal(t, tt.relevant, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	got, ok := Classify("CORPORATION TAX RETURN", "")
	require.True(t, ok)
	assert.Equal(t, CorporationTax, got)
}

// A message containing keywords for both categories must classify per
// whichever keyword appears earlier in the table, deterministically.
func TestClassifyTableOrderBreaksTies(t *testing.T) {
	body := "The self assessment is due, and so is the corp tax payment."

	for i := 0; i < 100; i++ {
		got, ok := Classify("Deadlines", body)
		require.True(t, ok)
		// "corp tax" precedes "self assessment" in table order.
		require.Equal(t, CorporationTax, got)
	}
}

func TestClassifySpecificityOrdering(t *testing.T) {
	// The full phrase must win over its shorter overlapping prefix
	// regardless of position in the text.
	got, ok := Classify("", "regarding your corporation tax return for 2024")
	require.True(t, ok)
	assert.Equal(t, CorporationTax, got)
}
