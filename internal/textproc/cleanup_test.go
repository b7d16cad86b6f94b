package textproc

import "testing"

func TestCleanup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    "   \t  ",
			expected: "",
		},
		{
			name:     "capitalizes and terminates",
			input:    "hello world",
			expected: "Hello world.",
		},
		{
			name:     "preserves existing punctuation",
			input:    "is anyone there?",
			expected: "Is anyone there?",
		},
		{
			name:     "removes space before punctuation",
			input:    "well , that works !",
			expected: "Well, that works!",
		},
		{
			name:     "separates run-together sentences",
			input:    "done.Next item",
			expected: "Done. Next item.",
		},
		{
			name:     "capitalizes after sentence end",
			input:    "first point. second point.",
			expected: "First point. Second point.",
		},
		{
			name:     "capitalizes standalone i",
			input:    "i think i can do it",
			expected: "I think I can do it.",
		},
		{
			name:     "leaves i inside words alone",
			input:    "it is inside",
			expected: "It is inside.",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  already clean.  ",
			expected: "Already clean.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cleanup(tt.input); got != tt.expected {
				t.Errorf("Cleanup(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
