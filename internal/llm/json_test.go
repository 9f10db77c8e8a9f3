package llm

import "testing"

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"answer": "yes"}`,
			expected: `{"answer": "yes"}`,
		},
		{
			name:     "bare array",
			input:    `[{"sub_question": "a"}]`,
			expected: `[{"sub_question": "a"}]`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"answer\": \"yes\"}\n```",
			expected: `{"answer": "yes"}`,
		},
		{
			name:     "plain fence",
			input:    "```\n[1, 2]\n```",
			expected: `[1, 2]`,
		},
		{
			name:     "prose before array",
			input:    "Here are the sub-questions:\n[{\"tool_name\": \"utility_tool\"}]",
			expected: `[{"tool_name": "utility_tool"}]`,
		},
		{
			name:     "prose around object",
			input:    "Sure! {\"a\": 1} Hope that helps.",
			expected: `{"a": 1}`,
		},
		{
			name:     "array containing objects picks array",
			input:    "result: [{\"a\": 1}, {\"b\": 2}]",
			expected: `[{"a": 1}, {"b": 2}]`,
		},
		{
			name:     "object containing array picks object",
			input:    `{"items": [1, 2]}`,
			expected: `{"items": [1, 2]}`,
		},
		{
			name:     "whitespace only",
			input:    "   \n\t ",
			expected: "",
		},
		{
			name:     "no json at all",
			input:    "I could not produce JSON",
			expected: "I could not produce JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.input); got != tt.expected {
				t.Errorf("CleanJSON(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
