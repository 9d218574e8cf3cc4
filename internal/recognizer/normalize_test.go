package recognizer

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  hello world  ", "Hello world"},
		{"i think i can", "I think I can"},
		{"already Capitalized", "Already Capitalized"},
		{"too   many    spaces", "Too many spaces"},
		{"island is fine", "Island is fine"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
