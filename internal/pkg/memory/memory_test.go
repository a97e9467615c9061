package memory

import "testing"

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"-5MiB", 0, false},
		{"64", 64, true},
		{"512MiB", 512 << 20, true},
		{"1GiB", 1 << 30, true},
		{"100MB", 100 * 1000 * 1000, true},
		{"2.5GiB", 5 << 29, true},
		{"10XB", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseByteSize(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseByteSize(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	if got := formatBytes(512); got != "512B" {
		t.Errorf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(3 << 20); got != "3.0MiB" {
		t.Errorf("formatBytes(3MiB) = %q", got)
	}
}
