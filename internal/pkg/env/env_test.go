package env

import "testing"

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   int
		want  int
	}{
		{"unset uses default", "", 25, 25},
		{"numeric", "120", 25, 120},
		{"zero", "0", 25, 0},
		{"junk uses default", "abc", 25, 25},
		{"trailing junk uses default", "12x", 25, 25},
		{"negative uses default", "-3", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMFLOW_TEST_OPT", tt.value)
			if got := GetEnvInt("GEMFLOW_TEST_OPT", tt.def); got != tt.want {
				t.Errorf("GetEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
