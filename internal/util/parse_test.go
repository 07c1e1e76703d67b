package util

import (
	"reflect"
	"testing"
)

func TestParseRunStartTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"date", "2023-01-02", 1672617600000, false},
		{"date with spaces", " 2023-01-02 ", 1672617600000, false},
		{"datetime", "2023-01-02 00:00:01", 1672617601000, false},
		{"rfc3339", "2023-01-02T00:00:00Z", 1672617600000, false},
		{"garbage", "yesterday", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunStartTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRunStartTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRunStartTime(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , ,b ", []string{"a", "b"}},
	}

	for _, tt := range tests {
		if got := SplitList(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
