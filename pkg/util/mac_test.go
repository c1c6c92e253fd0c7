package util

import "testing"

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"52:54:00:AB:CD:EF", "52:54:00:ab:cd:ef", false},
		{"52-54-00-ab-cd-ef", "52:54:00:ab:cd:ef", false},
		{" 52:54:00:ab:cd:ef ", "52:54:00:ab:cd:ef", false},
		{"5254.00ab.cdef", "52:54:00:ab:cd:ef", false},
		{"00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01", "", true},
		{"not-a-mac", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMAC(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMACFromUint64(t *testing.T) {
	if got := MACFromUint64(0x525400abcdef); got != "52:54:00:ab:cd:ef" {
		t.Errorf("MACFromUint64() = %q", got)
	}
	if got := MACFromUint64(0); got != "00:00:00:00:00:00" {
		t.Errorf("MACFromUint64(0) = %q", got)
	}
}
