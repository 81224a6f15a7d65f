package bytesize

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"4194304", 4 * MiB, false},
		{"512B", 512, false},
		{"64Ki", 64 * KiB, false},
		{"4Mi", 4 * MiB, false},
		{"4MiB", 4 * MiB, false},
		{"1gi", GiB, false},
		{"16MB", 16 * MB, false},
		{"2k", 2 * KB, false},
		{" 8 Mi ", 8 * MiB, false},
		{"1.5Mi", ByteSize(1.5 * float64(MiB)), false},

		{"", 0, true},
		{"Mi", 0, true},
		{"-1Mi", 0, true},
		{"4Xi", 0, true},
		{"18446744073709551615Ki", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0"},
		{1000, "1000"},
		{64 * KiB, "64Ki"},
		{4 * MiB, "4Mi"},
		{2 * GiB, "2Gi"},
		{MiB + 1, "1048577"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
		back, err := Parse(tt.want)
		if err != nil || back != tt.in {
			t.Errorf("Parse(%q) = %d, %v; want %d", tt.want, back, err, uint64(tt.in))
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	type wrapper struct {
		Size ByteSize `yaml:"size"`
	}

	data, err := yaml.Marshal(wrapper{Size: 4 * MiB})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "size: 4Mi") {
		t.Errorf("unexpected YAML: %s", data)
	}

	var got wrapper
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Size != 4*MiB {
		t.Errorf("round trip = %d, want %d", got.Size, 4*MiB)
	}
}

func TestInt(t *testing.T) {
	if got := (4 * MiB).Int(); got != 4*1024*1024 {
		t.Errorf("Int() = %d", got)
	}
	if got := ByteSize(1 << 63).Int(); got <= 0 {
		t.Errorf("Int() must saturate, got %d", got)
	}
}
