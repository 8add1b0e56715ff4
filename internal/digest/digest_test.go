package digest

import (
	"regexp"
	"testing"
)

var hexRE = regexp.MustCompile(`^[0-9a-f]+$`)

func TestNew_KnownAlgorithms(t *testing.T) {
	cases := []struct {
		algo    string
		name    string
		hexLen  int
		wantHex string // digest of "abc", empty to skip
	}{
		{"", SHA256, 64, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"SHA256", SHA256, 64, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha512", SHA512, 128, ""},
		{" blake2b ", BLAKE2b, 64, ""},
	}
	for _, tc := range cases {
		d, err := New(tc.algo)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.algo, err)
		}
		if d.Name() != tc.name {
			t.Fatalf("New(%q).Name() = %q; want %q", tc.algo, d.Name(), tc.name)
		}
		got := d.HexString("abc")
		if len(got) != tc.hexLen || !hexRE.MatchString(got) {
			t.Fatalf("%s digest malformed: %q", tc.name, got)
		}
		if tc.wantHex != "" && got != tc.wantHex {
			t.Fatalf("%s(abc) = %s; want %s", tc.name, got, tc.wantHex)
		}
		if d.Hex([]byte("abc")) != got {
			t.Fatalf("Hex and HexString disagree for %s", tc.name)
		}
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New("md4"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Must should panic on unsupported algorithm")
		}
	}()
	_ = Must("crc32")
}

func TestAlgorithmsDiffer(t *testing.T) {
	a := Must(SHA256).HexString("fortune")
	b := Must(BLAKE2b).HexString("fortune")
	if a == b {
		t.Fatalf("sha256 and blake2b produced identical digests")
	}
}
