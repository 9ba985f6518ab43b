package mug

import "testing"

func TestOfIsDeterministic(t *testing.T) {
	a := Of([]byte("galaxy-zod"))
	b := Of([]byte("galaxy-zod"))
	if a != b {
		t.Fatalf("mug not deterministic: %d != %d", a, b)
	}
}

func TestOfUint64MatchesManualEncoding(t *testing.T) {
	got := OfUint64(12345)
	want := Of([]byte{0x39, 0x30, 0, 0, 0, 0, 0, 0})
	if got != want {
		t.Fatalf("OfUint64 = %d, want %d", got, want)
	}
}

func TestOfIsNonNegative(t *testing.T) {
	for _, v := range []uint64{0, 1, 1 << 40, 1<<64 - 1} {
		if got := OfUint64(v); got&0x80000000 != 0 {
			t.Fatalf("mug(%d) = %d has high bit set", v, got)
		}
	}
}
