package padding

import "testing"

func TestPadUnpadRoundTrip(t *testing.T) {
	for _, length := range []int{0, 1, 16, 100, 255, 256} {
		data := make([]byte, length)
		for i := range data {
			data[i] = byte(i)
		}

		target := ChooseBlock(length)
		padded, err := Pad(data, target)
		if err != nil {
			t.Fatalf("Pad(%d): %v", length, err)
		}
		if target-length > 255 {
			// Pad leaves data unchanged when the gap exceeds one length byte,
			// so there is no padding for Unpad to remove.
			if string(padded) != string(data) {
				t.Fatalf("Pad(%d) with a gap over 255 returned %d bytes, want input unchanged", length, len(padded))
			}
			continue
		}
		if len(padded) != target {
			t.Fatalf("Pad(%d) produced %d bytes, want %d", length, len(padded), target)
		}

		got := Unpad(padded)
		if len(got) != len(data) {
			t.Fatalf("Unpad length = %d, want %d", len(got), len(data))
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("Unpad mismatch at %d", i)
			}
		}
	}
}

func TestPadGapTooLarge(t *testing.T) {
	data := []byte("hello")
	out, err := Pad(data, len(data)+300)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("Pad with oversize gap should return data unchanged")
	}
}

func TestChooseBlock(t *testing.T) {
	cases := map[int]int{
		0:    256,
		100:  256,
		240:  256,
		241:  512,
		2032: 2048,
		2033: 2033,
	}
	for length, want := range cases {
		if got := ChooseBlock(length); got != want {
			t.Errorf("ChooseBlock(%d) = %d, want %d", length, got, want)
		}
	}
}

func TestUnpadUnpaddedInput(t *testing.T) {
	data := []byte{1, 2, 200}
	if got := Unpad(data); string(got) != string(data) {
		t.Fatalf("Unpad on non-padded input should be a no-op when the trailing byte is implausible")
	}
}
