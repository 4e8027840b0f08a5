package loader

import (
	"encoding/binary"
	"testing"

	"il2cppdump/internal/vmem"
)

// buildOldSearchFixture constructs a minimal 64-bit image where
// CodeRegistration's method count + pointer sit at a known offset in a data
// segment, and the pointer array they lead to lands entirely in an
// executable segment, matching the pre-24.2 "old search" pattern.
func buildOldSearchFixture(methodCount int) (*vmem.View, uint64) {
	const (
		dataVA = 0x10000
		execVA = 0x20000
		ptrArrayVA = 0x10100
	)
	data := make([]byte, 0x30000)

	// method table: methodCount pointers, each pointing somewhere into exec.
	for i := 0; i < methodCount; i++ {
		binary.LittleEndian.PutUint64(data[ptrArrayVA+uint64(i)*8:], execVA+uint64(i))
	}

	// CodeRegistration record: [methodCount][ptrArrayVA] at dataVA+0x40.
	recordOff := dataVA + 0x40
	binary.LittleEndian.PutUint64(data[recordOff:], uint64(methodCount))
	binary.LittleEndian.PutUint64(data[recordOff+8:], ptrArrayVA)

	view := &vmem.View{
		Data:        data,
		PointerSize: 8,
		Segments: []vmem.Segment{
			{Name: "data", VAddr: dataVA, Size: 0x10000, FileOffset: dataVA, FileSize: 0x10000, Perm: vmem.PermRead | vmem.PermWrite},
			{Name: "exec", VAddr: execVA, Size: 0x10000, FileOffset: execVA, FileSize: 0x10000, Perm: vmem.PermRead | vmem.PermExec},
		},
	}
	return view, uint64(recordOff)
}

func TestFindCodeRegistrationOld(t *testing.T) {
	const methodCount = 4
	view, wantVA := buildOldSearchFixture(methodCount)
	counts := LocatorCounts{MethodCount: methodCount}
	got, err := findCodeRegistrationOld(view, counts, LocatorOptions{RequireAllPointers: true})
	if err != nil {
		t.Fatal(err)
	}
	if got != wantVA {
		t.Fatalf("got %#x, want %#x", got, wantVA)
	}
}

func TestFindCodeRegistrationOldNotFound(t *testing.T) {
	view, _ := buildOldSearchFixture(4)
	counts := LocatorCounts{MethodCount: 999}
	if _, err := findCodeRegistrationOld(view, counts, LocatorOptions{RequireAllPointers: true}); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestReadPtr(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if got := readPtr(b, 4); got != 0x04030201 {
		t.Fatalf("32-bit: got %#x", got)
	}
	if got := readPtr(b, 8); got != 0x0807060504030201 {
		t.Fatalf("64-bit: got %#x", got)
	}
}

func TestFieldCountBackoff(t *testing.T) {
	cases := map[float64]int{29.1: 16, 29.0: 14, 27.0: 13, 24.2: 13}
	for ver, want := range cases {
		if got := fieldCountBackoff(ver); got != want {
			t.Fatalf("version %v: got %d, want %d", ver, got, want)
		}
	}
}
