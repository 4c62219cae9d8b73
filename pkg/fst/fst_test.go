package fst

import "testing"

func Test_Tracker_ClaimExact(t *testing.T) {
	tr := Seed([]Extent{{Offset: 100, Length: 50}})

	off, err := tr.Claim(50)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	assert(t, off == 100, "want offset 100, got %d", off)
	assert(t, len(tr.Extents()) == 0, "expected extent to be fully consumed")
}

func Test_Tracker_ClaimShrinks(t *testing.T) {
	tr := Seed([]Extent{{Offset: 100, Length: 50}})

	off, err := tr.Claim(20)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	assert(t, off == 100, "want offset 100, got %d", off)

	ext := tr.Extents()
	assert(t, len(ext) == 1, "expected one remaining extent")
	assert(t, ext[0].Offset == 120, "want offset 120, got %d", ext[0].Offset)
	assert(t, ext[0].Length == 30, "want length 30, got %d", ext[0].Length)
}

func Test_Tracker_ClaimBestFit(t *testing.T) {
	tr := Seed([]Extent{
		{Offset: 0, Length: 200},
		{Offset: 1000, Length: 40},
	})

	off, err := tr.Claim(30)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	assert(t, off == 1000, "expected best-fit to pick the smaller extent, got offset %d", off)
}

func Test_Tracker_ClaimNoFit(t *testing.T) {
	tr := Seed([]Extent{{Offset: 0, Length: 10}})
	_, err := tr.Claim(100)
	assert(t, err == ErrNoFit, "expected ErrNoFit, got %v", err)
}

func Test_Tracker_ReleaseCoalesces(t *testing.T) {
	tr := New()
	tr.Release(0, 10)
	tr.Release(10, 10)
	tr.Release(30, 5)

	ext := tr.Extents()
	assert(t, len(ext) == 2, "expected two extents after coalescing adjacent ranges, got %d", len(ext))
	assert(t, ext[0].Offset == 0 && ext[0].Length == 20, "expected merged [0,20), got %+v", ext[0])
	assert(t, ext[1].Offset == 30 && ext[1].Length == 5, "expected [30,35), got %+v", ext[1])
}

func Test_Tracker_Total(t *testing.T) {
	tr := Seed([]Extent{{Offset: 0, Length: 10}, {Offset: 100, Length: 5}})
	assert(t, tr.Total() == 15, "want total 15, got %d", tr.Total())
}

func assert(t *testing.T, cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	t.Errorf(msg, args...)
}
