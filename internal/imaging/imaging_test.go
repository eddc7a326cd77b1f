package imaging

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/google/uuid"
)

// gradient renders a deterministic test image; seed shifts the pattern so
// different seeds produce visually distinct images.
func gradient(seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*4) + seed,
				G: uint8(y * 4),
				B: uint8((x + y) * 2),
				A: 255,
			})
		}
	}
	return img
}

// checkerboard is structurally unlike any gradient.
func checkerboard() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/8+y/8)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestComputeDeterministic(t *testing.T) {
	h := NewPerceptualHasher()
	a, err := h.Compute(gradient(0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := h.Compute(gradient(0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Errorf("same image hashed to %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("descriptor %q is not 16 hex digits", a)
	}
}

func TestDistance(t *testing.T) {
	h := NewPerceptualHasher()

	d, err := h.Distance("0000000000000000", "0000000000000000")
	if err != nil || d != 0 {
		t.Errorf("Distance(x, x) = %d, %v; want 0, nil", d, err)
	}

	d, err = h.Distance("0000000000000000", "ffffffffffffffff")
	if err != nil || d != 64 {
		t.Errorf("full-flip distance = %d, %v; want 64, nil", d, err)
	}

	d, err = h.Distance("0000000000000000", "0000000000000003")
	if err != nil || d != 2 {
		t.Errorf("two-bit distance = %d, %v; want 2, nil", d, err)
	}

	if _, err := h.Distance("short", "0000000000000000"); err == nil {
		t.Error("expected error for malformed descriptor")
	}
	if _, err := h.Distance("zzzzzzzzzzzzzzzz", "0000000000000000"); err == nil {
		t.Error("expected error for non-hex descriptor")
	}
}

func TestSearchSelfMatch(t *testing.T) {
	engine := NewEngine(nil)
	img := gradient(0)

	desc, err := engine.Hasher().Compute(img)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	entries := []IndexEntry{
		{ProductID: uuid.New(), ImageID: uuid.New(), Descriptor: desc},
	}

	matches, err := engine.Search(context.Background(), img, entries, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Distance != 0 {
		t.Errorf("self-match distance = %d, want 0", matches[0].Distance)
	}
	if matches[0].Similarity != 1 {
		t.Errorf("self-match similarity = %v, want 1", matches[0].Similarity)
	}
}

func TestSearchOrderingAndThreshold(t *testing.T) {
	engine := NewEngine(nil)
	h := engine.Hasher()

	query := gradient(0)
	qd, err := h.Compute(query)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	nearDesc, err := h.Compute(gradient(8))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	farDesc, err := h.Compute(checkerboard())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	exact := IndexEntry{ProductID: uuid.New(), ImageID: uuid.New(), Descriptor: qd}
	near := IndexEntry{ProductID: uuid.New(), ImageID: uuid.New(), Descriptor: nearDesc}
	far := IndexEntry{ProductID: uuid.New(), ImageID: uuid.New(), Descriptor: farDesc}
	entries := []IndexEntry{far, near, exact}

	matches, err := engine.Search(context.Background(), query, entries, 64, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches out of order: %d before %d", matches[i-1].Distance, matches[i].Distance)
		}
	}
	if matches[0].Distance != 0 {
		t.Errorf("nearest match distance = %d, want 0 for the exact entry", matches[0].Distance)
	}

	// A tight threshold drops the structurally different image.
	farDistance := matches[len(matches)-1].Distance
	if farDistance == 0 {
		t.Fatal("checkerboard hashed identical to gradient; test images need rework")
	}
	tight, err := engine.Search(context.Background(), query, entries, farDistance-1, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, m := range tight {
		if m.ImageID == far.ImageID {
			t.Error("far entry survived threshold it exceeds")
		}
	}

	// maxResults caps the list after sorting.
	capped, err := engine.Search(context.Background(), query, entries, 64, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(capped) != 1 || capped[0].Distance != 0 {
		t.Errorf("capped search should keep only the nearest match, got %v", capped)
	}
}

func TestSearchNoMatches(t *testing.T) {
	engine := NewEngine(nil)

	matches, err := engine.Search(context.Background(), gradient(0), nil, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("want empty non-nil slice, got %v", matches)
	}

	entries := []IndexEntry{
		{ProductID: uuid.New(), ImageID: uuid.New(), Descriptor: "not-a-descriptor"},
	}
	matches, err = engine.Search(context.Background(), gradient(0), entries, 10, 0)
	if err != nil {
		t.Fatalf("corrupt descriptor should be skipped, got %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("corrupt descriptor produced a match: %v", matches)
	}
}
