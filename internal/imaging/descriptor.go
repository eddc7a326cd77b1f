// Package imaging computes perceptual descriptors for product images and
// answers similarity queries over an indexed set of descriptors.
package imaging

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// DescriptorBits is the length of a perceptual descriptor in bits. Distances
// range from 0 (identical) to DescriptorBits (maximally different).
const DescriptorBits = 64

// Hasher computes and compares perceptual descriptors. Descriptors are
// deterministic: the same image bytes always produce the same descriptor.
type Hasher interface {
	Compute(img image.Image) (string, error)
	Distance(a, b string) (int, error)
}

// PerceptualHasher implements Hasher with a 64-bit DCT perception hash,
// serialized as 16 lowercase hex digits.
type PerceptualHasher struct{}

// NewPerceptualHasher returns the default descriptor implementation.
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{}
}

// Compute returns the perceptual descriptor of img.
func (PerceptualHasher) Compute(img image.Image) (string, error) {
	if img == nil {
		return "", domain.ValidationError("cannot hash nil image", nil)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", domain.IOError("failed to compute perceptual hash", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// Distance returns the Hamming distance between two descriptors.
func (PerceptualHasher) Distance(a, b string) (int, error) {
	ha, err := parseDescriptor(a)
	if err != nil {
		return 0, err
	}
	hb, err := parseDescriptor(b)
	if err != nil {
		return 0, err
	}
	return bits.OnesCount64(ha ^ hb), nil
}

func parseDescriptor(s string) (uint64, error) {
	if len(s) != DescriptorBits/4 {
		return 0, domain.ValidationError(fmt.Sprintf("descriptor %q has wrong length", s), nil)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, domain.ValidationError(fmt.Sprintf("descriptor %q is not hex", s), err)
	}
	return v, nil
}
