package imgverify_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"

	"github.com/sunshineplan/imgverify"
)

func Example() {
	// Encode a tiny image to have something to decode.
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	copy(src.Pix, []byte{255, 0, 0, 255, 0, 0, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		log.Fatalf("failed to encode image: %v", err)
	}

	// Decode it with the backend under test.
	raster, meta, err := (&imgverify.Backend{}).Decode(context.Background(), buf.Bytes())
	if err != nil {
		log.Fatalf("failed to decode image: %v", err)
	}

	// Reduce it to the canonical comparison form.
	canonical, err := imgverify.Canonicalize(raster, meta)
	if err != nil {
		log.Fatalf("failed to canonicalize image: %v", err)
	}

	// Compare it against itself with the format's default budget.
	diff, err := imgverify.Compare(canonical, canonical, imgverify.DefaultTolerance(meta.Format, raster.Depth))
	if err != nil {
		log.Fatalf("failed to compare images: %v", err)
	}
	fmt.Print(diff.Pass)
	// output:true
}
