// File: internal/imaging/transform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package imaging implements the six image-transform effects the
// router dispatches to: blur, adaptive threshold, color reduction,
// cartoonify, oil painting and contour paint.
//
// Grounded on original_source/src/handle_transform_requests.cpp,
// which builds these effects out of OpenCV primitives (tr_blur,
// tr_to_grayscale, tr_adaptthresh, tr_reducecolors, tr_oilpainting,
// tr_apply_mask) composed per handler. No OpenCV binding appears
// anywhere in the retrieved example pack, so these primitives are
// reimplemented here directly on top of the standard image package —
// the only image-codec support available in the corpus.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
)

// Decode reads a JPEG- or PNG-encoded image, matching the original's
// cv::imdecode, which accepts whatever OpenCV's codec layer supports.
func Decode(src []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	return img, err
}

// Encode writes img as a JPEG, matching the original's
// cv::imencode(".jpeg", ...) used by every handler's img_to_response.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func oddSize(size int) int {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	return size
}

// blurRGBA applies a simple box blur of the given kernel size (forced
// odd, minimum 1) to src.
func blurRGBA(src *image.RGBA, size int) *image.RGBA {
	size = oddSize(size)
	radius := size / 2
	b := src.Bounds()
	out := image.NewRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var rSum, gSum, bSum, aSum, n uint32
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					r, g, bl, a := src.At(px, py).RGBA()
					rSum += r >> 8
					gSum += g >> 8
					bSum += bl >> 8
					aSum += a >> 8
					n++
				}
			}
			if n == 0 {
				n = 1
			}
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(rSum / n),
				G: uint8(gSum / n),
				B: uint8(bSum / n),
				A: uint8(aSum / n),
			})
		}
	}
	return out
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// adaptiveThreshold marks a pixel black if it is more than diff below
// the mean of its blockSize x blockSize neighborhood, white otherwise
// — an edge map, matching the original's tr_adaptthresh.
func adaptiveThreshold(gray *image.Gray, blockSize, diff int) *image.Gray {
	blockSize = oddSize(blockSize)
	radius := blockSize / 2
	if diff < 0 {
		diff = 0
	}
	b := gray.Bounds()
	out := image.NewGray(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum, n int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					sum += int(gray.GrayAt(px, py).Y)
					n++
				}
			}
			mean := sum / n
			v := gray.GrayAt(x, y).Y
			if int(v) < mean-diff {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// reduceColorsRGBA posterizes each channel to numColors levels,
// matching the original's tr_reducecolors (OpenCV k-means in the
// source; a deterministic per-channel posterize here, since k-means
// centroid convergence is not something a handler needs to match
// bit-for-bit).
func reduceColorsRGBA(src *image.RGBA, numColors int) *image.RGBA {
	if numColors < 1 {
		numColors = 1
	}
	if numColors > 256 {
		numColors = 256
	}
	step := 256 / numColors
	quantize := func(v uint32) uint8 {
		c := v >> 8
		level := int(c) / step
		if level >= numColors {
			level = numColors - 1
		}
		q := level*step + step/2
		if q > 255 {
			q = 255
		}
		return uint8(q)
	}

	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := src.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: quantize(r),
				G: quantize(g),
				B: quantize(bl),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

// oilPaintingRGBA implements the classic oil-painting filter: for each
// pixel, bucket the intensities of its size x size neighborhood into
// dynRatio-wide levels, find the most common bucket, and output the
// average color of the neighborhood pixels that fall into it —
// matching the effect of the original's tr_oilpainting.
func oilPaintingRGBA(src *image.RGBA, size, dynRatio int) *image.RGBA {
	size = oddSize(size)
	radius := size / 2
	if dynRatio < 1 {
		dynRatio = 1
	}
	b := src.Bounds()
	out := image.NewRGBA(b)

	const numLevels = 256
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var levelCount [numLevels]int
			var levelR, levelG, levelB, levelA [numLevels]int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					r, g, bl, a := src.At(px, py).RGBA()
					r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)
					intensity := (int(r8) + int(g8) + int(b8)) / 3
					level := intensity / dynRatio
					if level >= numLevels {
						level = numLevels - 1
					}
					levelCount[level]++
					levelR[level] += int(r8)
					levelG[level] += int(g8)
					levelB[level] += int(b8)
					levelA[level] += int(a >> 8)
				}
			}
			best := 0
			for l := 1; l < numLevels; l++ {
				if levelCount[l] > levelCount[best] {
					best = l
				}
			}
			n := levelCount[best]
			if n == 0 {
				out.Set(x, y, src.At(x, y))
				continue
			}
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(levelR[best] / n),
				G: uint8(levelG[best] / n),
				B: uint8(levelB[best] / n),
				A: uint8(levelA[best] / n),
			})
		}
	}
	return out
}

// applyMask paints base black wherever edges marks an edge (gray
// value 0), matching the original's tr_apply_mask, the step that
// overlays a computed edge map onto a flattened-color base image.
func applyMask(base *image.RGBA, edges *image.Gray) *image.RGBA {
	b := base.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if edges.GrayAt(x, y).Y == 0 {
				out.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			out.Set(x, y, base.At(x, y))
		}
	}
	return out
}
