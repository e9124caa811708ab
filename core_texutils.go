// core_texutils.go - process-wide read-only lookup tables: Morton-order
// (twiddle) addressing, bump-map trig tables, mip boundary table.
//
// Grounded on _examples/original_source/crates/refsw2-rust/src/tex_utils.rs.
// Tables are computed once by InitTexUtils() and are safe to share across renders
// since nothing mutates them afterward (spec.md §5).

package main

import "math"

const maxTwiddleLevel = 11

// detwiddleTables[0][s][i] / [1][s][i] are the twiddled-address contribution
// of coordinate i at size level s along each axis; combined via twop.
var detwiddleTables [2][maxTwiddleLevel][1 << maxTwiddleLevel]uint32

var (
	bmSin90  [256]int8
	bmCos90  [256]int8
	bmCos360 [256]int8
)

// mipPointTable holds the pixel-count boundary 1<<level for each of the 11
// supported mip levels (refsw2r::tile.rs::MIP_POINT).
var mipPointTable [11]uint32

var texUtilsInitialized bool

// InitTexUtils populates the twiddle, bump, and mip tables. Must be called
// once before the first render; safe to call more than once.
func InitTexUtils() {
	if texUtilsInitialized {
		return
	}
	for s := 0; s < maxTwiddleLevel; s++ {
		dim := uint32(1) << uint32(s+3)
		for i := uint32(0); i < dim && i < 1<<maxTwiddleLevel; i++ {
			detwiddleTables[0][s][i] = twiddleSlow(i, 0, dim, dim)
			detwiddleTables[1][s][i] = twiddleSlow(0, i, dim, dim)
		}
	}

	for i := 0; i < 256; i++ {
		angle90 := float64(i) / 256 * (math.Pi / 2)
		angle360 := float64(i) / 256 * (2 * math.Pi)
		bmSin90[i] = int8(math.Round(127 * math.Sin(angle90)))
		bmCos90[i] = int8(math.Round(127 * math.Cos(angle90)))
		bmCos360[i] = int8(math.Round(127 * math.Cos(angle360)))
	}

	for i := range mipPointTable {
		mipPointTable[i] = 1 << uint32(i)
	}

	texUtilsInitialized = true
}

// twiddleSlow interleaves the bits of x and y, low bit of y first, to
// produce a Morton-order address within a xSz*ySz texture.
func twiddleSlow(x, y, xSz, ySz uint32) uint32 {
	var rv uint32
	var sh uint32
	xs, ys := xSz, ySz
	xv, yv := x, y
	for xs > 1 || ys > 1 {
		if ys > 1 {
			rv |= (yv & 1) << sh
			yv >>= 1
			ys >>= 1
			sh++
		}
		if xs > 1 {
			rv |= (xv & 1) << sh
			xv >>= 1
			xs >>= 1
			sh++
		}
	}
	return rv
}

// twop combines the two per-axis detwiddle contributions for a texel at
// (x, y) within a texture whose size level is s (log2(dim) - 3).
func twop(s int, x, y uint32) uint32 {
	return detwiddleTables[0][s][x] + detwiddleTables[1][s][y]
}
