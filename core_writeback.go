// core_writeback.go - framebuffer writeback: packs the tile accumulator to
// VRAM with 4x4 Bayer dithering (16-bit) or pass-through (32-bit).
//
// Grounded on _examples/original_source/crates/refsw2-cpp/ffi/refsw_lists.cc
// (the writeback tail of RenderCORE: bayerBias table, packmode switch,
// destination address formula) and
// _examples/IntuitionAmiga-IntuitionEngine/voodoo_software.go's
// bayer4x4Flat/applyDither, whose dither-then-pack shape this follows.

package main

import (
	"image"
	"image/color"
)

var bayerBias = [4][4]uint32{
	{8, 136, 40, 168},
	{200, 72, 232, 104},
	{56, 184, 24, 152},
	{248, 120, 216, 88},
}

const (
	fbPackRGB565   = 0x1
	fbPackARGB8888 = 0x6
)

// writebackTile validates the scaler/pack-mode configuration, then packs
// the current tile's accumulator into VRAM at FB_W_SOF1, per spec.md §4.6
// and §6. Interlaced output is rejected, so FB_W_SOF2 is never written.
func (c *Core) writebackTile(rect TaRect) *CoreError {
	sc := c.regs.ScalerCtl()
	if sc.HScale {
		return newCoreError(ConfigurationUnsupported, "hscale must be 0")
	}
	if sc.Interlace {
		return newCoreError(ConfigurationUnsupported, "interlace must be 0")
	}
	switch sc.VScaleFactor {
	case 0x400, 0x401, 0x800:
	default:
		return newCoreError(ConfigurationUnsupported, "unsupported vscale factor 0x%x", sc.VScaleFactor)
	}

	packMode := c.regs.FbPackMode()
	var bpp uint32
	switch packMode {
	case fbPackRGB565:
		bpp = 2
	case fbPackARGB8888:
		bpp = 4
	default:
		return newCoreError(ConfigurationUnsupported, "unsupported fb pack mode %d", packMode)
	}

	sof := c.regs.FbWSof1()
	stride := c.regs.FbWLineStride()
	tileX := uint32(rect.Left / tileDim)
	tileY := uint32(rect.Top / tileDim)
	offsetBytes := tileX*32*bpp + tileY*32*stride*8

	for y := 0; y < tileDim; y++ {
		rowAddr := sof + offsetBytes + uint32(y)*stride*8
		for x := 0; x < tileDim; x++ {
			px := c.tile.Accum[y][x]
			dst := rowAddr + uint32(x)*bpp

			if packMode == fbPackRGB565 {
				w := packRGB565Dithered(px, x, y)
				c.warn(c.vram.WriteArea1_16(dst, w))
			} else {
				w := uint32(px[0]) | uint32(px[1])<<8 | uint32(px[2])<<16 | uint32(px[3])<<24
				c.warn(c.vram.WriteArea1_32(dst, w))
			}
		}
	}
	return nil
}

// packRGB565Dithered implements spec.md §4.6: r5 = (r8*31+T)/255, etc.,
// using the fixed 4x4 Bayer bias matrix indexed by (y&3, x&3).
func packRGB565Dithered(px [4]uint8, x, y int) uint16 {
	t := bayerBias[y&3][x&3]
	r5 := clampu32((uint32(px[0])*31+t)/255, 0, 31)
	g6 := clampu32((uint32(px[1])*63+t)/255, 0, 63)
	b5 := clampu32((uint32(px[2])*31+t)/255, 0, 31)
	return uint16(r5 | g6<<5 | b5<<11)
}

func clampu32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FramebufferImage reads back the packed framebuffer at FB_W_SOF1 as an
// image.RGBA, decoding per FB_W_CTRL.fb_packmode. Used by the CLI and by
// golden-image test comparisons (SPEC_FULL.md §3).
func FramebufferImage(vram *VRAM, regs *Regs, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	sof := regs.FbWSof1()
	stride := regs.FbWLineStride()
	packMode := regs.FbPackMode()

	for y := 0; y < height; y++ {
		rowAddr := sof + uint32(y)*stride*8
		for x := 0; x < width; x++ {
			var r, g, b, a uint8
			switch packMode {
			case fbPackRGB565:
				addr := rowAddr + uint32(x)*2
				w, _ := vram.ReadUint32(addr &^ 3)
				v := uint16(w >> ((addr & 2) * 8))
				r = uint8(v&0x1F) << 3
				g = uint8((v>>5)&0x3F) << 2
				b = uint8((v>>11)&0x1F) << 3
				a = 0xFF
			default: // ARGB8888
				w, _ := vram.ReadUint32(rowAddr + uint32(x)*4)
				r = uint8(w)
				g = uint8(w >> 8)
				b = uint8(w >> 16)
				a = uint8(w >> 24)
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: a})
		}
	}
	return img
}
