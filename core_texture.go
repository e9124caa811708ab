// core_texture.go - texture address generation, pixel decode, filtering.
//
// Grounded on _examples/original_source/crates/refsw2r/src/tile.rs
// (tex_address_gen, decode_textel, expand_to_argb8888, texture_fetch,
// texture_filter, bump_mapper) and
// _examples/original_source/crates/refsw2-rust/src/tex_utils.rs
// (argb1555_32/argb565_32/argb4444_32/yuv422 unpack formulas).

package main

// textureFetch samples (or bilinear-filters) the texture described by tcw
// at normalized (u, v), applying clamp/flip per tsp (spec.md §4.5 step 1).
func (c *Core) textureFetch(tcw Tcw, tsp Tsp, u, v float32) rgbaF {
	if tsp.ClampU() {
		u = clampf(u, 0, 1)
	}
	if tsp.ClampV() {
		v = clampf(v, 0, 1)
	}
	if tsp.FlipU() && int(u*2)%2 == 1 {
		u = 1 - frac(u)
	}
	if tsp.FlipV() && int(v*2)%2 == 1 {
		v = 1 - frac(v)
	}

	if tsp.FilterMode() != 0 {
		return c.textureFilterBilinear(tcw, tsp, u, v)
	}
	return c.texelAt(tcw, tsp, u, v)
}

// mipDim resolves the texel dimension for this fetch: the base
// textureDim when the texture carries no mip chain, otherwise the base
// dimension halved per mipPointTable boundary crossed by TSP's MipMapD
// field, per SPEC_FULL.md §5.1's mip-LOD supplement.
func (c *Core) mipDim(tcw Tcw, tsp Tsp) int {
	dim := c.textureDim
	if dim == 0 {
		dim = 8
	}
	if !tcw.MipMapped() {
		return dim
	}
	level := int(tsp.MipMapD())
	if level >= len(mipPointTable) {
		level = len(mipPointTable) - 1
	}
	for i := 0; i < level && dim > 1; i++ {
		dim >>= 1
	}
	if dim < 1 {
		dim = 1
	}
	return dim
}

func frac(v float32) float32 {
	return v - float32(int(v))
}

// texelAt decodes the texel nearest (u, v) using point sampling.
func (c *Core) texelAt(tcw Tcw, tsp Tsp, u, v float32) rgbaF {
	dim := c.mipDim(tcw, tsp)
	x := clampi(int(u*float32(dim)), 0, dim-1)
	y := clampi(int(v*float32(dim)), 0, dim-1)
	return c.decodeTexel(tcw, x, y, dim)
}

func (c *Core) textureFilterBilinear(tcw Tcw, tsp Tsp, u, v float32) rgbaF {
	dim := c.mipDim(tcw, tsp)
	fx := u*float32(dim) - 0.5
	fy := v*float32(dim) - 0.5
	x0 := clampi(int(fx), 0, dim-1)
	y0 := clampi(int(fy), 0, dim-1)
	x1 := clampi(x0+1, 0, dim-1)
	y1 := clampi(y0+1, 0, dim-1)
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	if tx < 0 {
		tx = 0
	}
	if ty < 0 {
		ty = 0
	}

	c00 := c.decodeTexel(tcw, x0, y0, dim)
	c10 := c.decodeTexel(tcw, x1, y0, dim)
	c01 := c.decodeTexel(tcw, x0, y1, dim)
	c11 := c.decodeTexel(tcw, x1, y1, dim)

	lerp := func(a, b, t float32) float32 { return a + (b-a)*t }
	var out rgbaF
	for i := 0; i < 4; i++ {
		top := lerp(c00[i], c10[i], tx)
		bot := lerp(c01[i], c11[i], tx)
		out[i] = lerp(top, bot, ty)
	}
	return out
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// texAddressGen computes the byte offset of texel (x, y) within the
// texture, twiddled (Morton order) or stride-scan per tcw.ScanOrder.
func texAddressGen(tcw Tcw, x, y, dim int, bpp int) uint32 {
	if tcw.ScanOrder() {
		stride := dim
		return uint32((y*stride+x)*bpp) / 8
	}
	s := log2(dim) - 3
	if s < 0 {
		s = 0
	}
	addr := twop(s, uint32(x), uint32(y))
	return addr * uint32(bpp) / 8
}

func log2(v int) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func bitsPerPixel(fmt uint32) int {
	switch fmt {
	case PixelPal4:
		return 4
	case PixelPal8:
		return 8
	default:
		return 16
	}
}

// decodeTexel reads and unpacks the texel at (x, y) per tcw.PixelFmt.
func (c *Core) decodeTexel(tcw Tcw, x, y, dim int) rgbaF {
	bpp := bitsPerPixel(tcw.PixelFmt())
	addr := tcw.TexAddr()*8 + texAddressGen(tcw, x, y, dim, bpp)

	switch tcw.PixelFmt() {
	case Pixel1555:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		v := uint16(w >> ((addr & 2) * 8))
		return unpackArgb1555(v)
	case Pixel565:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		v := uint16(w >> ((addr & 2) * 8))
		return unpackArgb565(v)
	case Pixel4444:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		v := uint16(w >> ((addr & 2) * 8))
		return unpackArgb4444(v)
	case PixelYuv422:
		return c.decodeYuv422Texel(tcw, x, y, dim)
	case PixelBumpMap:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		v := uint16(w >> ((addr & 2) * 8))
		return c.bumpMap(v)
	case PixelPal4:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		shift := uint((addr & 3) * 8 % 8)
		idx := (uint32(w) >> shift) & 0xF
		return c.paletteLookup(tcw, idx)
	case PixelPal8:
		w, _ := c.vram.ReadUint32(addr &^ 3)
		shift := uint((addr & 3) * 8)
		idx := (uint32(w) >> shift) & 0xFF
		return c.paletteLookup(tcw, idx)
	default:
		return rgbaF{0, 0, 0, 1}
	}
}

func (c *Core) paletteLookup(tcw Tcw, idx uint32) rgbaF {
	pal := c.regs.PaletteRam()
	sel := tcw.PalSelect()
	w := pal[(sel<<4|idx)%uint32(len(pal))]
	return unpackArgb8888(w)
}

func unpackArgb1555(v uint16) rgbaF {
	a := float32(0)
	if v&0x8000 != 0 {
		a = 1
	}
	r := float32((v>>10)&0x1F) * 8 / 255
	g := float32((v>>5)&0x1F) * 8 / 255
	b := float32(v&0x1F) * 8 / 255
	return rgbaF{r, g, b, a}
}

func unpackArgb565(v uint16) rgbaF {
	r := float32((v>>11)&0x1F) * 8 / 255
	g := float32((v>>5)&0x3F) * 4 / 255
	b := float32(v&0x1F) * 8 / 255
	return rgbaF{r, g, b, 1}
}

func unpackArgb4444(v uint16) rgbaF {
	dup := func(n uint16) float32 { return float32(n*17) / 255 }
	a := dup((v >> 12) & 0xF)
	r := dup((v >> 8) & 0xF)
	g := dup((v >> 4) & 0xF)
	b := dup(v & 0xF)
	return rgbaF{r, g, b, a}
}

func unpackArgb8888(w uint32) rgbaF {
	return rgbaF{
		float32((w>>16)&0xFF) / 255,
		float32((w>>8)&0xFF) / 255,
		float32(w&0xFF) / 255,
		float32((w>>24)&0xFF) / 255,
	}
}

// decodeYuv422Texel decodes a 2-texel-packed YUV422 group and returns the
// color for the (x,y) texel's half, per the exact coefficients of
// refsw2-rust/src/tex_utils.rs::yuv422.
func (c *Core) decodeYuv422Texel(tcw Tcw, x, y, dim int) rgbaF {
	pairX := x &^ 1
	addr := tcw.TexAddr()*8 + texAddressGen(tcw, pairX, y, dim, 16)
	w, _ := c.vram.ReadUint32(addr &^ 3)
	y0 := uint8(w)
	u := uint8(w >> 8)
	y1 := uint8(w >> 16)
	vv := uint8(w >> 24)

	yy := y0
	if x&1 == 1 {
		yy = y1
	}
	return yuv422(yy, u, vv)
}

// yuv422 implements R = Y + Yv*11/8, G = Y - (Yu*11+Yv*22)/32,
// B = Y + Yu*110/64, with Yu/Yv biased by -128.
func yuv422(y, yu, yv uint8) rgbaF {
	Y := int32(y)
	Yu := int32(yu) - 128
	Yv := int32(yv) - 128

	r := Y + Yv*11/8
	g := Y - (Yu*11+Yv*22)/32
	b := Y + Yu*110/64

	clamp8 := func(v int32) float32 {
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		return float32(v) / 255
	}
	return rgbaF{clamp8(r), clamp8(g), clamp8(b), 1}
}

// bumpMap decodes a per-pixel normal from a bump-map texel using the
// BM_SIN90/BM_COS90/BM_COS360 tables and the two-argument lookup described
// in spec.md §4.5 step 1.
func (c *Core) bumpMap(v uint16) rgbaF {
	s := uint8(v >> 8)
	r := uint8(v)

	q := int(r) & 0xFF
	k := int(s) & 0xFF

	sinQ := float32(bmSin90[q]) / 127
	cosQ := float32(bmCos90[q]) / 127
	cos2K := float32(bmCos360[k]) / 127

	intensity := clampf(sinQ*cosQ+cos2K, 0, 1)
	return rgbaF{intensity, intensity, intensity, 1}
}
