// core_tsp.go - TSP shader: tag resolution, texture fetch/filter, color
// combine, fog, blend.
//
// Grounded on _examples/original_source/crates/refsw2r/src/tile.rs
// (pixel_flush_tsp, color_combiner, texture_fetch, texture_filter,
// fog_unit, blend_coefs/blending_unit, bump_mapper) and
// _examples/IntuitionAmiga-IntuitionEngine/voodoo_software.go's
// combineColors/getBlendFactor/sampleTexture, whose per-pixel dispatch
// shape (fetch -> combine -> fog -> blend -> write) this mirrors.

package main

import "math"

type rgbaF [4]float32 // r, g, b, a in [0,1]

// resolveTag decodes (or fetches from cache) the DrawParametersEx and
// vertex set for a pixel's tag, per refsw2r::tile.rs::get_fpu_entry.
func (c *Core) resolveTag(tag uint32) (DrawParametersEx, []Vertex, *CoreError) {
	idx := fpuCacheIndex(tagParamOffsInWords(tag))
	entry := &c.fpuCache.entries[idx]
	if entry.Valid && entry.Tag == tag && !tagCacheBypass(tag) {
		return entry.Params, entry.Verts, nil
	}

	paramBase := c.regs.ParamBase()
	addr := paramBase + tagParamOffsInWords(tag)*4
	twoVolumes := tagShadow(tag) && !c.regs.FpuShadScaleIntensityShadow()
	params, warn := c.readDrawParameters(addr, twoVolumes)
	n := 3
	verts, _, werr := c.decodePvrVertices(addr+4*paramBlockHeaderWords(twoVolumes), tagSkip(tag), twoVolumes, n, pcwFromIsp(params.Isp))
	if warn == nil {
		warn = werr
	}

	if !tagCacheBypass(tag) {
		entry.Valid = true
		entry.Tag = tag
		entry.Params = params
		entry.Verts = verts
	}
	return params, verts, warn
}

// pcwFromIsp derives the subset of PCW fields decodePvrVertices needs
// (Texture/Gouraud/Offset/Uv16Bit) from the ISP/TSP word, since the wire
// format ties vertex layout to those bits regardless of which word they
// are read from.
func pcwFromIsp(isp IspTsp) PCW {
	var p PCW
	if isp.Texture() {
		p |= 1 << 3
	}
	if isp.Gouraud() {
		p |= 1 << 1
	}
	if isp.Offset() {
		p |= 1 << 2
	}
	if isp.Uv16b() {
		p |= 1 << 0
	}
	return p
}

// renderParamTags resolves every covered, unwritten pixel in the tile for
// the given render mode and shades it, per spec.md §4.1/§4.5.
func (c *Core) renderParamTags(mode RenderMode, tile *TileBuffers) {
	for ty := 0; ty < tileDim; ty++ {
		for tx := 0; tx < tileDim; tx++ {
			tag := tile.Tag[ty][tx]
			if tag == backgroundTagSentinel {
				continue
			}
			if tile.Status[ty][tx]&statusWritten != 0 {
				continue
			}

			params, verts, _ := c.resolveTag(tag)
			if len(verts) < 3 {
				continue
			}

			col, alpha := c.shadePixel(params, verts, tx, ty, tile)

			switch mode {
			case RmPunchThroughPass0, RmPunchThroughPassN:
				if alpha < float32(c.regs.PtAlphaRef())/255 {
					tile.Tag[ty][tx] = backgroundTagSentinel
					tile.Status[ty][tx] &^= statusWritten
					continue
				}
			}

			c.blendIntoAccum(params.Tsp[0], col, alpha, tx, ty, tile)
			tile.Status[ty][tx] |= statusWritten
		}
	}
}

// shadePresortPixel is invoked directly from the ISP rasterizer for
// RmTranslucentPreSort, since presort blends in list-traversal order rather
// than through the deferred tag-buffer pass (spec.md §4.1 step 5).
func (c *Core) shadePresortPixel(tri isoTriangle, x, y int, tile *TileBuffers) {
	ty := y - (y/tileDim)*tileDim
	tx := x - (x/tileDim)*tileDim
	col, alpha := c.shadePixel(tri.params, tri.v[:], tx, ty, tile)
	c.blendIntoAccum(tri.params.Tsp[0], col, alpha, tx, ty, tile)
	tile.Status[ty][tx] |= statusWritten
}

// shadePixel runs steps 1-6 of spec.md §4.5: texture fetch+filter, color
// combine, offset color, fog, color clamp. Two-volume shading runs the
// whole pipeline twice and selects by stencil bit 1 (SPEC_FULL.md §5.1).
func (c *Core) shadePixel(params DrawParametersEx, verts []Vertex, tx, ty int, tile *TileBuffers) (rgbaF, float32) {
	v0 := verts[0]
	col0 := c.shadeVolume(params, verts, v0.Col, v0.Spc, v0.U, v0.V, params.Tsp[0], params.Tcw[0])

	if len(params.Tsp) > 1 && params.Tsp[1] != 0 && tagShadow(tile.Tag[ty][tx]) {
		scale := c.shadowScaleFactor()
		col1Vtx := scaleColor(v0.Col1, scale)
		spc1Vtx := scaleColor(v0.Spc1, scale)
		col1 := c.shadeVolume(params, verts, col1Vtx, spc1Vtx, v0.U1, v0.V1, params.Tsp[1], params.Tcw[1])
		if tile.Stencil[ty][tx]&stencilOr != 0 {
			return col1, col1[3]
		}
		return col0, col0[3]
	}
	return col0, col0[3]
}

// shadowScaleFactor converts FPU_SHAD_SCALE's 8-bit fixed-point
// scale_factor into a float multiplier applied to the second volume's
// color/offset interpolants, per SPEC_FULL.md §5.1. Boolean
// "intensity shadow" mode (FpuShadScaleIntensityShadow) forces twoVolumes
// off at the call site in resolveTag, so this only runs in fixed-point mode.
func (c *Core) shadowScaleFactor() float32 {
	return float32(c.regs.FpuShadScaleFactor()) / 128
}

func scaleColor(v [4]float32, scale float32) [4]float32 {
	return [4]float32{v[0] * scale, v[1] * scale, v[2] * scale, v[3]}
}

func (c *Core) shadeVolume(params DrawParametersEx, verts []Vertex, vcol, vspc [4]float32, u, v float32, tsp Tsp, tcw Tcw) rgbaF {
	base := rgbaF{vcol[0], vcol[1], vcol[2], vcol[3]}

	if params.Isp.Texture() {
		texel := c.textureFetch(tcw, tsp, u, v)
		base = colorCombiner(tsp.ShadInstr(), base, texel, tsp.IgnoreTexA())
	}

	if params.Isp.Offset() {
		base[0] += vspc[0]
		base[1] += vspc[1]
		base[2] += vspc[2]
	}

	base = c.applyFog(tsp, base, verts)

	if tsp.ColorClamp() {
		lo := float32(c.regs.FogClampMin()&0xFF) / 255
		hi := float32((c.regs.FogClampMax()>>16)&0xFF) / 255
		for i := 0; i < 3; i++ {
			base[i] = clampf(base[i], lo, hi)
		}
	}

	for i := range base {
		base[i] = clampf(base[i], 0, 1)
	}
	return base
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// colorCombiner implements the four ShadInstr modes of spec.md §4.5 step 2.
func colorCombiner(shadInstr uint32, base, texel rgbaF, ignoreTexA bool) rgbaF {
	a := texel[3]
	if ignoreTexA {
		a = 1
	}
	switch shadInstr {
	case 0: // decal
		return rgbaF{texel[0], texel[1], texel[2], a}
	case 1: // modulate
		return rgbaF{base[0] * texel[0], base[1] * texel[1], base[2] * texel[2], base[3]}
	case 2: // decal-alpha
		return rgbaF{
			texel[0]*a + base[0]*(1-a),
			texel[1]*a + base[1]*(1-a),
			texel[2]*a + base[2]*(1-a),
			base[3],
		}
	case 3: // modulate-alpha
		return rgbaF{base[0] * texel[0], base[1] * texel[1], base[2] * texel[2], base[3] * a}
	default:
		return base
	}
}

// applyFog implements the four FogCtrl modes of spec.md §4.5 step 4.
func (c *Core) applyFog(tsp Tsp, base rgbaF, verts []Vertex) rgbaF {
	var fogColor [3]uint8
	var factor float32

	switch tsp.FogCtrl() {
	case 2: // none
		return base
	case 1: // vertex: use vertex specular alpha
		factor = verts[0].Spc[3]
		fogColor = c.regs.FogColVert()
	case 0, 3: // table / table-alpha
		factor = c.lookupFogTable(verts[0].Z)
		if tsp.FogCtrl() == 3 {
			fogColor = c.regs.FogColVert()
		} else {
			fogColor = c.regs.FogColRam()
		}
	default:
		return base
	}

	fr := float32(fogColor[0]) / 255
	fg := float32(fogColor[1]) / 255
	fb := float32(fogColor[2]) / 255

	return rgbaF{
		base[0] + (fr-base[0])*factor,
		base[1] + (fg-base[1])*factor,
		base[2] + (fb-base[2])*factor,
		base[3],
	}
}

// lookupFogTable scales 1/w by FOG_DENSITY, clamps to [1.0, 255.999985],
// then selects two adjacent fog-table byte entries from the IEEE-754
// exponent/mantissa of the scaled value and linearly interpolates between
// them, per refsw2r::tile.rs::lookup_fog_table.
func (c *Core) lookupFogTable(invW float32) float32 {
	fogW := c.regs.FogDensity() * invW
	if fogW < 1 {
		fogW = 1
	}
	if fogW > 255.999985 {
		fogW = 255.999985
	}

	bits := math.Float32bits(fogW)
	m := bits & 0x7FFFFF
	e := (bits >> 23) & 0xFF

	index := (((e + 1) & 7) << 4) | ((m >> 19) & 15)
	blendFactor := (m >> 11) & 0xFF
	blendInv := 255 ^ blendFactor

	table := c.regs.FogTable()
	word := table[index]
	byte0 := word & 0xFF
	byte1 := (word >> 8) & 0xFF

	alpha := (byte0*to256Scale(blendFactor) + byte1*to256Scale(blendInv)) >> 8
	return float32(alpha) / 255
}

// to256Scale biases an 8-bit value to a 0-256 multiplier, adding a half-bit
// for rounding, per refsw2r::tile.rs::to_u8_256.
func to256Scale(v uint32) uint32 {
	return v + (v >> 7)
}

// blendIntoAccum implements spec.md §4.5 step 7: the eight source/
// destination factor codes, reading "other" from the accumulator.
func (c *Core) blendIntoAccum(tsp Tsp, col rgbaF, alpha float32, tx, ty int, tile *TileBuffers) {
	dst := tile.Accum[ty][tx]
	dstF := rgbaF{float32(dst[0]) / 255, float32(dst[1]) / 255, float32(dst[2]) / 255, float32(dst[3]) / 255}

	srcFactor := blendFactor(tsp.SrcInstr(), col, dstF)
	dstFactor := blendFactor(tsp.DstInstr(), col, dstF)

	out := rgbaF{
		col[0]*srcFactor[0] + dstF[0]*dstFactor[0],
		col[1]*srcFactor[1] + dstF[1]*dstFactor[1],
		col[2]*srcFactor[2] + dstF[2]*dstFactor[2],
		alpha*srcFactor[3] + dstF[3]*dstFactor[3],
	}
	for i := range out {
		out[i] = clampf(out[i], 0, 1)
	}
	tile.Accum[ty][tx] = [4]uint8{
		uint8(out[0] * 255),
		uint8(out[1] * 255),
		uint8(out[2] * 255),
		uint8(out[3] * 255),
	}
}

// blendFactor resolves one of the eight factor codes of spec.md §4.5 step 7.
func blendFactor(code uint32, src, dst rgbaF) rgbaF {
	switch code {
	case 0:
		return rgbaF{0, 0, 0, 0}
	case 1:
		return rgbaF{1, 1, 1, 1}
	case 2:
		return dst
	case 3:
		return rgbaF{1 - dst[0], 1 - dst[1], 1 - dst[2], 1 - dst[3]}
	case 4:
		return rgbaF{src[3], src[3], src[3], src[3]}
	case 5:
		return rgbaF{1 - src[3], 1 - src[3], 1 - src[3], 1 - src[3]}
	case 6:
		return rgbaF{dst[3], dst[3], dst[3], dst[3]}
	case 7:
		return rgbaF{1 - dst[3], 1 - dst[3], 1 - dst[3], 1 - dst[3]}
	default:
		return rgbaF{1, 1, 1, 1}
	}
}
