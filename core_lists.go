// core_lists.go - display-list decoder: region array, object lists,
// parameter blocks and wire-format vertices.
//
// Grounded on _examples/original_source/crates/refsw2r/src/lists.rs and
// lists_types.rs (bitfield layouts), and refsw2-cpp/ffi/core_structs.h for
// the ISP_TSP/VolumeMode union. Bit-field accessors are explicit shift/mask
// methods, the approach spec.md's design notes mandate in place of the Rust
// bitfield! macro or C bitfield unions.

package main

import "math"

type RenderMode int

const (
	RmOpaque RenderMode = iota
	RmPunchThroughPass0
	RmPunchThroughPassN
	RmPunchThroughMV
	RmTranslucentAutoSort
	RmTranslucentPreSort
	RmModifier
)

// ListPointer: bit 31 empty, bits 23:2 word pointer.
type ListPointer uint32

func (p ListPointer) Empty() bool        { return p&(1<<31) != 0 }
func (p ListPointer) PtrInWords() uint32 { return (uint32(p) >> 2) & 0x3FFFFF }

// RegionArrayEntryControl: word 0 of a region-array entry.
type RegionArrayEntryControl uint32

func (c RegionArrayEntryControl) TileX() uint32      { return (uint32(c) >> 2) & 0x3F }
func (c RegionArrayEntryControl) TileY() uint32      { return (uint32(c) >> 8) & 0x3F }
func (c RegionArrayEntryControl) NoWriteout() bool   { return c&(1<<28) != 0 }
func (c RegionArrayEntryControl) PreSort() bool      { return c&(1<<29) != 0 }
func (c RegionArrayEntryControl) ZKeep() bool        { return c&(1<<30) != 0 }
func (c RegionArrayEntryControl) LastRegion() bool   { return c&(1<<31) != 0 }

type RegionArrayEntry struct {
	Control  RegionArrayEntryControl
	Opaque   ListPointer
	OpaqueMod ListPointer
	Trans    ListPointer
	TransMod ListPointer
	PunchT   ListPointer
}

// readRegionArrayEntry returns the decoded entry and the step in bytes to
// the next entry (20 for 5-word, 24 for 6-word region headers). In 5-word
// mode the punch-through pointer is synthesized empty and pre_sort is
// overridden from ISP_FEED_CFG, per spec.md §3/§4.2.
func (c *Core) readRegionArrayEntry(base uint32) (RegionArrayEntry, uint32, *CoreError) {
	var e RegionArrayEntry
	w0, warn := c.vram.ReadUint32(base)
	e.Control = RegionArrayEntryControl(w0)

	w1, _ := c.vram.ReadUint32(base + 4)
	e.Opaque = ListPointer(w1)
	w2, _ := c.vram.ReadUint32(base + 8)
	e.OpaqueMod = ListPointer(w2)
	w3, _ := c.vram.ReadUint32(base + 12)
	e.Trans = ListPointer(w3)
	w4, _ := c.vram.ReadUint32(base + 16)
	e.TransMod = ListPointer(w4)

	if c.regs.RegionHeaderType() == 1 {
		w5, _ := c.vram.ReadUint32(base + 20)
		e.PunchT = ListPointer(w5)
		return e, 24, warn
	}

	e.PunchT = ListPointer(1 << 31) // empty
	if c.regs.IspFeedCfgPreSort() {
		e.Control |= 1 << 29
	} else {
		e.Control &^= 1 << 29
	}
	return e, 20, warn
}

// ObjectListEntry is a 32-bit word dispatched by its top bits.
type ObjectListEntry uint32

func (o ObjectListEntry) IsNotTriangleStrip() bool { return o&(1<<31) != 0 }
func (o ObjectListEntry) ObjType() uint32          { return (uint32(o) >> 29) & 0x7 }

func (o ObjectListEntry) ParamOffsInWords() uint32 { return uint32(o) & 0x1FFFFF }
func (o ObjectListEntry) Skip() uint32              { return (uint32(o) >> 21) & 0x7 }
func (o ObjectListEntry) Shadow() bool              { return o&(1<<24) != 0 }
func (o ObjectListEntry) Mask() uint32              { return (uint32(o) >> 25) & 0x3F }
func (o ObjectListEntry) Prims() uint32              { return (uint32(o) >> 25) & 0xF }

func (o ObjectListEntry) NextBlockPtrInWords() uint32 { return (uint32(o) >> 2) & 0x3FFFFF }
func (o ObjectListEntry) EndOfList() bool             { return o&(1<<28) != 0 }

const (
	objTypeTriangleArray = 0b100
	objTypeQuadArray     = 0b101
	objTypeLink          = 0b111
)

// PCW - Parameter Control Word, first word of a parameter block.
type PCW uint32

const pcwDrawMask = 0x000000CE

func (p PCW) Uv16Bit() bool    { return p&(1<<0) != 0 }
func (p PCW) Gouraud() bool    { return p&(1<<1) != 0 }
func (p PCW) Offset() bool     { return p&(1<<2) != 0 }
func (p PCW) Texture() bool    { return p&(1<<3) != 0 }
func (p PCW) ColType() uint32  { return (uint32(p) >> 4) & 0x3 }
func (p PCW) Volume() bool     { return p&(1<<7) != 0 }
func (p PCW) Shadow() bool     { return p&(1<<7) != 0 }
func (p PCW) UserClip() uint32 { return (uint32(p) >> 16) & 0x3 }
func (p PCW) StripLen() uint32 { return (uint32(p) >> 18) & 0x3 }
func (p PCW) GroupEn() bool    { return p&(1<<23) != 0 }
func (p PCW) ListType() uint32 { return (uint32(p) >> 24) & 0x7 }
func (p PCW) EndOfStrip() bool { return p&(1<<28) != 0 }
func (p PCW) ParaType() uint32 { return (uint32(p) >> 29) & 0x7 }

// IspTsp - ISP/TSP instruction word. CullMode is reinterpreted as
// VolumeMode when the primitive belongs to a modifier-volume list; the two
// accessors read the same bits (SPEC_FULL.md §5.1).
type IspTsp uint32

func (i IspTsp) DCalcCtrl() bool  { return i&(1<<20) != 0 }
func (i IspTsp) CacheBypass() bool { return i&(1<<21) != 0 }
func (i IspTsp) Uv16b() bool      { return i&(1<<22) != 0 }
func (i IspTsp) Gouraud() bool    { return i&(1<<23) != 0 }
func (i IspTsp) Offset() bool     { return i&(1<<24) != 0 }
func (i IspTsp) Texture() bool    { return i&(1<<25) != 0 }
func (i IspTsp) ZWriteDis() bool  { return i&(1<<26) != 0 }
func (i IspTsp) CullMode() uint32 { return (uint32(i) >> 27) & 0x3 }
func (i IspTsp) VolumeMode() uint32 { return (uint32(i) >> 27) & 0x3 }
func (i IspTsp) DepthMode() uint32  { return (uint32(i) >> 29) & 0x7 }

// Tsp - TSP instruction word.
type Tsp uint32

func (t Tsp) TexV() uint32       { return uint32(t) & 0x7 }
func (t Tsp) TexU() uint32       { return (uint32(t) >> 3) & 0x7 }
func (t Tsp) ShadInstr() uint32  { return (uint32(t) >> 6) & 0x3 }
func (t Tsp) MipMapD() uint32    { return (uint32(t) >> 8) & 0xF }
func (t Tsp) SupSample() bool    { return t&(1<<12) != 0 }
func (t Tsp) FilterMode() uint32 { return (uint32(t) >> 13) & 0x3 }
func (t Tsp) ClampV() bool       { return t&(1<<15) != 0 }
func (t Tsp) ClampU() bool       { return t&(1<<16) != 0 }
func (t Tsp) FlipV() bool        { return t&(1<<17) != 0 }
func (t Tsp) FlipU() bool        { return t&(1<<18) != 0 }
func (t Tsp) IgnoreTexA() bool   { return t&(1<<19) != 0 }
func (t Tsp) UseAlpha() bool     { return t&(1<<20) != 0 }
func (t Tsp) ColorClamp() bool   { return t&(1<<21) != 0 }
func (t Tsp) FogCtrl() uint32    { return (uint32(t) >> 22) & 0x3 }
func (t Tsp) DstSelect() bool    { return t&(1<<24) != 0 }
func (t Tsp) SrcSelect() bool    { return t&(1<<25) != 0 }
func (t Tsp) DstInstr() uint32   { return (uint32(t) >> 26) & 0x7 }
func (t Tsp) SrcInstr() uint32   { return (uint32(t) >> 29) & 0x7 }

// Tcw - Texture Control Word.
type Tcw uint32

func (c Tcw) TexAddr() uint32    { return uint32(c) & 0x1FFFFF }
func (c Tcw) StrideSel() bool    { return c&(1<<25) != 0 }
func (c Tcw) ScanOrder() bool    { return c&(1<<26) != 0 }
func (c Tcw) PixelFmt() uint32   { return (uint32(c) >> 27) & 0x7 }
func (c Tcw) VqComp() bool       { return c&(1<<30) != 0 }
func (c Tcw) MipMapped() bool    { return c&(1<<31) != 0 }
func (c Tcw) PalSelect() uint32  { return (uint32(c) >> 21) & 0x3F }

const (
	Pixel1555 = iota
	Pixel565
	Pixel4444
	PixelYuv422
	PixelBumpMap
	PixelPal4
	PixelPal8
	PixelReserved
)

// Vertex mirrors refsw2-rust/src/types.rs::Vertex.
type Vertex struct {
	X, Y, Z       float32
	Col           [4]float32
	Spc           [4]float32
	U, V          float32
	Col1          [4]float32
	Spc1          [4]float32
	U1, V1        float32
}

// DrawParametersEx bundles the decoded instruction words for one
// primitive/strip, including the optional second volume.
type DrawParametersEx struct {
	Isp IspTsp
	Tsp [2]Tsp
	Tcw [2]Tcw
}

func coreTagFromDesc(paramOffsInWords, tagOffset uint32, skip uint32, shadow, cacheBypass bool) uint32 {
	tag := paramOffsInWords & 0x1FFFFF
	tag |= (tagOffset & 0x7) << 21
	tag |= (skip & 0x7) << 24
	if shadow {
		tag |= 1 << 27
	}
	if cacheBypass {
		tag |= 1 << 28
	}
	return tag
}

func tagParamOffsInWords(tag uint32) uint32 { return tag & 0x1FFFFF }
func tagOffset(tag uint32) uint32           { return (tag >> 21) & 0x7 }
func tagSkip(tag uint32) uint32             { return (tag >> 24) & 0x7 }
func tagShadow(tag uint32) bool             { return tag&(1<<27) != 0 }
func tagCacheBypass(tag uint32) bool        { return tag&(1<<28) != 0 }

// f16 decodes a PowerVR half-float (sign:1, exponent:5, mantissa:10, bias 15).
func f16(bits uint16) float32 {
	sign := uint32(bits>>15) & 1
	exp := uint32(bits>>10) & 0x1F
	mant := uint32(bits) & 0x3FF
	if exp == 0 {
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &^= 0x400
	} else if exp == 0x1F {
		if mant == 0 {
			return math.Float32frombits(sign<<31 | 0xFF<<23)
		}
		return math.Float32frombits(sign<<31 | 0xFF<<23 | mant<<13)
	}
	exp32 := exp - 15 + 127
	return math.Float32frombits(sign<<31 | exp32<<23 | mant<<13)
}

// decodePvrVertices reads n vertices from VRAM starting at addr. The wire
// layout comes from pcw's Texture/Uv16Bit/Gouraud/Offset flags and from
// twoVolumes; skip is not consulted. Returns the decoded vertices and the
// address immediately following them.
func (c *Core) decodePvrVertices(addr uint32, skip uint32, twoVolumes bool, n int, pcw PCW) ([]Vertex, uint32, *CoreError) {
	verts := make([]Vertex, n)
	uv16 := pcw.Uv16Bit()
	gouraud := pcw.Gouraud()
	textured := pcw.Texture()
	offset := pcw.Offset()

	for i := 0; i < n; i++ {
		var v Vertex
		xb, _ := c.vram.ReadUint32(addr)
		yb, _ := c.vram.ReadUint32(addr + 4)
		zb, _ := c.vram.ReadUint32(addr + 8)
		v.X = math.Float32frombits(xb)
		v.Y = math.Float32frombits(yb)
		v.Z = math.Float32frombits(zb)
		addr += 12

		if textured {
			if uv16 {
				uvb, _ := c.vram.ReadUint32(addr)
				v.U = f16(uint16(uvb >> 16))
				v.V = f16(uint16(uvb))
				addr += 4
			} else {
				ub, _ := c.vram.ReadUint32(addr)
				vb, _ := c.vram.ReadUint32(addr + 4)
				v.U = math.Float32frombits(ub)
				v.V = math.Float32frombits(vb)
				addr += 8
			}
		}

		colb, _ := c.vram.ReadUint32(addr)
		v.Col = unpackArgb8888f(colb)
		addr += 4

		if gouraud && offset {
			spcb, _ := c.vram.ReadUint32(addr)
			v.Spc = unpackArgb8888f(spcb)
			addr += 4
		}

		if twoVolumes {
			if textured {
				if uv16 {
					uvb, _ := c.vram.ReadUint32(addr)
					v.U1 = f16(uint16(uvb >> 16))
					v.V1 = f16(uint16(uvb))
					addr += 4
				} else {
					ub, _ := c.vram.ReadUint32(addr)
					vb, _ := c.vram.ReadUint32(addr + 4)
					v.U1 = math.Float32frombits(ub)
					v.V1 = math.Float32frombits(vb)
					addr += 8
				}
			}
			col1b, _ := c.vram.ReadUint32(addr)
			v.Col1 = unpackArgb8888f(col1b)
			addr += 4
			if gouraud && offset {
				spc1b, _ := c.vram.ReadUint32(addr)
				v.Spc1 = unpackArgb8888f(spc1b)
				addr += 4
			}
		}

		verts[i] = v
	}
	return verts, addr, nil
}

func unpackArgb8888f(w uint32) [4]float32 {
	return [4]float32{
		float32((w>>16)&0xFF) / 255,
		float32((w>>8)&0xFF) / 255,
		float32(w&0xFF) / 255,
		float32((w>>24)&0xFF) / 255,
	}
}

// paramBlockHeaderWords returns how many 32-bit words the instruction-word header
// occupies before vertices, depending on whether a second volume is present.
func paramBlockHeaderWords(twoVolumes bool) uint32 {
	if twoVolumes {
		return 5 // ISP_TSP, TSP, TCW, TSP2, TCW2
	}
	return 3
}

// readDrawParameters decodes the ISP/TSP/TCW(+TSP2/TCW2) header at addr.
func (c *Core) readDrawParameters(addr uint32, twoVolumes bool) (DrawParametersEx, *CoreError) {
	var d DrawParametersEx
	ispw, warn := c.vram.ReadUint32(addr)
	d.Isp = IspTsp(ispw)
	tspw, _ := c.vram.ReadUint32(addr + 4)
	d.Tsp[0] = Tsp(tspw)
	tcww, _ := c.vram.ReadUint32(addr + 8)
	d.Tcw[0] = Tcw(tcww)
	if twoVolumes {
		tsp2w, _ := c.vram.ReadUint32(addr + 12)
		d.Tsp[1] = Tsp(tsp2w)
		tcw2w, _ := c.vram.ReadUint32(addr + 16)
		d.Tcw[1] = Tcw(tcw2w)
	}
	return d, warn
}
