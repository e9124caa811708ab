package main

import (
	"math"
	"testing"
)

// Shared VRAM-poking helpers for the end-to-end scenario tests below. These
// mirror the setup style of TestRenderSingleOpaqueTriangle (S1) in
// core_pass_test.go: build a region array entry, an object list, a param
// block and its vertices directly in VRAM, then drive the whole
// region-array -> object-list -> ISP -> TSP -> writeback pipeline through
// Core.Render and inspect the result via FramebufferImage.

func putWord(t *testing.T, vram *VRAM, addr, w uint32) {
	t.Helper()
	if err := vram.WriteArea1_32(addr, w); err != nil {
		t.Fatalf("setup write at 0x%x failed: %v", addr, err)
	}
}

func putFloat(t *testing.T, vram *VRAM, addr uint32, f float32) {
	putWord(t, vram, addr, math.Float32bits(f))
}

// writeVertex4 writes an untextured, non-volume vertex record: X, Y, Z,
// packed ARGB8888 color (4 words).
func writeVertex4(t *testing.T, vram *VRAM, base uint32, x, y, z float32, argb uint32) {
	putFloat(t, vram, base+0, x)
	putFloat(t, vram, base+4, y)
	putFloat(t, vram, base+8, z)
	putWord(t, vram, base+12, argb)
}

// writeVertex5 writes an untextured, two-volume vertex record: X, Y, Z,
// volume-0 color, volume-1 color (5 words).
func writeVertex5(t *testing.T, vram *VRAM, base uint32, x, y, z float32, argb0, argb1 uint32) {
	putFloat(t, vram, base+0, x)
	putFloat(t, vram, base+4, y)
	putFloat(t, vram, base+8, z)
	putWord(t, vram, base+12, argb0)
	putWord(t, vram, base+16, argb1)
}

func standardFramebufferRegs(regs *Regs, fbSof uint32) {
	regs[regFbWCtrl] = fbPackARGB8888
	regs[regFbWLineStride] = 16
	regs[regFbWSof1] = fbSof
	regs[regScalerCtl] = 0x400
	regs[regIspBackgndT] = backgroundTagSentinel
}

// TestRenderZKeepPreservesTileAcrossRegionEntries is scenario S2: a region
// array with two entries targeting the same tile, the second with z_keep
// set and an empty opaque list. The first entry's shaded, blended pixels
// must survive into the second entry's writeback untouched.
func TestRenderZKeepPreservesTileAcrossRegionEntries(t *testing.T) {
	const (
		regionBase = uint32(0x1000)
		objListAt  = uint32(0x2000)
		paramBase  = uint32(0x400000)
		fbSof      = uint32(0x600000)
	)

	vram := NewVRAM()
	regs := &Regs{}

	// Region entry 0: opaque triangle, not last, writeout suppressed.
	putWord(t, vram, regionBase+0, 1<<28) // no_writeout, last_region=0, z_keep=0
	putWord(t, vram, regionBase+4, objListAt)
	putWord(t, vram, regionBase+8, 1<<31)
	putWord(t, vram, regionBase+12, 1<<31)
	putWord(t, vram, regionBase+16, 1<<31)

	// Region entry 1: last, z_keep set, every list empty.
	const entry1 = regionBase + 20
	putWord(t, vram, entry1+0, (1<<31)|(1<<30))
	putWord(t, vram, entry1+4, 1<<31)
	putWord(t, vram, entry1+8, 1<<31)
	putWord(t, vram, entry1+12, 1<<31)
	putWord(t, vram, entry1+16, 1<<31)

	putWord(t, vram, objListAt+0, 1<<25) // mask bit0, paramOffs=0
	putWord(t, vram, objListAt+4, 0xF0000000)

	putWord(t, vram, paramBase+0, uint32(7)<<29) // depth always, untextured
	putWord(t, vram, paramBase+4, uint32(1)<<29) // src=one, dst=zero
	putWord(t, vram, paramBase+8, 0)

	vertsAt := paramBase + 12
	const color = 0xFFC83232 // opaque reddish
	writeVertex4(t, vram, vertsAt+0*16, 5, 5, 0.5, color)
	writeVertex4(t, vram, vertsAt+1*16, 25, 5, 0.5, color)
	writeVertex4(t, vram, vertsAt+2*16, 5, 25, 0.5, color)
	for i := 3; i < 8; i++ {
		writeVertex4(t, vram, vertsAt+uint32(i)*16, 0, 0, 0, 0)
	}

	regs[regParamBase] = paramBase
	regs[regRegionBase] = regionBase
	standardFramebufferRegs(regs, fbSof)

	c := NewCore(vram, regs)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	img := FramebufferImage(vram, regs, 32, 32)
	inside := img.RGBAAt(10, 10)
	if inside.R != 0xC8 || inside.G != 0x32 || inside.B != 0x32 || inside.A != 255 {
		t.Errorf("pixel (10,10) after z_keep region = %+v, want the first entry's triangle color surviving into the second entry's writeback", inside)
	}
	outside := img.RGBAAt(28, 28)
	if outside.A != 0 {
		t.Errorf("pixel (28,28) outside triangle = %+v, want untouched background", outside)
	}
}

// TestRenderPunchThroughAlphaTest is scenario S3: two punch-through
// triangles occluding background geometry (depth mode greater-or-equal, the
// exact mode the old peelBuffersPTInitial regression broke), one with an
// alpha above PT_ALPHA_REF and one below. Only the one above the threshold
// may reach the framebuffer.
func TestRenderPunchThroughAlphaTest(t *testing.T) {
	const (
		regionBase = uint32(0x1000)
		objListAt  = uint32(0x2000)
		paramBase  = uint32(0x400000)
		fbSof      = uint32(0x600000)
	)

	vram := NewVRAM()
	regs := &Regs{}

	putWord(t, vram, regionBase+0, 1<<31) // last_region, writeout enabled
	putWord(t, vram, regionBase+4, 1<<31) // opaque: empty
	putWord(t, vram, regionBase+8, 1<<31)
	putWord(t, vram, regionBase+12, 1<<31)
	putWord(t, vram, regionBase+16, 1<<31)
	// 5-word header has no punch-through pointer word; PunchT comes from
	// readRegionArrayEntry leaving it empty unless RegionHeaderType==1. Use
	// a 6-word region so the punch-through list pointer is explicit.
	regs[regFpuParamCfg] = 1 << 21 // region_header_type=1 (6-word entries)
	putWord(t, vram, regionBase+20, objListAt)

	const (
		paramA = paramBase
		paramB = paramBase + 256
	)

	// Triangle A: passes both the depth occlusion check (z=0.6 >= the
	// opaque background depth of 0.4, depth mode 6) and the alpha test.
	putWord(t, vram, paramA+0, uint32(6)<<29)
	putWord(t, vram, paramA+4, uint32(1)<<29|uint32(2)<<22) // src=one,dst=zero,fog=none
	putWord(t, vram, paramA+8, 0)
	vertsA := paramA + 12
	writeVertex4(t, vram, vertsA+0*16, 5, 5, 0.6, 0xFFFFFFFF)
	writeVertex4(t, vram, vertsA+1*16, 15, 5, 0.6, 0xFFFFFFFF)
	writeVertex4(t, vram, vertsA+2*16, 5, 15, 0.6, 0xFFFFFFFF)
	for i := 3; i < 8; i++ {
		writeVertex4(t, vram, vertsA+uint32(i)*16, 0, 0, 0, 0)
	}

	// Triangle B: same occlusion depth, but alpha below PT_ALPHA_REF.
	putWord(t, vram, paramB+0, uint32(6)<<29)
	putWord(t, vram, paramB+4, uint32(1)<<29|uint32(2)<<22)
	putWord(t, vram, paramB+8, 0)
	vertsB := paramB + 12
	writeVertex4(t, vram, vertsB+0*16, 20, 5, 0.6, 0x10FFFFFF)
	writeVertex4(t, vram, vertsB+1*16, 28, 5, 0.6, 0x10FFFFFF)
	writeVertex4(t, vram, vertsB+2*16, 20, 12, 0.6, 0x10FFFFFF)
	for i := 3; i < 8; i++ {
		writeVertex4(t, vram, vertsB+uint32(i)*16, 0, 0, 0, 0)
	}

	putWord(t, vram, objListAt+0, 1<<25)      // triangle A, paramOffs=0
	putWord(t, vram, objListAt+4, 1<<25|64)   // triangle B, paramOffs=64
	putWord(t, vram, objListAt+8, 0xF0000000) // end of list

	regs[regParamBase] = paramBase
	regs[regRegionBase] = regionBase
	regs[regIspBackgndD] = math.Float32bits(0.4)
	regs[regPtAlphaRef] = 0x80
	standardFramebufferRegs(regs, fbSof)

	c := NewCore(vram, regs)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	img := FramebufferImage(vram, regs, 32, 32)
	passed := img.RGBAAt(8, 8)
	if passed.A != 255 || passed.R != 255 {
		t.Errorf("pixel (8,8) (triangle A, alpha above PT_ALPHA_REF) = %+v, want opaque white", passed)
	}
	discarded := img.RGBAAt(22, 7)
	if discarded.A != 0 {
		t.Errorf("pixel (22,7) (triangle B, alpha below PT_ALPHA_REF) = %+v, want discarded (alpha 0)", discarded)
	}
}

// TestRenderTranslucentPresortPaintsInListOrder is scenario S4: a pre-sort
// translucent list paints in object-list order regardless of each
// primitive's Z, since pre-sort performs no automatic depth ordering of its
// own (the caller is responsible for having sorted the list).
func TestRenderTranslucentPresortPaintsInListOrder(t *testing.T) {
	const (
		regionBase = uint32(0x1000)
		objListAt  = uint32(0x2000)
		paramBase  = uint32(0x400000)
		fbSof      = uint32(0x600000)
	)

	vram := NewVRAM()
	regs := &Regs{}

	putWord(t, vram, regionBase+0, (1<<31)|(1<<29)) // last_region, pre_sort
	putWord(t, vram, regionBase+4, 1<<31)            // opaque: empty
	putWord(t, vram, regionBase+8, 1<<31)
	putWord(t, vram, regionBase+12, objListAt) // trans
	putWord(t, vram, regionBase+16, 1<<31)

	regs[regIspFeedCfg] = 1 // 5-word region headers source pre_sort from here

	const (
		paramNear = paramBase        // drawn first, nearer (z=0.1), red
		paramFar  = paramBase + 256  // drawn second, farther (z=0.9), blue
	)

	for _, p := range []struct {
		addr  uint32
		z     float32
		color uint32
	}{
		{paramNear, 0.1, 0xFFFF0000},
		{paramFar, 0.9, 0xFF0000FF},
	} {
		putWord(t, vram, p.addr+0, uint32(7)<<29) // depth mode always
		putWord(t, vram, p.addr+4, uint32(1)<<29|uint32(2)<<22)
		putWord(t, vram, p.addr+8, 0)
		verts := p.addr + 12
		writeVertex4(t, vram, verts+0*16, 5, 5, p.z, p.color)
		writeVertex4(t, vram, verts+1*16, 25, 5, p.z, p.color)
		writeVertex4(t, vram, verts+2*16, 5, 25, p.z, p.color)
		for i := 3; i < 8; i++ {
			writeVertex4(t, vram, verts+uint32(i)*16, 0, 0, 0, 0)
		}
	}

	putWord(t, vram, objListAt+0, 1<<25)      // near triangle, paramOffs=0
	putWord(t, vram, objListAt+4, 1<<25|64)   // far triangle, paramOffs=64
	putWord(t, vram, objListAt+8, 0xF0000000) // end of list

	regs[regParamBase] = paramBase
	regs[regRegionBase] = regionBase
	standardFramebufferRegs(regs, fbSof)

	c := NewCore(vram, regs)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	img := FramebufferImage(vram, regs, 32, 32)
	got := img.RGBAAt(10, 10)
	if got.R != 0 || got.G != 0 || got.B != 255 {
		t.Errorf("pixel (10,10) = %+v, want the farther (list-last) blue triangle to win under pre-sort painter order", got)
	}
}

// TestRenderTranslucentAutoSortTieBreak is scenario S5: two auto-sort
// translucent triangles covering the same pixel with identical Z. The
// pixelFlushIsp peel test requires z strictly less than the tile's current
// depth_test to accept a candidate, so once the first primitive visited in
// a peel iteration claims a given depth, no later primitive at the same
// depth can displace it — list order decides the tie.
func TestRenderTranslucentAutoSortTieBreak(t *testing.T) {
	const (
		regionBase = uint32(0x1000)
		objListAt  = uint32(0x2000)
		paramBase  = uint32(0x400000)
		fbSof      = uint32(0x600000)
	)

	vram := NewVRAM()
	regs := &Regs{}

	putWord(t, vram, regionBase+0, 1<<31) // last_region, auto-sort (no pre_sort)
	putWord(t, vram, regionBase+4, 1<<31) // opaque: empty
	putWord(t, vram, regionBase+8, 1<<31)
	putWord(t, vram, regionBase+12, objListAt) // trans
	putWord(t, vram, regionBase+16, 1<<31)

	regs[regIspFeedCfg] = 0

	const (
		paramFirst  = paramBase       // listed first: green
		paramSecond = paramBase + 256 // listed second, same Z: yellow
	)

	for _, p := range []struct {
		addr  uint32
		color uint32
	}{
		{paramFirst, 0xFF00FF00},
		{paramSecond, 0xFFFFFF00},
	} {
		putWord(t, vram, p.addr+0, uint32(7)<<29)
		putWord(t, vram, p.addr+4, uint32(1)<<29|uint32(2)<<22)
		putWord(t, vram, p.addr+8, 0)
		verts := p.addr + 12
		writeVertex4(t, vram, verts+0*16, 5, 5, 0.5, p.color)
		writeVertex4(t, vram, verts+1*16, 25, 5, 0.5, p.color)
		writeVertex4(t, vram, verts+2*16, 5, 25, 0.5, p.color)
		for i := 3; i < 8; i++ {
			writeVertex4(t, vram, verts+uint32(i)*16, 0, 0, 0, 0)
		}
	}

	putWord(t, vram, objListAt+0, 1<<25)      // first, paramOffs=0
	putWord(t, vram, objListAt+4, 1<<25|64)   // second, paramOffs=64
	putWord(t, vram, objListAt+8, 0xF0000000) // end of list

	regs[regParamBase] = paramBase
	regs[regRegionBase] = regionBase
	standardFramebufferRegs(regs, fbSof)

	c := NewCore(vram, regs)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	img := FramebufferImage(vram, regs, 32, 32)
	got := img.RGBAAt(10, 10)
	if got.R != 0 || got.G != 255 || got.B != 0 {
		t.Errorf("pixel (10,10) = %+v, want the first-listed green triangle to win the equal-depth tie", got)
	}
}

// TestRenderModifierVolumeOrFold is scenario S6: a two-volume opaque
// triangle pair stenciled by a modifier volume (VolumeMode=1, OR fold).
// Pixels inside the modifier volume must shade with the second (shadowed)
// volume's color; pixels outside must shade with the first.
func TestRenderModifierVolumeOrFold(t *testing.T) {
	const (
		regionBase   = uint32(0x1000)
		objListOpAt  = uint32(0x2000)
		objListModAt = uint32(0x2100)
		paramBase    = uint32(0x400000)
		fbSof        = uint32(0x600000)
	)

	vram := NewVRAM()
	regs := &Regs{}

	putWord(t, vram, regionBase+0, 1<<31) // last_region, writeout enabled
	putWord(t, vram, regionBase+4, objListOpAt)
	putWord(t, vram, regionBase+8, objListModAt)
	putWord(t, vram, regionBase+12, 1<<31)
	putWord(t, vram, regionBase+16, 1<<31)

	const (
		paramOp  = paramBase       // two-volume opaque quad
		paramMod = paramBase + 256 // modifier-volume triangle
	)

	// Opaque two-volume quad (two triangles via strip mask bits 0 and 1)
	// covering the whole tile: volume 0 red, volume 1 blue.
	putWord(t, vram, paramOp+0, uint32(7)<<29) // depth always, untextured
	putWord(t, vram, paramOp+4, uint32(1)<<29|uint32(2)<<22)
	putWord(t, vram, paramOp+8, 0)
	putWord(t, vram, paramOp+12, uint32(1)<<29|uint32(2)<<22) // TSP2
	putWord(t, vram, paramOp+16, 0)                            // TCW2
	opVerts := paramOp + 20
	const (
		red  = 0xFFFF0000
		blue = 0xFF0000FF
	)
	writeVertex5(t, vram, opVerts+0*20, 0, 0, 0.5, red, blue)
	writeVertex5(t, vram, opVerts+1*20, 32, 0, 0.5, red, blue)
	writeVertex5(t, vram, opVerts+2*20, 0, 32, 0.5, red, blue)
	writeVertex5(t, vram, opVerts+3*20, 32, 32, 0.5, red, blue)
	for i := 4; i < 8; i++ {
		writeVertex5(t, vram, opVerts+uint32(i)*20, 0, 0, 0, 0, 0)
	}

	// Modifier triangle covering the left wedge of the tile (VolumeMode=1,
	// OR fold), excluding the right side.
	putWord(t, vram, paramMod+0, 1<<27) // volume_mode=1
	putWord(t, vram, paramMod+4, 0)
	putWord(t, vram, paramMod+8, 0)
	modVerts := paramMod + 12
	writeVertex4(t, vram, modVerts+0*16, 0, 0, 0, 0)
	writeVertex4(t, vram, modVerts+1*16, 16, 0, 0, 0)
	writeVertex4(t, vram, modVerts+2*16, 0, 32, 0, 0)
	for i := 3; i < 8; i++ {
		writeVertex4(t, vram, modVerts+uint32(i)*16, 0, 0, 0, 0)
	}

	putWord(t, vram, objListOpAt+0, (1<<25)|(1<<26)|(1<<24)) // mask bits 0,1; shadow
	putWord(t, vram, objListOpAt+4, 0xF0000000)

	putWord(t, vram, objListModAt+0, 1<<25|64) // mask bit0, paramOffs=64
	putWord(t, vram, objListModAt+4, 0xF0000000)

	regs[regParamBase] = paramBase
	regs[regRegionBase] = regionBase
	regs[regFpuShadScale] = 128 // scale_factor=128 => x1.0 on the second volume
	standardFramebufferRegs(regs, fbSof)

	c := NewCore(vram, regs)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	img := FramebufferImage(vram, regs, 32, 32)
	insideVolume := img.RGBAAt(5, 15)
	if insideVolume.B != 255 || insideVolume.R != 0 {
		t.Errorf("pixel (5,15) inside the modifier volume = %+v, want the second (blue) volume's color", insideVolume)
	}
	outsideVolume := img.RGBAAt(20, 15)
	if outsideVolume.R != 255 || outsideVolume.B != 0 {
		t.Errorf("pixel (20,15) outside the modifier volume = %+v, want the first (red) volume's color", outsideVolume)
	}
}

// TestRenderMalformedRegionArrayReportsError is invariant #4: a region
// array whose entries never set last_region must not loop forever; Render
// must give up after maxRegionEntries and report MalformedList.
func TestRenderMalformedRegionArrayReportsError(t *testing.T) {
	const regionBase = uint32(0x1000)
	const maxRegionEntries = 1024

	vram := NewVRAM()
	regs := &Regs{}
	regs[regRegionBase] = regionBase
	regs[regIspBackgndT] = backgroundTagSentinel

	// Every entry: no_writeout set (skip the writeback path entirely),
	// last_region never set, every list pointer empty.
	for i := 0; i < maxRegionEntries; i++ {
		base := regionBase + uint32(i)*20
		putWord(t, vram, base+0, 1<<28)
		putWord(t, vram, base+4, 1<<31)
		putWord(t, vram, base+8, 1<<31)
		putWord(t, vram, base+12, 1<<31)
		putWord(t, vram, base+16, 1<<31)
	}

	c := NewCore(vram, regs)
	err := c.Render()
	if err == nil {
		t.Fatalf("Render() succeeded over a region array that never terminates, want MalformedList")
	}
	if err.Kind != MalformedList {
		t.Errorf("Render() error kind = %v, want MalformedList", err.Kind)
	}
}

// TestResolveTagCacheConsistencyAndEviction is invariant #6: resolveTag must
// return identical decoded data across repeated calls with the same tag
// (cache hit), and must not leak a stale cache entry's data across a
// same-index collision with a different tag.
func TestResolveTagCacheConsistencyAndEviction(t *testing.T) {
	const paramBase = uint32(0x400000)

	vram := NewVRAM()
	regs := &Regs{}
	regs[regParamBase] = paramBase

	writeBlock := func(offsetWords uint32, color uint32) {
		addr := paramBase + offsetWords*4
		putWord(t, vram, addr+0, uint32(7)<<29)
		putWord(t, vram, addr+4, uint32(1)<<29)
		putWord(t, vram, addr+8, 0)
		verts := addr + 12
		writeVertex4(t, vram, verts+0*16, 0, 0, 0.5, color)
		writeVertex4(t, vram, verts+1*16, 10, 0, 0.5, color)
		writeVertex4(t, vram, verts+2*16, 0, 10, 0.5, color)
	}

	const (
		offsetA = 0  // fpuCacheIndex(0) == 0
		offsetB = 32 // fpuCacheIndex(32) == 0: collides with offsetA
		colorA  = 0xFFFF0000
		colorB  = 0xFF0000FF
	)
	writeBlock(offsetA, colorA)
	writeBlock(offsetB, colorB)

	tagA := coreTagFromDesc(offsetA, 0, 0, false, false)
	tagB := coreTagFromDesc(offsetB, 0, 0, false, false)
	if fpuCacheIndex(offsetA) != fpuCacheIndex(offsetB) {
		t.Fatalf("test setup invalid: offsets %d and %d do not collide in the 32-entry cache", offsetA, offsetB)
	}

	c := NewCore(vram, regs)

	_, vertsA1, err := c.resolveTag(tagA)
	if err != nil {
		t.Fatalf("resolveTag(tagA) failed: %v", err)
	}
	_, vertsA2, err := c.resolveTag(tagA)
	if err != nil {
		t.Fatalf("resolveTag(tagA) (cached) failed: %v", err)
	}
	if vertsA1[0].Col != vertsA2[0].Col {
		t.Fatalf("resolveTag(tagA) returned inconsistent data across a cache hit: %v vs %v", vertsA1[0].Col, vertsA2[0].Col)
	}
	if vertsA1[0].Col[0] < 0.9 {
		t.Fatalf("resolveTag(tagA) color = %v, want red (high R channel)", vertsA1[0].Col)
	}

	_, vertsB, err := c.resolveTag(tagB)
	if err != nil {
		t.Fatalf("resolveTag(tagB) failed: %v", err)
	}
	if vertsB[0].Col[2] < 0.9 {
		t.Fatalf("resolveTag(tagB) color = %v, want blue (high B channel) despite sharing tagA's cache slot", vertsB[0].Col)
	}

	_, vertsA3, err := c.resolveTag(tagA)
	if err != nil {
		t.Fatalf("resolveTag(tagA) after eviction failed: %v", err)
	}
	if vertsA3[0].Col[0] < 0.9 {
		t.Fatalf("resolveTag(tagA) after tagB evicted its cache slot = %v, want red again (re-decoded from VRAM, not tagB's stale data)", vertsA3[0].Col)
	}
}
