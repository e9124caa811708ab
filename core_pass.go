// core_pass.go - the pass driver: Core's top-level render() loop and the
// display-list object-list traversal that feeds the ISP rasterizer.
//
// Grounded on _examples/original_source/crates/refsw2-cpp/ffi/refsw_lists.cc
// (RenderCORE, RenderObjectList, RenderTriangleStrip/Array, RenderQuadArray)
// for the exact pass/peel control flow, and on
// _examples/IntuitionAmiga-IntuitionEngine/video_voodoo.go for the
// sync.Mutex-guarded engine-state shape Core follows.

package main

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Core is the tile-based deferred rendering core. VRAM and Regs are
// borrowed for the duration of render(), per spec.md §3 lifecycles.
type Core struct {
	mu sync.Mutex

	vram *VRAM
	regs *Regs

	fpuCache FpuCache
	tile     TileBuffers

	textureDim int
	warnings   []CoreError

	// Logf receives non-fatal diagnostics; nil is a valid no-op sink.
	Logf func(format string, args ...any)

	// Parallel is not read by Render, which always renders region entries
	// sequentially; tile-parallel rendering is done by RenderParallel.
	Parallel bool
}

func NewCore(vram *VRAM, regs *Regs) *Core {
	InitTexUtils()
	return &Core{vram: vram, regs: regs, textureDim: 64}
}

func (c *Core) warn(e *CoreError) {
	if e == nil {
		return
	}
	c.mu.Lock()
	c.warnings = append(c.warnings, *e)
	c.mu.Unlock()
	if c.Logf != nil {
		c.Logf("pvrcore: %s", e.Error())
	}
}

// Render performs one frame: walks the region array from REGION_BASE until
// an entry with last_region set, running the five-phase pass driver over
// each tile and writing back to VRAM. Returns nil on success (with any
// warnings accumulated in Core.Warnings()), a *CoreError of kind
// ConfigurationUnsupported if the frame must be aborted, or one of kind
// MalformedList if no entry sets last_region within 1024 entries.
func (c *Core) Render() *CoreError {
	c.warnings = nil
	base := c.regs.RegionBase()

	const maxRegionEntries = 1024
	for i := 0; i < maxRegionEntries; i++ {
		entry, step, warn := c.readRegionArrayEntry(base)
		c.warn(warn)
		base += step

		if err := c.renderRegion(entry); err != nil {
			return err
		}
		if entry.Control.LastRegion() {
			return nil
		}
	}
	return newCoreError(MalformedList, "region array did not terminate within %d entries", maxRegionEntries)
}

func (c *Core) Warnings() []CoreError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings
}

func (c *Core) renderRegion(entry RegionArrayEntry) *CoreError {
	rect := TaRect{
		Left:   int(entry.Control.TileX()) * tileDim,
		Top:    int(entry.Control.TileY()) * tileDim,
		Right:  int(entry.Control.TileX())*tileDim + tileDim,
		Bottom: int(entry.Control.TileY())*tileDim + tileDim,
	}

	c.fpuCache.clear()

	bgTag := c.regs.IspBackgndT()
	if !entry.Control.ZKeep() {
		c.tile.clearBuffers(bgTag, c.regs.IspBackgndD())
	} else {
		c.tile.clearParamStatusBuffer()
	}

	if !entry.Opaque.Empty() {
		c.renderObjectList(RmOpaque, entry.Opaque.PtrInWords()*4, rect)
		if !entry.OpaqueMod.Empty() {
			c.renderObjectList(RmModifier, entry.OpaqueMod.PtrInWords()*4, rect)
		}
	}
	c.renderParamTags(RmOpaque, &c.tile)

	if !entry.PunchT.Empty() {
		if err := c.runPunchThrough(entry, rect); err != nil {
			return err
		}
	}

	if !entry.Trans.Empty() {
		if entry.Control.PreSort() {
			c.tile.clearParamStatusBuffer()
			c.renderObjectList(RmTranslucentPreSort, entry.Trans.PtrInWords()*4, rect)
		} else {
			c.runTranslucentAutoSort(entry, rect)
		}
	}

	if !entry.Control.NoWriteout() {
		if err := c.writebackTile(rect); err != nil {
			return err
		}
	}
	return nil
}

// runPunchThrough implements the iterative alpha-test peel of spec.md
// §4.1 step 4, following refsw_lists.cc::RenderCORE's exact loop shape
// (SPEC_FULL.md §5.1).
func (c *Core) runPunchThrough(entry RegionArrayEntry, rect TaRect) *CoreError {
	c.tile.peelBuffersPTInitial(maxDepthValue)
	c.tile.clearMoreToDraw()
	c.renderObjectList(RmPunchThroughPass0, entry.PunchT.PtrInWords()*4, rect)
	c.tile.peelBuffersPT()
	c.renderParamTags(RmPunchThroughPass0, &c.tile)

	for c.tile.getMoreToDraw() {
		c.tile.clearMoreToDraw()
		c.renderObjectList(RmPunchThroughPassN, entry.PunchT.PtrInWords()*4, rect)
		if !c.tile.getMoreToDraw() {
			break
		}
		c.tile.clearMoreToDraw()
		c.tile.peelBuffersPT()
		c.renderParamTags(RmPunchThroughPass0, &c.tile)
	}

	if !entry.OpaqueMod.Empty() {
		c.renderObjectList(RmModifier, entry.OpaqueMod.PtrInWords()*4, rect)
		c.renderParamTags(RmPunchThroughMV, &c.tile)
	}
	return nil
}

// runTranslucentAutoSort implements the back-to-front depth-peel loop of
// spec.md §4.1 step 5.
func (c *Core) runTranslucentAutoSort(entry RegionArrayEntry, rect TaRect) {
	c.tile.setTagToMax()
	for {
		c.tile.clearMoreToDraw()
		c.tile.peelBuffers(maxDepthValue)
		c.renderObjectList(RmTranslucentAutoSort, entry.Trans.PtrInWords()*4, rect)
		if !entry.TransMod.Empty() {
			c.renderObjectList(RmModifier, entry.TransMod.PtrInWords()*4, rect)
		}
		c.renderParamTags(RmTranslucentAutoSort, &c.tile)
		if !c.tile.getMoreToDraw() {
			break
		}
	}
}

const maxDepthValue = 3.4028235e38 // float32 max, matches C++ FLT_MAX

// renderObjectList walks the object-list entries at base, dispatching
// triangle strips or the 3-bit-typed entries (array/quad/link), per
// spec.md §4.2.
func (c *Core) renderObjectList(mode RenderMode, base uint32, rect TaRect) {
	const maxObjects = 1 << 16
	for i := 0; i < maxObjects; i++ {
		w, warn := c.vram.ReadUint32(base)
		c.warn(warn)
		entry := ObjectListEntry(w)

		if !entry.IsNotTriangleStrip() {
			c.renderTriangleStrip(mode, entry, rect)
			base += 4
			continue
		}

		switch entry.ObjType() {
		case objTypeTriangleArray:
			base = c.renderTriangleArray(mode, entry, base, rect)
		case objTypeQuadArray:
			base = c.renderQuadArray(mode, entry, base, rect)
		case objTypeLink:
			if entry.EndOfList() {
				return
			}
			base = entry.NextBlockPtrInWords() * 4
			continue
		default:
			c.warn(newCoreError(MalformedList, "unknown object-list type %03b at 0x%08x", entry.ObjType(), base))
			base += 4
			continue
		}
		base += 4
	}
	c.warn(newCoreError(MalformedList, "object list did not terminate within %d entries", maxObjects))
}

// renderTriangleStrip decodes up to 8 vertices and emits up to 6 candidate
// triangles per the strip's mask bits, preserving alternating winding
// (spec.md §4.2).
func (c *Core) renderTriangleStrip(mode RenderMode, entry ObjectListEntry, rect TaRect) {
	paramOffs := entry.ParamOffsInWords()
	skip := entry.Skip()
	twoVolumes := entry.Shadow() && !c.regs.FpuShadScaleIntensityShadow()

	paramBase := c.regs.ParamBase()
	addr := paramBase + paramOffs*4
	params, warn := c.readDrawParameters(addr, twoVolumes)
	c.warn(warn)

	vertsAddr := addr + 4*paramBlockHeaderWords(twoVolumes)
	verts, _, werr := c.decodePvrVertices(vertsAddr, skip, twoVolumes, 8, pcwFromIsp(params.Isp))
	c.warn(werr)

	volumeMode := params.Isp.VolumeMode()
	mask := entry.Mask()
	for i := 0; i < 6; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		parity := uint32(i) & 1
		i0 := uint32(i) + parity
		i1 := uint32(i) + 1 - parity
		i2 := uint32(i) + 2
		if int(i2) >= len(verts) {
			continue
		}
		tag := coreTagFromDesc(paramOffs, uint32(i), skip, entry.Shadow(), params.Isp.CacheBypass())
		tri := isoTriangle{
			v:          [3]Vertex{verts[i0], verts[i1], verts[i2]},
			params:     params,
			tag:        tag,
			mode:       mode,
			volumeMode: volumeMode,
		}
		c.rasterizeTriangle(tri, rect, &c.tile)
	}
}

// renderTriangleArray reads a single ISP/TSP/TCW header followed by
// prims+1 independent 3-vertex groups (spec.md §4.2).
func (c *Core) renderTriangleArray(mode RenderMode, entry ObjectListEntry, base uint32, rect TaRect) uint32 {
	paramOffs := entry.ParamOffsInWords()
	skip := entry.Skip()
	twoVolumes := entry.Shadow() && !c.regs.FpuShadScaleIntensityShadow()
	prims := entry.Prims() + 1

	paramBase := c.regs.ParamBase()
	headerAddr := paramBase + paramOffs*4
	params, warn := c.readDrawParameters(headerAddr, twoVolumes)
	c.warn(warn)

	addr := headerAddr + 4*paramBlockHeaderWords(twoVolumes)
	volumeMode := params.Isp.VolumeMode()

	for p := uint32(0); p < prims; p++ {
		verts, next, werr := c.decodePvrVertices(addr, skip, twoVolumes, 3, pcwFromIsp(params.Isp))
		c.warn(werr)

		tag := coreTagFromDesc(paramOffs, p, skip, entry.Shadow(), params.Isp.CacheBypass())
		tri := isoTriangle{v: [3]Vertex{verts[0], verts[1], verts[2]}, params: params, tag: tag, mode: mode, volumeMode: volumeMode}
		c.rasterizeTriangle(tri, rect, &c.tile)

		addr = next
	}
	return base
}

// renderQuadArray reads a single header followed by prims+1 4-vertex
// groups, each rasterized as two triangles sharing the v1-v3 diagonal.
func (c *Core) renderQuadArray(mode RenderMode, entry ObjectListEntry, base uint32, rect TaRect) uint32 {
	paramOffs := entry.ParamOffsInWords()
	skip := entry.Skip()
	twoVolumes := entry.Shadow() && !c.regs.FpuShadScaleIntensityShadow()
	prims := entry.Prims() + 1

	paramBase := c.regs.ParamBase()
	headerAddr := paramBase + paramOffs*4
	params, warn := c.readDrawParameters(headerAddr, twoVolumes)
	c.warn(warn)

	addr := headerAddr + 4*paramBlockHeaderWords(twoVolumes)

	for p := uint32(0); p < prims; p++ {
		verts, next, werr := c.decodePvrVertices(addr, skip, twoVolumes, 4, pcwFromIsp(params.Isp))
		c.warn(werr)

		volumeMode := params.Isp.VolumeMode()
		tagA := coreTagFromDesc(paramOffs, p*2, skip, entry.Shadow(), params.Isp.CacheBypass())
		tagB := coreTagFromDesc(paramOffs, p*2+1, skip, entry.Shadow(), params.Isp.CacheBypass())

		triA := isoTriangle{v: [3]Vertex{verts[0], verts[1], verts[3]}, params: params, tag: tagA, mode: mode, volumeMode: volumeMode}
		triB := isoTriangle{v: [3]Vertex{verts[1], verts[2], verts[3]}, params: params, tag: tagB, mode: mode, volumeMode: volumeMode}
		c.rasterizeTriangle(triA, rect, &c.tile)
		c.rasterizeTriangle(triB, rect, &c.tile)

		addr = next
	}
	return base
}

// RenderParallel renders each disjoint region-array tile on its own
// goroutine via errgroup, joining on the first error a worker's renderRegion
// returns (a ConfigurationUnsupported from writeback). Intended only for workloads where tile writeback regions
// are known disjoint (spec.md §5); Core itself is not safe for concurrent
// Render calls sharing one tile buffer, so each worker gets its own Core
// sharing the same VRAM/Regs.
func RenderParallel(vram *VRAM, regs *Regs, entries []RegionArrayEntry) error {
	var g errgroup.Group
	for _, e := range entries {
		entry := e
		g.Go(func() error {
			worker := NewCore(vram, regs)
			if err := worker.renderRegion(entry); err != nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
