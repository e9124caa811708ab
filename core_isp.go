// core_isp.go - ISP rasterizer: triangle/quad setup, half-space edge
// rasterization, depth test, stencil update, tag write.
//
// Grounded on _examples/original_source/crates/refsw2r/src/tile.rs
// (PlaneStepper3, pixel_flush_isp, rasterize_triangle) and on
// _examples/IntuitionAmiga-IntuitionEngine/voodoo_software.go's
// rasterizeTriangle / edgeFunction / depthTest, whose bounding-box +
// barycentric-weight structure this follows even though the PVR path
// interpolates a depth plane directly rather than per-vertex Z.

package main

// planeStepper3 evaluates a plane fit through three (x, y, value) samples,
// mirroring refsw2r::tile.rs::PlaneStepper3.
type planeStepper3 struct {
	ddx, ddy, c float32
}

func setupPlaneStepper3(x0, y0, v0, x1, y1, v1, x2, y2, v2, invArea float32) planeStepper3 {
	aY := (v1 - v0) * (x2 - x0)
	bY := (v2 - v0) * (x1 - x0)
	ddy := (aY - bY) * invArea

	aX := (v1 - v0) * (y2 - y0)
	bX := (v2 - v0) * (y1 - y0)
	ddx := (bX - aX) * invArea

	c := v0 - ddx*x0 - ddy*y0
	return planeStepper3{ddx: ddx, ddy: ddy, c: c}
}

func (p planeStepper3) ip(x, y float32) float32 {
	return p.ddx*x + p.ddy*y + p.c
}

func edgeFunction(ax, ay, bx, by, cx, cy float32) float32 {
	return (cx-ax)*(by-ay) - (cy-ay)*(bx-ax)
}

const (
	cullNone = iota
	cullCW
	cullCCW
	_ // reserved, treated as cullNone
)

// depthTest implements the eight ISP depth modes; values are inverse-W so
// "less" means nearer in display convention (spec.md §4.3).
func depthTest(mode uint32, z, ref float32) bool {
	switch mode {
	case 0:
		return false
	case 1:
		return z < ref
	case 2:
		return z == ref
	case 3:
		return z <= ref
	case 4:
		return z > ref
	case 5:
		return z != ref
	case 6:
		return z >= ref
	case 7:
		return true
	default:
		return false
	}
}

// isoTriangle is the per-primitive working set the ISP rasterizer consumes:
// three vertices (the fourth, for quads, is folded into a second call) plus
// the resolved instruction words and the tag to stamp on covered pixels.
type isoTriangle struct {
	v          [3]Vertex
	params     DrawParametersEx
	tag        uint32
	mode       RenderMode
	volumeMode uint32
}

// rasterizeTriangle walks the bounding box of tri clipped to rect, testing
// each pixel center (x+0.5, y+0.5) (biased by HalfOffset) for coverage via
// edge functions, then dispatches pixelFlushIsp on hits.
func (c *Core) rasterizeTriangle(tri isoTriangle, rect TaRect, tile *TileBuffers) {
	v0, v1, v2 := tri.v[0], tri.v[1], tri.v[2]

	minX := int(min3(v0.X, v1.X, v2.X))
	maxX := int(max3(v0.X, v1.X, v2.X)) + 1
	minY := int(min3(v0.Y, v1.Y, v2.Y))
	maxY := int(max3(v0.Y, v1.Y, v2.Y)) + 1

	if minX < rect.Left {
		minX = rect.Left
	}
	if minY < rect.Top {
		minY = rect.Top
	}
	if maxX > rect.Right {
		maxX = rect.Right
	}
	if maxY > rect.Bottom {
		maxY = rect.Bottom
	}
	if minX >= maxX || minY >= maxY {
		return
	}

	area := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, v2.X, v2.Y)
	if area == 0 {
		c.warn(newCoreError(NumericDomain, "degenerate triangle, area=0"))
		return
	}

	cull := tri.params.Isp.CullMode()
	if tri.mode == RmModifier {
		cull = cullNone
	}
	if cull == cullCW && area > 0 {
		return
	}
	if cull == cullCCW && area < 0 {
		return
	}
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}
	invArea := 1 / area

	invW := setupPlaneStepper3(v0.X, v0.Y, v0.Z, v1.X, v1.Y, v1.Z, v2.X, v2.Y, v2.Z, invArea)

	half := float32(0.5)
	if c.regs.HalfOffset() {
		half = 0.0
	}

	for y := minY; y < maxY; y++ {
		py := float32(y) + half
		for x := minX; x < maxX; x++ {
			px := float32(x) + half

			w0 := edgeFunction(v1.X, v1.Y, v2.X, v2.Y, px, py)
			w1 := edgeFunction(v2.X, v2.Y, v0.X, v0.Y, px, py)
			w2 := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := invW.ip(px, py)
			c.pixelFlushIsp(tri, x, y, z, tile)
		}
	}
}

// pixelFlushIsp applies the render-mode-specific depth test and buffer
// writes, mirroring refsw2r::tile.rs::pixel_flush_isp. PT modes accept only
// z < depth_ref; pass 0 also applies ISP.DepthMode against depth_test, and
// pass N instead requires z > depth_test. Autosort accepts only z strictly
// between depth_ref and depth_test.
func (c *Core) pixelFlushIsp(tri isoTriangle, x, y int, z float32, tile *TileBuffers) {
	ty := y - (y/tileDim)*tileDim
	tx := x - (x/tileDim)*tileDim

	depthMode := tri.params.Isp.DepthMode()

	switch tri.mode {
	case RmOpaque:
		if !depthTest(depthMode, z, tile.DepthTest[ty][tx]) {
			return
		}
		if !tri.params.Isp.ZWriteDis() {
			tile.DepthTest[ty][tx] = z
		}
		tile.Tag[ty][tx] = tri.tag

	case RmPunchThroughPass0, RmPunchThroughPassN:
		if z >= tile.DepthRef[ty][tx] {
			return
		}
		if tri.mode == RmPunchThroughPassN && z <= tile.DepthTest[ty][tx] {
			return
		}
		if !depthTest(depthMode, z, tile.DepthTest[ty][tx]) && tri.mode == RmPunchThroughPass0 {
			return
		}
		tile.DepthTest[ty][tx] = z
		tile.Tag[ty][tx] = tri.tag
		tile.MoreToDraw = true

	case RmPunchThroughMV:
		// tag resolution only; ISP does not write buffers for this mode.

	case RmTranslucentAutoSort:
		if !(z > tile.DepthRef[ty][tx] && z < tile.DepthTest[ty][tx]) {
			return
		}
		if z == tile.DepthTest[ty][tx] && tri.tag <= tile.Tag[ty][tx] {
			return
		}
		tile.DepthTest[ty][tx] = z
		tile.Tag[ty][tx] = tri.tag
		tile.MoreToDraw = true

	case RmTranslucentPreSort:
		if !depthTest(depthMode, z, tile.DepthTest[ty][tx]) {
			return
		}
		tile.Tag[ty][tx] = tri.tag
		c.shadePresortPixel(tri, x, y, tile)

	case RmModifier:
		tile.Stencil[ty][tx] |= stencilCurrent
		switch tri.volumeMode {
		case 1:
			tile.Stencil[ty][tx] |= stencilOr
		case 2:
			if tile.Stencil[ty][tx]&stencilCurrent == 0 {
				tile.Stencil[ty][tx] &^= stencilAnd
			}
		}
	}
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
