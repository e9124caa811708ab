// core_stencil.go - stencil summarizer: folds per-pixel modifier-volume
// results into the tile's OR/AND accumulators.
//
// Grounded on _examples/original_source/crates/refsw2r/src/tile.rs
// (summarize_stencil_or / summarize_stencil_and) and
// refsw2-cpp/ffi/refsw_lists.cc's call sites, which invoke the OR fold for
// VolumeMode=1 (inside-last) and the AND fold for VolumeMode=2
// (outside-last) at each nested modifier-volume boundary.

package main

// summarizeStencil applies the fold appropriate to volumeMode, a no-op for
// volumeMode 0 (used for interior boundaries of a nested volume that do not
// yet resolve inside/outside).
func (t *TileBuffers) summarizeStencil(volumeMode uint32) {
	switch volumeMode {
	case 1:
		t.summarizeStencilOr()
	case 2:
		t.summarizeStencilAnd()
	}
}

// insideVolume reports whether a pixel with the given stencil byte is inside
// the fully folded modifier volume: OR bit set, and AND bit set or no AND
// phase ran.
func insideVolume(stencil uint8, hadAndPhase bool) bool {
	or := stencil&stencilOr != 0
	and := stencil&stencilAnd != 0
	if !hadAndPhase {
		return or
	}
	return or && and
}
