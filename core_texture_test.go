package main

import "testing"

func TestMipDimHalvesPerLevel(t *testing.T) {
	c := NewCore(NewVRAM(), &Regs{})
	c.textureDim = 64

	unmipped := Tcw(0)
	if got := c.mipDim(unmipped, Tsp(uint32(3)<<8)); got != 64 {
		t.Fatalf("mipDim with MipMapped=false = %d, want base dim 64", got)
	}

	mipped := Tcw(1 << 31)
	if got := c.mipDim(mipped, Tsp(0)); got != 64 {
		t.Fatalf("mipDim level 0 = %d, want 64", got)
	}
	if got := c.mipDim(mipped, Tsp(uint32(2)<<8)); got != 16 {
		t.Fatalf("mipDim level 2 = %d, want 16", got)
	}
}

func TestUnpackArgb565FullWhite(t *testing.T) {
	got := unpackArgb565(0xFFFF)
	if got[3] != 1 {
		t.Fatalf("unpackArgb565 alpha = %v, want 1 (format carries no alpha)", got[3])
	}
	if got[0] < 0.9 || got[1] < 0.9 || got[2] < 0.9 {
		t.Fatalf("unpackArgb565(0xFFFF) = %v, want near-white", got)
	}
}

func TestYuv422GrayWhenChromaNeutral(t *testing.T) {
	got := yuv422(200, 128, 128)
	if got[0] != got[1] || got[1] != got[2] {
		t.Fatalf("yuv422 with neutral chroma = %v, want gray (r==g==b)", got)
	}
}
