// main.go - pvrdump: renders a VRAM+register snapshot through the CORE
// tile rasterizer and writes the resulting framebuffer out as a PNG.
//
// Grounded on _examples/IntuitionAmiga-IntuitionEngine/cmd/ie32to64/main.go
// for the flag-driven CLI shape, and on video_voodoo.go/voodoo_software.go
// for the optional ebiten preview window layered on a headless backend.

package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sys/cpu"
)

func main() {
	vramPath := flag.String("vram", "", "path to a raw 8 MiB VRAM dump")
	regsPath := flag.String("regs", "", "path to a raw register dump (8192 little-endian uint32 words)")
	outPath := flag.String("out", "out.png", "output PNG path")
	width := flag.Int("width", 640, "framebuffer width in pixels")
	height := flag.Int("height", 480, "framebuffer height in pixels")
	debug := flag.Bool("debug", false, "print a feature-detection banner before rendering")
	preview := flag.Bool("preview", false, "open an ebiten window showing the rendered frame")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pvrdump -vram snapshot.vram -regs snapshot.regs -out frame.png\n\n")
		fmt.Fprintf(os.Stderr, "Renders one frame of a PowerVR-style tile display list and writes\nthe resulting framebuffer as a PNG.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *vramPath == "" || *regsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if *debug {
		fmt.Fprintf(os.Stderr, "pvrdump: AVX2=%v SSE4.2=%v\n", cpu.X86.HasAVX2, cpu.X86.HasSSE42)
	}

	vramBytes, err := os.ReadFile(*vramPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading vram: %v\n", err)
		os.Exit(1)
	}
	regBytes, err := os.ReadFile(*regsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading regs: %v\n", err)
		os.Exit(1)
	}

	vram := NewVRAM()
	copy(vram.Bytes(), vramBytes)

	var regs Regs
	for i := 0; i < len(regs) && (i+1)*4 <= len(regBytes); i++ {
		regs[i] = uint32(regBytes[i*4]) | uint32(regBytes[i*4+1])<<8 | uint32(regBytes[i*4+2])<<16 | uint32(regBytes[i*4+3])<<24
	}

	core := NewCore(vram, &regs)
	core.Logf = func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	if err := core.Render(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range core.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w.Error())
	}

	img := FramebufferImage(vram, &regs, *width, *height)
	if err := writePNG(*outPath, img); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", *outPath, err)
		os.Exit(1)
	}

	if *preview {
		runPreview(img)
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// previewGame is the minimal ebiten.Game that blits a static decoded frame,
// mirroring how video_voodoo.go hands its software backend's output to
// ebiten for display.
type previewGame struct {
	frame *ebiten.Image
}

func (g *previewGame) Update() error { return nil }

func (g *previewGame) Draw(screen *ebiten.Image) {
	op := &ebiten.DrawImageOptions{}
	screen.DrawImage(g.frame, op)
}

func (g *previewGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	b := g.frame.Bounds()
	return b.Dx(), b.Dy()
}

func runPreview(img image.Image) {
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)

	ebiten.SetWindowSize(rgba.Bounds().Dx(), rgba.Bounds().Dy())
	ebiten.SetWindowTitle("pvrdump preview")
	game := &previewGame{frame: ebiten.NewImageFromImage(rgba)}
	if err := ebiten.RunGame(game); err != nil {
		fmt.Fprintf(os.Stderr, "preview error: %v\n", err)
	}
}
