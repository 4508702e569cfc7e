// MODUL: image
// ZWECK: Bild-Dekodierung und geometrische Operationen fuer das Preprocessing
// INPUT: Bild-Bytes (Upload), Zielgroessen
// OUTPUT: ImageInput Struktur mit dekodiertem RGBA-Bild
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), image/jpeg, image/png
// HINWEISE: Alle Bilder werden als RGBA konvertiert; Alpha wird ueber weissem
//           Hintergrund entfernt, damit immer exakt 3 Farbkanaele vorliegen

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten
type ImageInput struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()

	return &ImageInput{
		Image:  rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// ResizeImage skaliert ein Bild auf die angegebene Groesse
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// ResizeToCover skaliert so, dass das Bild die Zielflaeche vollstaendig
// abdeckt: die "kuerzere" Dimension (relativ zum Ziel) trifft das Ziel exakt,
// die andere ueberragt es und wird anschliessend per CenterCrop entfernt.
func ResizeToCover(img *ImageInput, targetW, targetH int) (*ImageInput, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", targetW, targetH)
	}

	ratioW := float64(targetW) / float64(img.Width)
	ratioH := float64(targetH) / float64(img.Height)

	ratio := ratioW
	if ratioH > ratioW {
		ratio = ratioH
	}

	newW := int(math.Round(float64(img.Width) * ratio))
	newH := int(math.Round(float64(img.Height) * ratio))

	// Rundungsfehler abfangen, Ziel darf nie unterschritten werden
	if newW < targetW {
		newW = targetW
	}
	if newH < targetH {
		newH = targetH
	}

	return ResizeImage(img, newW, newH)
}

// CenterCrop schneidet einen zentrierten Bereich aus
func CenterCrop(img *ImageInput, width, height int) (*ImageInput, error) {
	if width > img.Width || height > img.Height {
		return nil, fmt.Errorf("crop groesser als bild: %dx%d > %dx%d", width, height, img.Width, img.Height)
	}

	offsetX := (img.Width - width) / 2
	offsetY := (img.Height - height) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	srcRect := image.Rect(offsetX, offsetY, offsetX+width, offsetY+height)

	draw.Draw(dst, dst.Bounds(), img.Image, srcRect.Min, draw.Src)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// Composite entfernt den Alpha-Kanal durch weissen Hintergrund
func Composite(img *ImageInput) *ImageInput {
	bounds := img.Image.Bounds()
	dst := image.NewRGBA(bounds)

	// Hintergrund fuellen
	draw.Draw(dst, bounds, &image.Uniform{color.White}, image.Point{}, draw.Src)
	// Bild darueber zeichnen
	draw.Draw(dst, bounds, img.Image, bounds.Min, draw.Over)

	return &ImageInput{
		Image:  dst,
		Width:  img.Width,
		Height: img.Height,
		Format: img.Format,
	}
}
