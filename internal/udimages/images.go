package udimages

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Largeur maximale des vignettes de journaux
const ThumbnailWidth = 320

// Color représente une couleur RGB
type Color struct {
	R, G, B int
}

// Fonction pour redimensionner l'image
func Resize(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxWidth {
		return img
	}

	// garder le ratio, au moins 1px de haut
	ratio := float64(maxWidth) / float64(width)
	newHeight := max(int(float64(height)*ratio), 1)

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}

// Thumbnail décode une image PNG/JPEG/GIF, la réduit et la réencode en PNG
func Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image illisible: %w", err)
	}
	if maxWidth <= 0 {
		maxWidth = ThumbnailWidth
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, Resize(img, maxWidth)); err != nil {
		return nil, fmt.Errorf("encodage png (%s): %w", format, err)
	}
	return buf.Bytes(), nil
}

// ToHex convertit une couleur en hexadécimal
func (c Color) ToHex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Lighten éclaircit une couleur par un pourcentage
func (c Color) Lighten(percent float64) Color {
	factor := percent / 100.0
	return Color{
		R: c.R + int(float64(255-c.R)*factor),
		G: c.G + int(float64(255-c.G)*factor),
		B: c.B + int(float64(255-c.B)*factor),
	}
}

// HexToColor convertit un hex en Color, ok=false si le format est invalide
func HexToColor(hex string) (Color, bool) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return Color{}, false
	}

	r, err1 := strconv.ParseUint(hex[0:2], 16, 8)
	g, err2 := strconv.ParseUint(hex[2:4], 16, 8)
	b, err3 := strconv.ParseUint(hex[4:6], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return Color{}, false
	}
	return Color{int(r), int(g), int(b)}, true
}

// palette par défaut des journaux sans couleur configurée
var palette = []string{"#1f6feb", "#d97706", "#059669", "#dc2626", "#7c3aed", "#0891b2", "#be185d", "#4d7c0f"}

// JournalColors retourne la couleur d'un journal et sa variante claire
// utilisée pour les fonds de graphiques
func JournalColors(hex string, id uint) (string, string) {
	c, ok := HexToColor(hex)
	if !ok {
		c, _ = HexToColor(palette[int(id)%len(palette)])
	}
	return c.ToHex(), c.Lighten(70).ToHex()
}
