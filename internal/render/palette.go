package render

// Palettes run from empty to fully covered.
var (
	defaultPalette = []rune(" .,:-;+=*%#@")
	boxPalette     = []rune(" ░▒▓█")
	linesPalette   = []rune(" `.-=+*/|#")
	sparkPalette   = []rune(" ´`^\"~:;*+×•¤°oO@#█")
	braillePalette = []rune(" ⠁⠃⠇⡇⡏⡟⡿⣿")
)

const brailleBase rune = 0x2800

// brailleBits maps a dot inside a cell (row, column) to its braille bit.
var brailleBits = [dotsY][dotsX]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Palette returns characters used for coverage mapping.
func Palette(name string) []rune {
	switch name {
	case "box":
		return boxPalette
	case "lines":
		return linesPalette
	case "spark":
		return sparkPalette
	case "braille":
		return braillePalette
	default:
		return defaultPalette
	}
}

// PaletteNames returns all palette identifiers.
func PaletteNames() []string {
	return []string{"default", "box", "lines", "spark", "braille"}
}

func knownPalette(name string) bool {
	for _, n := range PaletteNames() {
		if n == name {
			return true
		}
	}
	return false
}
