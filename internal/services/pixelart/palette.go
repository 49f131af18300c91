package pixelart

// The 16 concrete colors used for quantization. Declaration order is the tie
// breaker when two palette colors are equally close, so keep it stable.
type paletteColor struct {
	block   string
	r, g, b int
}

var palette = []paletteColor{
	{"white_concrete", 207, 213, 214},
	{"orange_concrete", 224, 97, 1},
	{"magenta_concrete", 169, 48, 159},
	{"light_blue_concrete", 36, 137, 199},
	{"yellow_concrete", 241, 175, 21},
	{"lime_concrete", 94, 169, 25},
	{"pink_concrete", 214, 101, 143},
	{"gray_concrete", 55, 58, 62},
	{"light_gray_concrete", 125, 125, 115},
	{"cyan_concrete", 21, 119, 136},
	{"purple_concrete", 100, 32, 156},
	{"blue_concrete", 45, 47, 143},
	{"brown_concrete", 96, 60, 32},
	{"green_concrete", 73, 91, 36},
	{"red_concrete", 142, 33, 33},
	{"black_concrete", 8, 10, 15},
}

// closestBlock returns the palette block with minimum squared RGB distance.
func closestBlock(r, g, b int) string {
	best := palette[0].block
	bestDist := 1 << 30
	for _, p := range palette {
		dr, dg, db := r-p.r, g-p.g, b-p.b
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = p.block
		}
	}
	return best
}
