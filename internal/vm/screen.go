package vm

import "iter"

// Screen is the 64x32 monochrome display, row-major, one byte (0 or 1) per pixel.
type Screen [ScreenWidth * ScreenHeight]uint8

// Pixel reports whether the pixel at (x, y) is set. Coordinates outside the
// display are never set.
func (s *Screen) Pixel(x, y int) bool {
	if x < 0 || x >= ScreenWidth || y < 0 || y >= ScreenHeight {
		return false
	}
	return s[y*ScreenWidth+x] != 0
}

// Row returns row y of the display.
func (s *Screen) Row(y int) []uint8 {
	return s[y*ScreenWidth : (y+1)*ScreenWidth]
}

// Rows iterates over the display rows from top to bottom.
func (s *Screen) Rows() iter.Seq2[int, []uint8] {
	return func(yield func(int, []uint8) bool) {
		for y := 0; y < ScreenHeight; y++ {
			if !yield(y, s.Row(y)) {
				return
			}
		}
	}
}

func (s *Screen) clear() {
	*s = Screen{}
}

// xor toggles the pixel at (x, y) and reports whether it was switched off.
func (s *Screen) xor(x, y int) bool {
	i := y*ScreenWidth + x
	s[i] ^= 1
	return s[i] == 0
}
