package server

import "example.com/edidgen/internal/timing"

func edidMode(w, h, r int) timing.Mode {
	return timing.Mode{Width: w, Height: h, Refresh: r}
}
