package ui

import "github.com/Shopify/touchbuttons/internal/layout"

const smallScreenMaxAxis = 500

// JumpButtonLayout places the button container where the stock jump button sits
// for a viewport of the given size.
func JumpButtonLayout(viewport layout.Vector2) layout.ButtonConfig {
	small := viewport.MinAxis() <= smallScreenMaxAxis
	side := 120.0
	if small {
		side = 70
	}

	x := layout.UDim{Scale: 1, Offset: -(side*1.5 - 10)}
	y := layout.UDim{Scale: 1, Offset: -side * 1.75}
	if small {
		y = layout.UDim{Scale: 1, Offset: -side - 20}
	}
	return layout.ButtonConfig{
		Position: layout.UDim2{X: x, Y: y},
		Size:     layout.FromOffset(side, side),
	}
}
