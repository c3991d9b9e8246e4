package orchestrator

import (
	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
)

// Classify decides the material from one metal reading and one colour reading. Metal wins regardless
// of colour. Every valid reading is metal, wood or plastic
func Classify(metal bool, colour device.Colour, rule ColourRule) sortcell.Material {
	if metal {
		return sortcell.MaterialMetal
	}
	if colour.Green > rule.GreenMin && colour.Blue < rule.BlueMax && colour.Red < rule.RedMax {
		return sortcell.MaterialWood
	}
	return sortcell.MaterialPlastic
}
