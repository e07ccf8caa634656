package resource

import "github.com/enescakir/emoji"

// WheelSlot is one segment of the chance wheel's point side.
type WheelSlot struct {
	Points int    `json:"points"`
	Label  string `json:"label"`
}

// WheelSlots is the 10-slot weighted payout table: four ways to land +1,
// three +2, two +3 and a single +5 jackpot.
var WheelSlots = []WheelSlot{
	{Points: 1, Label: emoji.Star.String() + " +1"},
	{Points: 1, Label: emoji.Star.String() + " +1"},
	{Points: 1, Label: emoji.Star.String() + " +1"},
	{Points: 1, Label: emoji.Star.String() + " +1"},
	{Points: 2, Label: emoji.GlowingStar.String() + " +2"},
	{Points: 2, Label: emoji.GlowingStar.String() + " +2"},
	{Points: 2, Label: emoji.GlowingStar.String() + " +2"},
	{Points: 3, Label: emoji.Fire.String() + " +3"},
	{Points: 3, Label: emoji.Fire.String() + " +3"},
	{Points: 5, Label: emoji.Trophy.String() + " +5 JACKPOT"},
}

// Penalty is a chance-wheel punishment template; Questions is how many
// progression steps it sticks around for.
type Penalty struct {
	Description string `json:"description"`
	Questions   int    `json:"questions"`
}

var Penalties = []Penalty{
	{Description: emoji.ZipperMouthFace.String() + " Answer only in a whisper", Questions: 2},
	{Description: emoji.Snail.String() + " Buzz with your weak hand", Questions: 3},
	{Description: emoji.Ghost.String() + " Speak in the third person", Questions: 2},
	{Description: emoji.GameDie.String() + " Stand up for your answers", Questions: 3},
	{Description: emoji.SeeNoEvilMonkey.String() + " Keep your eyes closed between questions", Questions: 2},
}
