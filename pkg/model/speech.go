package model

// Utterance is one piece of text handed to a speech engine
type Utterance struct {
	Text  string
	Voice string
	Rate  float64
	Pitch float64
}

// Transcript is one recognition result. Interim results may be revised by later ones.
type Transcript struct {
	Text  string
	Final bool
}
