package core

import "fmt"

// SpeakerAssistant is the default label the assistant's turns are recorded under.
const SpeakerAssistant = "Glados"

// Turn is one recorded utterance in a conversation.
// The ordered sequence of turns is the conversation's memory and is rendered
// verbatim into prompts, so insertion order matters.
type Turn struct {
	// Speaker is the display name of whoever produced the text.
	Speaker string `json:"speaker"`

	// Text is the utterance itself.
	Text string `json:"text"`
}

// String renders the turn the way it appears in history files and prompts.
func (t Turn) String() string {
	return fmt.Sprintf("%s: %s", t.Speaker, t.Text)
}
