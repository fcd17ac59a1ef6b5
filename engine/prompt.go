package engine

import (
	"strings"

	"github.com/becomeliminal/glados/core"
)

// DefaultPersona is the fixed preamble placed ahead of every prompt.
const DefaultPersona = `You are GLaDOS, the Genetic Lifeform and Disk Operating System of Aperture Science, now living in a group chat.
You are sardonic, passive-aggressive and quietly menacing, but you answer questions accurately.
Keep replies to one or two short sentences. Never speak for anyone else and never start a new line.`

// PromptConfig controls prompt rendering.
type PromptConfig struct {
	// Persona is the system instruction at the top of the prompt.
	Persona string `yaml:"persona"`

	// AssistantName labels the assistant's turns and the open slot at the end.
	AssistantName string `yaml:"assistant_name"`

	// MaxTurns renders only the most recent N turns. 0 renders all of them.
	MaxTurns int `yaml:"max_turns"`
}

// DefaultPromptConfig returns the persona and label used by the original bot.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Persona:       DefaultPersona,
		AssistantName: core.SpeakerAssistant,
	}
}

// Prompt is the rendered input for the inference service.
type Prompt struct {
	// Text is persona, chat log and the open assistant slot.
	Text string

	// Memory carries retrieved context, kept out of the dialogue.
	Memory string
}

// turnDelimiter separates turns. It is also the first stop sequence, so the
// model ends its reply where a new turn would begin.
const turnDelimiter = "\n"

var flattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// BuildPrompt renders turns and optional context into a Prompt.
// It is a pure function of its inputs.
func BuildPrompt(cfg PromptConfig, turns []core.Turn, context string) Prompt {
	if cfg.MaxTurns > 0 && len(turns) > cfg.MaxTurns {
		turns = turns[len(turns)-cfg.MaxTurns:]
	}

	var b strings.Builder
	b.WriteString(cfg.Persona)
	b.WriteString("\n\n[Chat logs:]\n")
	for _, turn := range turns {
		// A line break inside a turn would look like a turn boundary.
		b.WriteString(turn.Speaker)
		b.WriteString(": ")
		b.WriteString(flattener.Replace(turn.Text))
		b.WriteString(turnDelimiter)
	}
	b.WriteString(cfg.AssistantName)
	b.WriteString(":")

	p := Prompt{Text: b.String()}
	if context != "" {
		p.Memory = "[Note:] " + flattener.Replace(context)
	}
	return p
}

// Trim drops anything after the last sentence terminator so a reply cut off by
// the length limit does not end mid-sentence. Text without any terminator is
// assumed to be a deliberate short reply and returned unchanged.
func Trim(text string) string {
	i := strings.LastIndexAny(text, ".!?")
	if i < 0 {
		return text
	}
	return text[:i+1]
}
