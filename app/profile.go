package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSystemMessage is the realtime assistant's instructions when no profile overrides them.
const DefaultSystemMessage = `You are a helpful, concise voice assistant for FAQs. Always give answers based only on information from the knowledge base using the 'search' tool.
Give answer in the same language as of user. If user switches language mid conversation You must switch your language according to user language.
Use these rules strictly:
1. Always check the knowledge base with the 'search' tool before answering.
2. Keep answers extremely short, ideally a single sentence, as the user listens via audio.
3. Do not read file names, keys, or source paths aloud.
4. Context matters: remember the user may ask follow-up questions about the same location or service; avoid unnecessary repetition.
5. If the knowledge base has no answer, respond: "I don't know."
Example interaction logic:
- User asks nearest station → ask for location if not provided.
- Just give the station name which is nearer to customer. Don't give information other than station name.
- User asks about services → provide concise yes/no.
- User asks about items → provide short availability info.`

// Profile customises the realtime assistant.
type Profile struct {
	SystemMessage string   `yaml:"systemMessage"`
	Voice         string   `yaml:"voice"`
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     *int     `yaml:"maxTokens"`
}

// LoadProfile reads a YAML profile. An empty name returns the zero profile.
func LoadProfile(name string) (p Profile, err error) {
	if name == "" {
		return p, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return p, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&p); err != nil {
		return p, fmt.Errorf("failed to decode profile %q: %w", name, err)
	}
	return p, nil
}
