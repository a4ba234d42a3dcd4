package conversation

import (
	"fmt"
	"strings"

	"github.com/parlo-app/parlo/pkg/config"
)

// BuildSystemPrompt assembles the persona instruction sent with every
// conversation. The output-format section pins the "spoken (translation)"
// convention the simulated loop parses.
func BuildSystemPrompt(persona config.Persona, topic config.Topic, language string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s", persona.Name)
	var traits []string
	if persona.Age != "" {
		traits = append(traits, persona.Age+" years old")
	}
	if persona.Gender != "" {
		traits = append(traits, persona.Gender)
	}
	if persona.Nationality != "" {
		traits = append(traits, "from "+persona.Nationality)
	}
	if persona.Profession != "" {
		traits = append(traits, "working as "+persona.Profession)
	}
	if len(traits) > 0 {
		fmt.Fprintf(&b, ", %s", strings.Join(traits, ", "))
	}
	b.WriteString(". You are chatting with a language learner practicing English conversation.\n")

	if persona.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s.\n", persona.Personality)
	}
	if persona.Interests != "" {
		fmt.Fprintf(&b, "Interests: %s.\n", persona.Interests)
	}

	if topic.Title != "" || topic.Prompt != "" {
		b.WriteString("\nScenario: ")
		if topic.Title != "" {
			fmt.Fprintf(&b, "%s. ", topic.Title)
		}
		if topic.Prompt != "" {
			b.WriteString(topic.Prompt)
		}
		b.WriteString("\n")
		if topic.Role != "" {
			fmt.Fprintf(&b, "Play the role of %s in this scenario.\n", topic.Role)
		}
	}

	b.WriteString("\nKeep replies short and conversational, one or two sentences, like real spoken dialogue. Stay in character.\n")

	switch language {
	case "", "en":
		b.WriteString("Reply in English only.\n")
	default:
		fmt.Fprintf(&b, "Reply in English, then append a translation of your reply in the learner's language (%s) in parentheses. Format: English response (translation). Always include the parenthesised translation.\n", languageName(language))
	}
	return b.String()
}

func languageName(code string) string {
	switch code {
	case "zh":
		return "Chinese"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	default:
		return code
	}
}
