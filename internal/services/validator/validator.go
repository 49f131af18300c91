package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/minebot-bridge-go/internal/models"
)

var fencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

func stripCodeFences(text string) string {
	if match := fencePattern.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(text)
}

// ParseAndValidate turns a raw agent reply into one Action. Anything that
// fails the structured parse degrades to a chat action carrying the raw text;
// a parsed action naming a disallowed command or material degrades to an
// error action. Nothing here executes anything.
func ParseAndValidate(raw string) models.Action {
	stripped := stripCodeFences(raw)

	action, err := models.DecodeAction([]byte(stripped))
	if err != nil {
		return models.ChatAction{Text: strings.TrimSpace(raw)}
	}

	switch a := action.(type) {
	case models.CommandAction:
		if !IsCommandWhitelisted(a.Command) {
			return models.ErrorAction{
				Text: fmt.Sprintf("Command not allowed: %s", BaseCommand(a.Command)),
			}
		}
	case models.BuildAction:
		if !IsMaterialValid(a.Material) {
			return models.ErrorAction{
				Text: fmt.Sprintf("Unknown material: %s", a.Material),
			}
		}
	case models.WorldEditAction:
		// All-or-nothing: one disallowed command rejects the whole batch.
		for _, cmd := range a.Commands {
			if !IsCommandWhitelisted(cmd) {
				return models.ErrorAction{
					Text: fmt.Sprintf("Command not allowed: %s", BaseCommand(cmd)),
				}
			}
		}
	}

	return action
}
