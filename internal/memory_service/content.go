package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"strings"

	"google.golang.org/genai"
)

const (
	roleUser  genai.Role = genai.RoleUser
	roleModel genai.Role = genai.RoleModel
)

// contentText joins the text parts of c; other parts are not remembered.
func contentText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p == nil || p.Thought {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func textContent(text string, role genai.Role) *genai.Content {
	return genai.NewContentFromText(text, role)
}
