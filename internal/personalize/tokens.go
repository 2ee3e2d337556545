package personalize

import (
	"regexp"

	"mailwave/pkg/models"
)

const defaultName = "there"

// tokenPattern accepts any attribute key without braces. Surrounding
// whitespace is not part of the key.
var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Personalize substitutes {{name}}, {{email}}, {{phone}} and {{<attribute>}}
// tokens. Unknown tokens are left as written.
func Personalize(content string, c *models.Contact) string {
	if c == nil || !containsToken(content) {
		return content
	}
	return tokenPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := tokenPattern.FindStringSubmatch(match)[1]
		if v, ok := tokenValue(key, c); ok {
			return v
		}
		return match
	})
}

func containsToken(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}

func tokenValue(key string, c *models.Contact) (string, bool) {
	switch key {
	case "name":
		if c.Name == "" {
			return defaultName, true
		}
		return c.Name, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	}
	if v, ok := c.CustomAttributes.Get(key); ok {
		return v.Text(), true
	}
	return "", false
}
