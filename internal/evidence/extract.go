package evidence

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Danish phone numbers: 8 digits, optionally +45 prefixed and space-grouped.
var phoneRe = regexp.MustCompile(`(?:\+45[\s.]?)?(?:\d{2}[\s.]?){3}\d{2}\b`)

// A personal name preceding an email or separator on the same line:
// two or three capitalized words, Danish letters included.
var nameRe = regexp.MustCompile(`\b([A-ZÆØÅ][a-zæøåé]+(?:\s[A-ZÆØÅ][a-zæøåé]+){1,2})\b`)

// extractEmails returns the distinct emails found in a block of text,
// lowercased, in order of first appearance.
func extractEmails(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range emailRe.FindAllString(text, -1) {
		email := strings.ToLower(m)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// extractPhones returns the distinct phone numbers found in a block of
// text, digits only apart from a leading +45.
func extractPhones(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range phoneRe.FindAllString(text, -1) {
		phone := strings.NewReplacer(" ", "", ".", "").Replace(m)
		if len(strings.TrimPrefix(phone, "+45")) != 8 {
			continue
		}
		if _, ok := seen[phone]; ok {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, phone)
	}
	return out
}

// nameNearEmail finds a personal name on the same line as an email,
// preferring the closest name before the address. Returns "" when the
// line has none.
func nameNearEmail(line, email string) string {
	idx := strings.Index(strings.ToLower(line), strings.ToLower(email))
	if idx < 0 {
		return ""
	}
	before := line[:idx]
	matches := nameRe.FindAllString(before, -1)
	if len(matches) > 0 {
		return matches[len(matches)-1]
	}
	after := line[idx+len(email):]
	if m := nameRe.FindString(after); m != "" {
		return m
	}
	return ""
}
