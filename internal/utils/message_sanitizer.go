// Package utils provides small shared helpers.
package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizer strips markup from chat message bodies before they
// enter the message store. Chat messages are plain text; anything that
// looks like HTML in an inbound body is hostile or accidental.
type MessageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer creates a sanitizer with a strict strip-all policy.
func NewMessageSanitizer() *MessageSanitizer {
	return &MessageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize removes all HTML from the input and returns readable plain
// text. Entities introduced by the policy are unescaped so that "&" or
// quotes in ordinary messages survive the round trip.
func (s *MessageSanitizer) Sanitize(input string) string {
	cleaned := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

var defaultSanitizer = NewMessageSanitizer()

// SanitizeMessage applies the default strict policy.
func SanitizeMessage(input string) string {
	return defaultSanitizer.Sanitize(input)
}
