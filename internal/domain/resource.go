package domain

import (
	"time"
)

// Resource types.
const (
	ResourceCheatsheet    = "cheatsheet"
	ResourceExploit       = "exploit"
	ResourceDocumentation = "documentation"
	ResourceScreenshot    = "screenshot"
)

// Resource is typed reference material attached to a session, tagged for
// later retrieval.
type Resource struct {
	ResourceID int64     `json:"resource_id"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"resource_type"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	URL        string    `json:"url,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidResourceType reports whether t is a known resource type.
func ValidResourceType(t string) bool {
	switch t {
	case ResourceCheatsheet, ResourceExploit, ResourceDocumentation, ResourceScreenshot:
		return true
	}
	return false
}
