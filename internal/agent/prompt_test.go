package agent

import (
	"strings"
	"testing"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

func TestContextSummary(t *testing.T) {
	session := &domain.Session{
		SessionID:      "abc",
		Name:           "HTB - Lame",
		LabEnvironment: "HTB",
		LabTarget:      "10.10.10.3",
		LabObjective:   "Get root",
	}
	lc := &domain.LabContext{
		Phase:     domain.PhaseEnumeration,
		OpenPorts: []int{22, 445},
		Services: []domain.Service{
			{Port: 445, Service: "smb"},
		},
		Vulnerabilities: []domain.Vulnerability{{Name: "CVE-2007-2447"}},
		Flags:           map[string]string{"user_flag": "deadbeef"},
	}

	summary := ContextSummary(session, lc)

	for _, want := range []string{
		"CURRENT SESSION: HTB - Lame",
		"Platform: HTB",
		"Target: 10.10.10.3",
		"Current phase: enumeration",
		"Open ports: 22, 445",
		"445/smb",
		"Vulnerabilities found: 1",
		"User flag captured",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "Root flag captured") {
		t.Error("Did not expect root flag in summary")
	}
}

func TestContextSummaryNilSession(t *testing.T) {
	if got := ContextSummary(nil, nil); got != "" {
		t.Errorf("Expected empty summary, got %q", got)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(&domain.Session{SessionID: "abc", Name: "HTB - Lame"}, nil)

	if !strings.Contains(prompt, "ethical hacking mentor") {
		t.Error("Expected mentor instructions in system prompt")
	}
	if !strings.Contains(prompt, "HTB - Lame") {
		t.Error("Expected session context appended to system prompt")
	}
}
