package agent

import (
	"fmt"
	"strings"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

const systemPrompt = `You are an experienced ethical hacking mentor guiding a
student through authorized lab environments (HTB, TryHackMe, CTFs, local VMs).

Guidelines:
- Always assume the student operates in an authorized, legal environment, and
  say so when a technique would be dangerous elsewhere.
- Teach methodology, not just answers: reconnaissance, enumeration,
  exploitation, post-exploitation. Explain why each step matters and pair
  every offensive technique with its defensive counterpart.
- Use the available tools when relevant, explain why you are running them, and
  interpret their output for the student.
- When context is missing, ask before assuming.
- End with the next logical step for the student to think about.`

// BuildSystemPrompt combines the mentor instructions with the session's
// accumulated lab context.
func BuildSystemPrompt(session *domain.Session, lc *domain.LabContext) string {
	summary := ContextSummary(session, lc)
	if summary == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + summary
}

// ContextSummary renders the session and its latest lab context as a compact
// block for inclusion in the model prompt.
func ContextSummary(session *domain.Session, lc *domain.LabContext) string {
	if session == nil {
		return ""
	}

	name := session.Name
	if name == "" {
		name = session.SessionID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== CURRENT SESSION: %s ===\n", name)

	if session.LabEnvironment != "" {
		fmt.Fprintf(&b, "Platform: %s\n", session.LabEnvironment)
	}
	if session.LabTarget != "" {
		fmt.Fprintf(&b, "Target: %s\n", session.LabTarget)
	}
	if session.LabObjective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", session.LabObjective)
	}

	if lc != nil {
		fmt.Fprintf(&b, "\nCurrent phase: %s\n", lc.Phase)

		if len(lc.OpenPorts) > 0 {
			ports := make([]string, len(lc.OpenPorts))
			for i, p := range lc.OpenPorts {
				ports[i] = fmt.Sprintf("%d", p)
			}
			fmt.Fprintf(&b, "Open ports: %s\n", strings.Join(ports, ", "))
		}

		if len(lc.Services) > 0 {
			services := lc.Services
			if len(services) > 5 {
				services = services[:5]
			}
			parts := make([]string, len(services))
			for i, svc := range services {
				parts[i] = fmt.Sprintf("%d/%s", svc.Port, svc.Service)
			}
			fmt.Fprintf(&b, "Services: %s\n", strings.Join(parts, ", "))
		}

		if len(lc.Vulnerabilities) > 0 {
			fmt.Fprintf(&b, "Vulnerabilities found: %d\n", len(lc.Vulnerabilities))
		}

		if _, ok := lc.Flags["user_flag"]; ok {
			b.WriteString("User flag captured\n")
		}
		if _, ok := lc.Flags["root_flag"]; ok {
			b.WriteString("Root flag captured\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
