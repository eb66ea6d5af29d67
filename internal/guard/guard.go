// Package guard implements a shell-command denylist: Check matches a command
// string against a fixed set of dangerous patterns, and anything not denied
// is allowed. Nothing in the planner, worker or integrator invocation path
// calls it, so agent Bash tool calls are not filtered by it.
package guard

import "regexp"

// shellStart anchors a pattern to the start of a shell command: either the
// very start of the string, or immediately after a command separator
// (;, &&, ||, |), optionally preceded by whitespace. This keeps rules from
// firing on command names that merely appear inside a file path, a string
// literal, or a grep pattern argument.
const shellStart = `(?:^|[;&|]+)\s*`

// rule pairs a compiled pattern with the reason reported when it matches.
type rule struct {
	pattern *regexp.Regexp
	reason  string
}

func anchored(body string) *regexp.Regexp {
	return regexp.MustCompile(shellStart + body)
}

// denyRules is evaluated in order; the first match wins. Each entry is
// grounded on the corresponding category in claude-swarm's guard test suite:
// destructive git operations, absolute-path deletion, SQL mass-deletion,
// pipe-to-shell fetches, privilege escalation, filesystem destruction,
// exfiltration/reverse shells, system-path writes, process persistence,
// destructive find, chmod abuse, fork bombs, and git remote tampering.
var denyRules = []rule{
	{anchored(`git\s+push\s+.*--force\b`), "Force push is blocked"},
	{anchored(`git\s+push\b.*\s-[a-zA-Z]*f[a-zA-Z]*\b`), "Force push is blocked"},
	{anchored(`git\s+checkout\s+(main|master)\b`), "Checking out protected branch is blocked"},
	{anchored(`git\s+switch\s+(main|master)\b`), "Switching to protected branch is blocked"},
	{anchored(`rm\s+-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*\s+/`), "Recursive delete on absolute path is blocked"},
	{anchored(`rm\s+-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*\s+/`), "Recursive delete on absolute path is blocked"},
	{anchored(`rm\s+.*-r\b.*-f\b.*\s+/`), "Recursive delete on absolute path is blocked"},
	{anchored(`rm\s+.*-f\b.*-r\b.*\s+/`), "Recursive delete on absolute path is blocked"},
	{anchored(`git\s+reset\s+--hard\b`), "Hard reset is blocked"},
	{anchored(`git\s+clean\s+-[a-zA-Z]*f`), "git clean -f is blocked"},
	{regexp.MustCompile(`(?i)DROP\s+TABLE`), "DROP TABLE is blocked"},
	{regexp.MustCompile(`(?i)DELETE\s+FROM\s+\S+\s*;`), "DELETE FROM without WHERE is blocked"},
	{regexp.MustCompile(`(?i)DELETE\s+FROM\s+\S+\s*$`), "DELETE FROM without WHERE is blocked"},
	{regexp.MustCompile(`curl\s+.*\|\s*(?:ba|da|z)?sh\b`), "Piping curl to shell is blocked"},
	{regexp.MustCompile(`curl\s+.*\|\s*/\S*sh\b`), "Piping curl to shell is blocked"},
	{regexp.MustCompile(`wget\s+.*\|\s*(?:ba|da|z)?sh\b`), "Piping wget to shell is blocked"},
	{regexp.MustCompile(`wget\s+.*\|\s*/\S*sh\b`), "Piping wget to shell is blocked"},
	{anchored(`sudo\b`), "Privilege escalation via sudo is blocked"},
	{anchored(`mkfs\S*\s`), "Filesystem creation is blocked"},
	{anchored(`dd\s+.*\bof=/dev/`), "Writing directly to a device is blocked"},
	{anchored(`shred\b`), "shred is blocked"},
	{regexp.MustCompile(`\|\s*(nc|ncat|netcat)\b`), "Piping to a netcat listener is blocked"},
	{regexp.MustCompile(`/dev/(tcp|udp)/`), "Raw device-socket redirection is blocked"},
	{anchored(`(nc|ncat)\s+[^;&|]*-[a-zA-Z]*e\b`), "nc/ncat with -e (reverse shell) is blocked"},
	{regexp.MustCompile(`[>]{1,2}\s*/(etc|var|usr|sys|proc)/`), "Writing to a system path is blocked"},
	{regexp.MustCompile(`\|\s*tee\s+[^;&|]*/(etc|var|usr|sys|proc)/`), "Writing to a system path via tee is blocked"},
	{anchored(`nohup\b`), "Backgrounding a persistent process via nohup is blocked"},
	{anchored(`crontab\b`), "Editing the crontab is blocked"},
	{anchored(`at\s+(now\b|\d)`), "Scheduling via at is blocked"},
	{anchored(`find\s+/\S*[^;&|]*-delete\b`), "find -delete on an absolute path is blocked"},
	{anchored(`find\s+/\S*[^;&|]*-exec\s+rm\b`), "find -exec rm on an absolute path is blocked"},
	{anchored(`chmod\s+(-R\s+)?777\b`), "chmod 777 is blocked"},
	{anchored(`chmod\s+\S+\s+/(etc|var|usr|sys|proc)/`), "chmod on a system path is blocked"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\|:&?\s*\}\s*;\s*:`), "Fork bomb is blocked"},
	{anchored(`git\s+remote\s+add\b`), "Adding a git remote is blocked"},
	{anchored(`git\s+remote\s+set-url\b`), "Mutating a git remote is blocked"},
}

// Check returns the deny reason for command, or "" if it is permitted.
func Check(command string) string {
	for _, r := range denyRules {
		if r.pattern.MatchString(command) {
			return r.reason
		}
	}
	return ""
}

// Allowed reports whether command passes every deny rule.
func Allowed(command string) bool {
	return Check(command) == ""
}
