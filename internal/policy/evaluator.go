package policy

import "fmt"

// Evaluator is the single-method abstraction every policy backend
// implements. The gateway ships BuiltinEvaluator as the default and
// leaves a construction-time slot for an external declarative-policy
// engine (out of scope: its embedding is an external collaborator).
// Swapping evaluators is a construction-time choice, not a runtime
// toggle.
type Evaluator interface {
	Evaluate(input Input) (Decision, error)
}

// BuiltinEvaluator is the deterministic rule-based evaluator used as
// the default and for testing.
type BuiltinEvaluator struct {
	// StrictMode flips the otherwise allow-with-warning verdict for an
	// input with no command, file, or network populated into a deny.
	// Addresses the spec's open question about unmatched-request-type
	// semantics.
	StrictMode bool
}

// builtinEvaluatorNotice is appended to every allow decision across all
// three dimensions, the same way the original's stub evaluator appends
// its own caveat to every allow. Unlike that stub, this evaluator is the
// gateway's real policy backend, so the notice reads as an audit hint
// rather than a disclaimer.
const builtinEvaluatorNotice = "Evaluated by the built-in rule-based policy evaluator."

var allowedCommands = map[string]bool{
	"ls": true, "echo": true, "cat": true, "grep": true, "find": true,
	"python": true, "python3": true, "node": true, "npm": true,
}

var dangerousCommands = map[string]bool{
	"rm": true, "dd": true, "wget": true, "curl": true,
	"chmod": true, "chown": true, "sudo": true, "su": true,
}

var readablePaths = []string{"/workspace/", "/tmp/", "/data/public/"}
var writablePaths = []string{"/workspace/", "/tmp/"}
var executablePaths = []string{"/workspace/bin/", "/usr/bin/", "/bin/"}
var deniedPrefixes = []string{"/etc/", "/var/", "/root/", "/home/"}

var allowedHosts = map[string]bool{
	"api.example.com": true, "cdn.example.com": true, "data.example.com": true,
}
var allowedPorts = map[int]bool{80: true, 443: true, 8080: true}
var allowedProtocols = map[string]bool{"tcp": true, "https": true}

func hasPrefixAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(path) >= len(p) && path[:len(p)] == p {
			return true
		}
	}
	return false
}

func isAdmin(roles []string) bool {
	for _, r := range roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// Evaluate implements Evaluator. Command dimension is checked before
// file, file before network; the first populated dimension whose
// decision is deny short-circuits the evaluation.
func (e *BuiltinEvaluator) Evaluate(input Input) (Decision, error) {
	var decisions []Decision
	if input.Command.Name != "" {
		decisions = append(decisions, e.evaluateCommand(input))
	}
	if input.File != nil {
		decisions = append(decisions, e.evaluateFile(*input.File))
	}
	if input.Network != nil {
		decisions = append(decisions, e.evaluateNetwork(*input.Network))
	}
	merged := Decision{Allow: true}
	for _, d := range decisions {
		if !d.Allow {
			return d, nil
		}
		merged.Warnings = append(merged.Warnings, d.Warnings...)
	}
	if len(decisions) > 0 {
		return merged, nil
	}

	if e.StrictMode {
		return Decision{
			Allow:   false,
			Reasons: []string{"unknown request type: no command, file, or network populated"},
		}, nil
	}
	return Decision{
		Allow:    true,
		Warnings: []string{"Unknown request type. Would be denied in production environment."},
	}, nil
}

func (e *BuiltinEvaluator) evaluateCommand(input Input) Decision {
	cmd := input.Command.Name

	if dangerousCommands[cmd] {
		return Decision{
			Allow:   false,
			Reasons: []string{"Command '" + cmd + "' is forbidden as it is dangerous"},
		}
	}

	admin := isAdmin(input.User.Roles)
	if allowedCommands[cmd] || admin {
		var warnings []string
		if admin {
			warnings = append(warnings, "Executing as administrator. All operations are audited.")
		}
		warnings = append(warnings, builtinEvaluatorNotice)
		return Decision{Allow: true, Warnings: warnings}
	}

	return Decision{
		Allow:   false,
		Reasons: []string{"Command '" + cmd + "' is not in the allowed list"},
	}
}

func (e *BuiltinEvaluator) evaluateFile(file FileInfo) Decision {
	if hasPrefixAny(file.Path, deniedPrefixes) {
		return Decision{
			Allow:   false,
			Reasons: []string{"Access to path '" + file.Path + "' is forbidden"},
		}
	}

	var allowed bool
	switch file.Mode {
	case "read":
		allowed = hasPrefixAny(file.Path, readablePaths)
	case "write":
		allowed = hasPrefixAny(file.Path, writablePaths)
	case "execute":
		allowed = hasPrefixAny(file.Path, executablePaths)
	}

	if !allowed {
		return Decision{
			Allow:   false,
			Reasons: []string{"'" + file.Mode + "' access to path '" + file.Path + "' is not allowed"},
		}
	}

	var warnings []string
	if file.Mode == "write" {
		warnings = append(warnings, "File write operations are audited.")
	}
	warnings = append(warnings, builtinEvaluatorNotice)
	return Decision{Allow: true, Warnings: warnings}
}

func (e *BuiltinEvaluator) evaluateNetwork(net NetworkInfo) Decision {
	hostOK := allowedHosts[net.Host]
	portOK := allowedPorts[net.Port]
	protoOK := allowedProtocols[net.Protocol]

	if hostOK && portOK && protoOK {
		return Decision{Allow: true, Warnings: []string{"Network requests are audited.", builtinEvaluatorNotice}}
	}

	var reasons []string
	if !hostOK {
		reasons = append(reasons, "Access to host '"+net.Host+"' is not allowed")
	}
	if !portOK {
		reasons = append(reasons, fmt.Sprintf("Access to port %d is not allowed", net.Port))
	}
	if !protoOK {
		reasons = append(reasons, "Use of protocol '"+net.Protocol+"' is not allowed")
	}
	return Decision{Allow: false, Reasons: reasons}
}
