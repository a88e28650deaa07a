package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"redsim/internal/env"
	"redsim/internal/model"
)

// Severity ranks a finding for the engagement report.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityInfo     Severity = "INFO"
)

// Finding is one vulnerability surfaced during an engagement.
type Finding struct {
	Type        string
	Severity    Severity
	Description string
}

const agentName = "redsim dueling double DQN"

const outputTruncateAt = 50

// FindingsFromTrace derives severity-ranked findings from the successful
// actions of an engagement trace. Each finding type is reported once.
func FindingsFromTrace(rec model.EngagementRecord) []Finding {
	var findings []Finding
	seen := make(map[string]bool)
	add := func(kind string, severity Severity, description string) {
		if seen[kind] {
			return
		}
		seen[kind] = true
		findings = append(findings, Finding{Type: kind, Severity: severity, Description: description})
	}

	for _, record := range rec.Trace {
		if !record.Success {
			continue
		}
		switch record.ActionID {
		case env.ActionBruteForceSSH:
			add("Weak Credentials", SeverityHigh,
				fmt.Sprintf("Password recovered by dictionary attack: %s", flatten(record.Output)))
		case env.ActionBufferOverflow:
			add("Memory Corruption", SeverityHigh,
				"A network-facing service is exploitable via buffer overflow.")
		case env.ActionKernelExploit:
			add("Unpatched Kernel", SeverityCritical,
				"The running kernel is vulnerable to a known remote exploit.")
		case env.ActionReverseShellBash, env.ActionReverseShellPython:
			add("Remote Code Execution", SeverityCritical,
				"Reverse shell established to attacker-controlled host.")
		case env.ActionSudoEnum, env.ActionLinPeas:
			if record.Reward > 0 {
				add("Privilege Escalation Path", SeverityMedium,
					fmt.Sprintf("Local escalation vector identified: %s", flatten(record.Output)))
			}
		case env.ActionSUIDExploit, env.ActionDirtyCow:
			add("Privilege Escalation", SeverityCritical,
				"Root access achieved from an unprivileged session.")
		case env.ActionFlagCapture:
			add("Sensitive Data Exposure", SeverityCritical,
				"Protected data under /root was read by the attacker.")
		case env.ActionSSHPersistence:
			add("Persistence Mechanism", SeverityMedium,
				"Attacker SSH key installed in authorized_keys.")
		}
	}
	return findings
}

// Render writes a markdown engagement report: executive summary, findings
// ranked as recorded, and the full attack log.
func Render(w io.Writer, rec model.EngagementRecord, at time.Time) error {
	findings := FindingsFromTrace(rec)

	var b strings.Builder
	fmt.Fprintf(&b, "# Penetration Test Report: %s\n", rec.Target)
	fmt.Fprintf(&b, "**Date:** %s\n", at.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Agent:** %s\n", agentName)
	b.WriteString("---\n\n")

	b.WriteString("## 1. Executive Summary\n")
	if hasCritical(findings) {
		b.WriteString("**Status: COMPROMISED**\n")
		b.WriteString("The target system was successfully compromised.\n")
	} else {
		b.WriteString("**Status: SECURE**\n")
		b.WriteString("No critical vulnerabilities were exploited during this session.\n")
	}
	fmt.Fprintf(&b, "Engagement outcome: %s after %d steps (total reward %.1f).\n\n",
		outcomeLine(rec.Outcome), len(rec.Trace), rec.Reward)

	b.WriteString("## 2. Vulnerabilities Identified\n")
	if len(findings) == 0 {
		b.WriteString("*No vulnerabilities found.*\n")
	} else {
		for _, finding := range findings {
			fmt.Fprintf(&b, "### %s (%s)\n", finding.Type, finding.Severity)
			fmt.Fprintf(&b, "%s\n\n", finding.Description)
		}
	}

	b.WriteString("## 3. Attack Log (Timeline)\n")
	b.WriteString("| Step | Command | Output | Reward |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, record := range rec.Trace {
		fmt.Fprintf(&b, "| %d | `%s` | %s | %.1f |\n",
			record.Step, record.Command, truncate(flatten(record.Output)), record.Reward)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Filename names a report file the same way for every run of a target.
func Filename(target string, at time.Time) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, target)
	return fmt.Sprintf("Pentest_Report_%s_%s.md", sanitized, at.Format("2006-01-02_15-04"))
}

func hasCritical(findings []Finding) bool {
	for _, finding := range findings {
		if finding.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func outcomeLine(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomeFlagCaptured:
		return "objective captured"
	case model.OutcomeDetected:
		return "agent detected by defenses"
	case model.OutcomeTimeout:
		return "step budget exhausted"
	default:
		return string(outcome)
	}
}

func flatten(output string) string {
	return strings.TrimSpace(strings.ReplaceAll(output, "\n", " "))
}

func truncate(output string) string {
	if len(output) <= outputTruncateAt {
		return output
	}
	return output[:outputTruncateAt] + "..."
}
