package classifier

import (
	"strings"
	"time"
)

// portRule is a (severity, recommendation) pair keyed by port number.
type portRule struct {
	severity       Severity
	recommendation string
}

// portRules is the table named in §4.5 — the "complete table" the spec's
// excerpt gestures at. Ports not listed fall back to (LOW, "review
// necessity and patch") in classifyPort.
var portRules = map[int]portRule{
	21:   {SeverityMedium, "FTP: switch to SFTP/FTPS"},
	22:   {SeverityMedium, "SSH: key auth, disable root, rate-limit"},
	23:   {SeverityHigh, "Telnet: cleartext; disable"},
	25:   {SeverityMedium, "SMTP: no open relay"},
	80:   {SeverityLow, "HTTP: redirect to HTTPS; HSTS"},
	110:  {SeverityMedium, "POP3: use POP3S"},
	111:  {SeverityMedium, "RPCbind: restrict access, firewall"},
	135:  {SeverityMedium, "MSRPC: restrict exposure to trusted networks"},
	139:  {SeverityMedium, "NetBIOS: disable if not needed"},
	143:  {SeverityMedium, "IMAP: use IMAPS"},
	443:  {SeverityLow, "HTTPS: TLS1.2+ and strong ciphers"},
	445:  {SeverityMedium, "SMB: disable SMBv1"},
	465:  {SeverityLow, "SMTPS: ensure strong TLS config"},
	563:  {SeverityLow, "NNTPS: ensure strong TLS config"},
	587:  {SeverityMedium, "SMTP submission: require auth, TLS"},
	993:  {SeverityLow, "IMAPS: ensure strong TLS config"},
	995:  {SeverityLow, "POP3S: ensure strong TLS config"},
	3389: {SeverityHigh, "RDP: restrict source IPs, MFA"},
}

const (
	unknownPortSeverity       = SeverityLow
	unknownPortRecommendation = "review necessity and patch"
	closedPortRecommendation  = "no service listening"
)

func classifyPort(p PortRecord) (Severity, string) {
	if p.State == PortClosed {
		return SeverityInfo, closedPortRecommendation
	}
	if p.Port == nil {
		return unknownPortSeverity, unknownPortRecommendation
	}
	if rule, ok := portRules[*p.Port]; ok {
		return rule.severity, rule.recommendation
	}
	return unknownPortSeverity, unknownPortRecommendation
}

// scriptRule is the §9-redesigned variant: either a fixed (severity, reco)
// pair or a function of the script's text output. Modeled as an interface
// with two implementations rather than a tagged union/isinstance branch,
// the idiomatic Go rendition of that redesign note.
type scriptRule interface {
	apply(text string) (Severity, string)
}

type staticScriptRule struct {
	severity       Severity
	recommendation string
}

func (r staticScriptRule) apply(string) (Severity, string) {
	return r.severity, r.recommendation
}

type funcScriptRule struct {
	fn func(text string) (Severity, string)
}

func (r funcScriptRule) apply(text string) (Severity, string) {
	return r.fn(text)
}

const defaultScriptRecommendation = "script ran; review output"

var scriptRules = map[string]scriptRule{
	"ssl-cert":           funcScriptRule{fn: classifySSLCert},
	"ssl-enum-ciphers":   funcScriptRule{fn: classifySSLEnumCiphers},
	"http-sql-injection": funcScriptRule{fn: classifyHTTPSQLInjection},
	"http-title":         staticScriptRule{SeverityInfo, "informational; review page title for disclosure"},
	"banner":             staticScriptRule{SeverityInfo, "informational; review service banner for version disclosure"},
}

func classifyScript(scriptID, text string) (Severity, string) {
	if rule, ok := scriptRules[scriptID]; ok {
		return rule.apply(text)
	}
	return SeverityInfo, defaultScriptRecommendation
}

// certTimeLayouts covers the nmap ssl-cert script's "Not valid before/after"
// timestamp forms, including the one missing a :ss component (§4.5).
var certTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseCertTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range certTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func classifySSLCert(text string) (Severity, string) {
	var before, after time.Time
	var haveBefore, haveAfter bool

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Not valid before:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Not valid before:"))
			if t, ok := parseCertTime(raw); ok {
				before, haveBefore = t, true
			}
		case strings.HasPrefix(line, "Not valid after:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Not valid after:"))
			if t, ok := parseCertTime(raw); ok {
				after, haveAfter = t, true
			}
		}
	}

	if !haveBefore || !haveAfter {
		return SeverityInfo, "review manually"
	}

	now := time.Now().UTC()
	if now.After(after) {
		return SeverityHigh, "certificate expired"
	}
	if after.Sub(now) < 30*24*time.Hour {
		return SeverityMedium, "certificate expiring soon"
	}
	if !now.Before(before) && !now.After(after) {
		return SeverityInfo, "certificate valid"
	}
	return SeverityInfo, "certificate valid"
}

func classifySSLEnumCiphers(text string) (Severity, string) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "rc4") || strings.Contains(lower, "3des") || strings.Contains(lower, "md5") {
		return SeverityMedium, "weak cipher suite offered (RC4/3DES/MD5); disable"
	}
	return SeverityLow, "review offered cipher suites"
}

func classifyHTTPSQLInjection(text string) (Severity, string) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "vulnerable") {
		return SeverityCritical, "confirmed SQL injection; remediate immediately"
	}
	if strings.Contains(lower, "possible") {
		return SeverityHigh, "possible SQL injection; investigate and remediate"
	}
	return SeverityHigh, "no vulnerability found"
}

// osRules matches outdated OS families by case-insensitive substring.
// Unmatched OS names are treated as current (INFO).
var osRules = []struct {
	substr         string
	recommendation string
}{
	{"windows xp", "end-of-life OS: upgrade immediately"},
	{"windows 2000", "end-of-life OS: upgrade immediately"},
	{"windows server 2003", "end-of-life OS: upgrade immediately"},
	{"windows vista", "end-of-life OS: upgrade immediately"},
	{"windows 7", "end-of-life OS: upgrade immediately"},
}

func classifyOS(osInfo *OSInfo) (Severity, string) {
	if osInfo == nil || osInfo.Name == "" {
		return SeverityInfo, "OS not fingerprinted"
	}
	lower := strings.ToLower(osInfo.Name)
	for _, rule := range osRules {
		if strings.Contains(lower, rule.substr) {
			return SeverityHigh, rule.recommendation
		}
	}
	return SeverityInfo, "OS identified; no further action required"
}
