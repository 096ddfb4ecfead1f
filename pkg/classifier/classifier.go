// Package classifier implements the Finding Classifier (§4.5): a pure
// function turning an external scanner's structured host output into typed
// findings with severity and a remediation recommendation.
//
// Grounded on original_source/port-scanner-fn/check_targets_utils.py for
// the host/port/script input shape and on db/issue.go's severity vocabulary
// and formatting conventions for the output shape.
package classifier

import (
	"encoding/json"
	"fmt"
)

// Classify turns a slice of host records into findings. It is deterministic:
// the same input always produces the same finding set (§4.5, §8).
func Classify(hosts []HostRecord) []Finding {
	var findings []Finding

	for _, host := range hosts {
		label := host.Label()

		findings = append(findings, osFinding(host, label))
		findings = append(findings, tracerouteFinding(host, label))

		for _, port := range host.Ports {
			if port.State != PortOpen && port.State != PortClosed {
				continue
			}
			findings = append(findings, portFinding(host, label, port))

			for scriptID, text := range port.Scripts {
				findings = append(findings, scriptFinding(label, port, scriptID, text))
			}
		}
	}

	return findings
}

// ParseHostRecords decodes the raw scan_results:{S} JSON blob (§6.3) into
// host records. A decode failure is returned as the underlying JSON error,
// unwrapped — the Watcher logs it and records zero findings, never a crash.
func ParseHostRecords(raw []byte) ([]HostRecord, error) {
	var hosts []HostRecord
	if err := json.Unmarshal(raw, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

func osFinding(host HostRecord, label string) Finding {
	severity, recommendation := classifyOS(host.OSInfo)
	description := "no OS fingerprint available"
	osName := ""
	if host.OSInfo != nil {
		osName = host.OSInfo.Name
		description = fmt.Sprintf("fingerprinted operating system: %s", osName)
	}
	return Finding{
		TargetName:     label,
		Name:           label + "-OS",
		Description:    description,
		Recommendation: recommendation,
		OS:             osName,
		Severity:       severity,
	}
}

func tracerouteFinding(host HostRecord, label string) Finding {
	traceroute, _ := json.Marshal(host.Traceroute)
	return Finding{
		TargetName:     label,
		Name:           label + "-Traceroute",
		Description:    fmt.Sprintf("%d traceroute hops recorded", len(host.Traceroute)),
		Recommendation: "informational; no action required",
		Traceroute:     string(traceroute),
		Severity:       SeverityInfo,
	}
}

func portFinding(host HostRecord, label string, port PortRecord) Finding {
	severity, recommendation := classifyPort(port)
	state := port.State
	portNum := port.Port

	serviceDesc := port.Service.Name
	if port.Service.Product != "" {
		serviceDesc = fmt.Sprintf("%s (%s %s)", serviceDesc, port.Service.Product, port.Service.Version)
	}

	name := fmt.Sprintf("%s-Port", label)
	if portNum != nil {
		name = fmt.Sprintf("%s-Port-%d", label, *portNum)
	}

	return Finding{
		TargetName:     label,
		Name:           name,
		Description:    fmt.Sprintf("port %v/%s is %s, service: %s", portNumOrUnknown(portNum), port.Protocol, state, serviceDesc),
		Recommendation: recommendation,
		Port:           portNum,
		PortState:      &state,
		Protocol:       port.Protocol,
		Service:        serviceDesc,
		Severity:       severity,
	}
}

func scriptFinding(label string, port PortRecord, scriptID, text string) Finding {
	severity, recommendation := classifyScript(scriptID, text)
	name := fmt.Sprintf("%s-Script-%s", label, scriptID)
	if port.Port != nil {
		name = fmt.Sprintf("%s-Port-%d-%s", label, *port.Port, scriptID)
	}
	return Finding{
		TargetName:     label,
		Name:           name,
		Description:    text,
		Recommendation: recommendation,
		Port:           port.Port,
		Protocol:       port.Protocol,
		Severity:       severity,
	}
}

func portNumOrUnknown(p *int) string {
	if p == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *p)
}
