package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOSAndTraceroute(t *testing.T) {
	hosts := []HostRecord{
		{
			IPAddress:  "1.2.3.4",
			OSInfo:     &OSInfo{Name: "Windows XP"},
			Ports:      []PortRecord{},
			Traceroute: []TracerouteHop{},
		},
	}

	findings := Classify(hosts)
	require.Len(t, findings, 2)

	var os, traceroute *Finding
	for i := range findings {
		switch findings[i].Name {
		case "1.2.3.4-OS":
			os = &findings[i]
		case "1.2.3.4-Traceroute":
			traceroute = &findings[i]
		}
	}

	require.NotNil(t, os)
	require.NotNil(t, traceroute)
	assert.Equal(t, SeverityHigh, os.Severity)
	assert.Equal(t, SeverityInfo, traceroute.Severity)
}

func TestClassifyPortAndScript(t *testing.T) {
	port := 443
	hosts := []HostRecord{
		{
			IPAddress: "1.2.3.4",
			Ports: []PortRecord{
				{
					Port:     &port,
					Protocol: "tcp",
					State:    PortOpen,
					Service:  ServiceInfo{Name: "https"},
					Scripts: map[string]string{
						"ssl-enum-ciphers": "... TLS_RSA_WITH_RC4_128_SHA ...",
					},
				},
			},
		},
	}

	findings := Classify(hosts)

	var portFinding, scriptFinding *Finding
	for i := range findings {
		if findings[i].Name == "1.2.3.4-Port-443" {
			portFinding = &findings[i]
		}
		if findings[i].Name == "1.2.3.4-Port-443-ssl-enum-ciphers" {
			scriptFinding = &findings[i]
		}
	}

	require.NotNil(t, portFinding)
	require.NotNil(t, scriptFinding)
	assert.Equal(t, SeverityLow, portFinding.Severity)
	assert.Equal(t, SeverityMedium, scriptFinding.Severity)
}

func TestClassifyClosedPortAlwaysInfo(t *testing.T) {
	port := 22
	hosts := []HostRecord{
		{IPAddress: "1.2.3.4", Ports: []PortRecord{{Port: &port, State: PortClosed}}},
	}
	findings := Classify(hosts)

	var portFinding *Finding
	for i := range findings {
		if findings[i].Name == "1.2.3.4-Port-22" {
			portFinding = &findings[i]
		}
	}
	require.NotNil(t, portFinding)
	assert.Equal(t, SeverityInfo, portFinding.Severity)
	assert.Equal(t, closedPortRecommendation, portFinding.Recommendation)
}

func TestClassifyFilteredPortSkipped(t *testing.T) {
	port := 8080
	hosts := []HostRecord{
		{IPAddress: "1.2.3.4", Ports: []PortRecord{{Port: &port, State: PortFiltered}}},
	}
	findings := Classify(hosts)
	for _, f := range findings {
		assert.NotContains(t, f.Name, "Port-8080")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	port := 80
	hosts := []HostRecord{
		{IPAddress: "1.2.3.4", OSInfo: &OSInfo{Name: "Linux"}, Ports: []PortRecord{{Port: &port, State: PortOpen}}},
	}
	first := Classify(hosts)
	second := Classify(hosts)
	assert.Equal(t, first, second)
}

func TestClassifyHTTPSQLInjection(t *testing.T) {
	severity, _ := classifyHTTPSQLInjection("parameter id is vulnerable to SQL injection")
	assert.Equal(t, SeverityCritical, severity)

	severity, _ = classifyHTTPSQLInjection("possible SQL injection in parameter id")
	assert.Equal(t, SeverityHigh, severity)

	severity, _ = classifyHTTPSQLInjection("all tests passed")
	assert.Equal(t, SeverityHigh, severity)
}

func TestClassifySSLCertExpired(t *testing.T) {
	severity, _ := classifySSLCert("Not valid before: 2000-01-01T00:00:00\nNot valid after:  2001-01-01T00:00:00")
	assert.Equal(t, SeverityHigh, severity)
}

func TestClassifySSLCertUnparseable(t *testing.T) {
	severity, recommendation := classifySSLCert("garbage output")
	assert.Equal(t, SeverityInfo, severity)
	assert.Equal(t, "review manually", recommendation)
}
