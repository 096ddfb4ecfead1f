package classifier

// HostRecord is one host entry of the external scanner's structured output
// (§4.5 input schema), shaped after the parsed Nmap-XML host object the
// scanner itself produces (see original_source/port-scanner-fn's
// CheckTargetsConfig.parse_scan_results, out of scope here but the source
// of this exact field layout).
type HostRecord struct {
	IPAddress  string          `json:"ip_address,omitempty"`
	Hostname   string          `json:"hostname,omitempty"`
	OSInfo     *OSInfo         `json:"os_info,omitempty"`
	Traceroute []TracerouteHop `json:"traceroute,omitempty"`
	Ports      []PortRecord    `json:"ports,omitempty"`
}

// Label returns the identifier findings are named after: the IP address if
// present, else the hostname, else a placeholder.
func (h HostRecord) Label() string {
	if h.IPAddress != "" {
		return h.IPAddress
	}
	if h.Hostname != "" {
		return h.Hostname
	}
	return "unknown-host"
}

type OSInfo struct {
	Name     string   `json:"name,omitempty"`
	Accuracy string   `json:"accuracy,omitempty"`
	Classes  []string `json:"classes,omitempty"`
}

type TracerouteHop struct {
	TTL    int    `json:"ttl,omitempty"`
	IPAddr string `json:"ipaddr,omitempty"`
	RTT    string `json:"rtt,omitempty"`
	Host   string `json:"host,omitempty"`
}

// PortState mirrors db.PortState without importing the db package — the
// Classifier stays a pure, storage-agnostic function (§4.5's contract).
type PortState string

const (
	PortOpen     PortState = "open"
	PortClosed   PortState = "closed"
	PortFiltered PortState = "filtered"
	PortUnknown  PortState = "unknown"
)

type ServiceInfo struct {
	Name    string `json:"name,omitempty"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

type PortRecord struct {
	Port     *int              `json:"port,omitempty"`
	Protocol string            `json:"protocol,omitempty"`
	State    PortState         `json:"state,omitempty"`
	Service  ServiceInfo       `json:"service,omitempty"`
	Scripts  map[string]string `json:"scripts,omitempty"`
}

// Severity is a storage-agnostic mirror of db.Severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is the Classifier's output shape. TargetName identifies which
// Target row the finding belongs to (the host's label) — the caller (the
// Watcher) resolves that to a Target.ID, since the Classifier itself has no
// storage dependency.
type Finding struct {
	TargetName     string
	Name           string
	Description    string
	Recommendation string
	Port           *int
	PortState      *PortState
	Protocol       string
	Service        string
	OS             string
	Traceroute     string
	Severity       Severity
}
