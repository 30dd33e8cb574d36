package fallback

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dataset.yaml
var embeddedDataset []byte

// ErrInvalidDataset is returned when a dataset document is unusable.
var ErrInvalidDataset = errors.New("invalid fallback dataset")

// WorkspaceStats summarises a workspace.
type WorkspaceStats struct {
	Hosts      int `yaml:"hosts" json:"hosts"`
	Services   int `yaml:"services" json:"services"`
	TotalVulns int `yaml:"total_vulns" json:"total_vulns"`
}

// Workspace is a workspace record as the dashboard expects it.
type Workspace struct {
	ID          int            `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Active      bool           `yaml:"active" json:"active"`
	Customer    string         `yaml:"customer" json:"customer"`
	Description string         `yaml:"description" json:"description"`
	Stats       WorkspaceStats `yaml:"stats" json:"stats"`
}

// Vulnerability is a vulnerability record.
type Vulnerability struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Severity    string `yaml:"severity" json:"severity"`
	Status      string `yaml:"status" json:"status"`
	HostID      int    `yaml:"host_id" json:"host_id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ServerInfo describes the (simulated) upstream server.
type ServerInfo struct {
	Version string `yaml:"version" json:"version"`
	Server  string `yaml:"server" json:"server"`
	Status  string `yaml:"status" json:"status"`
}

type document struct {
	Info            ServerInfo                 `yaml:"info"`
	Workspaces      []Workspace                `yaml:"workspaces"`
	Vulnerabilities map[string][]Vulnerability `yaml:"vulnerabilities"`
}

// Dataset is an immutable canned dataset. It is safe for concurrent use.
type Dataset struct {
	info            ServerInfo
	workspaces      []Workspace
	vulnerabilities map[string][]Vulnerability
}

// Default returns the dataset embedded in the binary.
func Default() (*Dataset, error) {
	return Parse(embeddedDataset)
}

// Load reads a dataset from a YAML file. An empty path loads the embedded
// dataset.
func Load(path string) (*Dataset, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a YAML dataset document.
func Parse(data []byte) (*Dataset, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	seen := make(map[string]struct{}, len(doc.Workspaces))
	for i, ws := range doc.Workspaces {
		name := strings.TrimSpace(ws.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: workspace %d has no name", ErrInvalidDataset, i)
		}
		if strings.Contains(name, "/") {
			return nil, fmt.Errorf("%w: workspace name %q contains '/'", ErrInvalidDataset, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate workspace %q", ErrInvalidDataset, name)
		}
		seen[name] = struct{}{}
	}

	vulns := make(map[string][]Vulnerability, len(doc.Vulnerabilities))
	for name, list := range doc.Vulnerabilities {
		vulns[name] = append([]Vulnerability(nil), list...)
	}

	return &Dataset{
		info:            doc.Info,
		workspaces:      append([]Workspace(nil), doc.Workspaces...),
		vulnerabilities: vulns,
	}, nil
}

// Workspaces returns all workspaces in dataset order.
func (d *Dataset) Workspaces() []Workspace {
	out := make([]Workspace, len(d.workspaces))
	copy(out, d.workspaces)
	return out
}

// Workspace returns the named workspace.
func (d *Dataset) Workspace(name string) (Workspace, bool) {
	for _, ws := range d.workspaces {
		if ws.Name == name {
			return ws, true
		}
	}
	return Workspace{}, false
}

// Vulnerabilities returns the vulnerabilities of a workspace. Unknown
// workspaces yield an empty, non-nil list.
func (d *Dataset) Vulnerabilities(workspace string) []Vulnerability {
	list := d.vulnerabilities[workspace]
	out := make([]Vulnerability, len(list))
	copy(out, list)
	return out
}

// Info returns the server info record.
func (d *Dataset) Info() ServerInfo {
	return d.info
}
