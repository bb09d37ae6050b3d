package inventory

import (
	"fmt"
	"os"
	"sort"

	"github.com/aryankumar/drover/internal/util"
	"gopkg.in/yaml.v3"
)

// Group holds connection parameters shared by its member hosts
type Group struct {
	Username    string                 `yaml:"username,omitempty"`
	Password    string                 `yaml:"password,omitempty"`
	KeyFile     string                 `yaml:"key_file,omitempty"`
	Platform    string                 `yaml:"platform,omitempty"`
	Port        int                    `yaml:"port,omitempty"`
	Data        map[string]interface{} `yaml:"data,omitempty"`
	Credentials map[string]Credentials `yaml:"credentials,omitempty"`
}

// Inventory is the set of hosts a run can target, together with the groups
// and defaults their parameters are inherited from.
//
// Parameter resolution order is host, then groups in listed order, then
// defaults; the first value found wins. Credential sets resolve the same way
// per set name.
type Inventory struct {
	Hosts    map[string]*Host  `yaml:"hosts"`
	Groups   map[string]*Group `yaml:"groups,omitempty"`
	Defaults *Group            `yaml:"defaults,omitempty"`
}

// Load reads and parses an inventory YAML file
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory file %q: %w", path, err)
	}
	return inv, nil
}

// Parse parses inventory YAML and resolves host parameter inheritance
func Parse(data []byte) (*Inventory, error) {
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory: %w", err)
	}

	if len(inv.Hosts) == 0 {
		return nil, fmt.Errorf("inventory defines no hosts")
	}

	for name, host := range inv.Hosts {
		if host == nil {
			return nil, fmt.Errorf("host %q has no definition", name)
		}
		host.Name = name
		if err := inv.resolve(host); err != nil {
			return nil, err
		}
		if host.Hostname == "" {
			return nil, util.NewValidationError("hostname", nil,
				fmt.Sprintf("host %q has no hostname", name))
		}
	}

	return inv, nil
}

// resolve merges group and defaults parameters into the host.
// Host values always win; groups are consulted in listed order.
func (inv *Inventory) resolve(host *Host) error {
	sources := make([]*Group, 0, len(host.Groups)+1)
	for _, groupName := range host.Groups {
		group, ok := inv.Groups[groupName]
		if !ok {
			return fmt.Errorf("host %q references unknown group %q", host.Name, groupName)
		}
		sources = append(sources, group)
	}
	if inv.Defaults != nil {
		sources = append(sources, inv.Defaults)
	}

	for _, src := range sources {
		if host.Username == "" {
			host.Username = src.Username
		}
		if host.Password == "" {
			host.Password = src.Password
		}
		if host.KeyFile == "" {
			host.KeyFile = src.KeyFile
		}
		if host.Platform == "" {
			host.Platform = src.Platform
		}
		if host.Port == 0 {
			host.Port = src.Port
		}
		for key, value := range src.Data {
			if host.Data == nil {
				host.Data = make(map[string]interface{})
			}
			if _, ok := host.Data[key]; !ok {
				host.Data[key] = value
			}
		}
		for name, creds := range src.Credentials {
			if host.Credentials == nil {
				host.Credentials = make(map[string]Credentials)
			}
			if _, ok := host.Credentials[name]; !ok {
				host.Credentials[name] = creds
			}
		}
	}

	return nil
}

// HostList returns all hosts sorted by name
func (inv *Inventory) HostList() []*Host {
	hosts := make([]*Host, 0, len(inv.Hosts))
	for _, host := range inv.Hosts {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts
}

// Filter returns the hosts whose names match any of the glob patterns,
// sorted by name. An empty pattern list matches every host.
func (inv *Inventory) Filter(patterns ...string) []*Host {
	hosts := make([]*Host, 0, len(inv.Hosts))
	for name, host := range inv.Hosts {
		if util.MatchAnyGlob(patterns, name) {
			hosts = append(hosts, host)
		}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts
}
