package connection

import (
	"sort"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
)

// HostConnections pairs a host name with the names of its live connections
type HostConnections struct {
	Host        string   `json:"host" yaml:"host"`
	Connections []string `json:"connections" yaml:"connections"`
}

// List reports the live connection handles on each host, sorted by host name
func List(hosts []*inventory.Host) []HostConnections {
	out := make([]HostConnections, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, HostConnections{
			Host:        host.Name,
			Connections: host.ConnectionNames(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Close tears down connections on the given hosts. With no names given every
// connection is closed; otherwise only the named ones. Closing a connection
// a host does not have is a no-op.
func Close(hosts []*inventory.Host, names ...string) error {
	var errs []error
	for _, host := range hosts {
		if len(names) == 0 {
			if err := host.CloseAllConnections(); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, name := range names {
			if err := host.CloseConnection(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return util.CombineErrors(errs...)
}
