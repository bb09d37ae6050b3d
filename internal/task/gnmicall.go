package task

import (
	"context"
	"fmt"
	"sort"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmic/pkg/api"
	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/aryankumar/drover/internal/connection"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// defaultGNMIEncoding is used for value payloads unless overridden
const defaultGNMIEncoding = "json_ietf"

// GNMISetOp is one modification in a gNMI Set request
type GNMISetOp struct {
	// Action is one of update, replace or delete
	Action string `yaml:"action" json:"action"`

	// Path is the gNMI path the operation targets
	Path string `yaml:"path" json:"path"`

	// Value is the JSON payload for update and replace operations, typically
	// built with the Body helper
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// gnmiConn fetches the host's gNMI handle
func gnmiConn(host *inventory.Host) (*connection.GNMIConn, error) {
	raw, ok := host.Connection("gnmi")
	if !ok {
		return nil, fmt.Errorf("host %q has no gnmi connection", host.Name)
	}
	conn, ok := raw.(*connection.GNMIConn)
	if !ok {
		return nil, fmt.Errorf("host %q: gnmi connection has unexpected type %T", host.Name, raw)
	}
	return conn, nil
}

// GNMIGet builds a task issuing a gNMI Get for the given paths. The result
// payload maps each requested path to the response rendered as JSON; the
// optional filter, when non-empty, is a gjson path applied to each response
// so callers receive only the value they care about.
func GNMIGet(paths []string, filter string) *runner.Task {
	return &runner.Task{
		Name:        "gnmi-get",
		Connections: []string{"gnmi"},
		Params: runner.Params{
			"paths":  paths,
			"filter": filter,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			conn, err := gnmiConn(host)
			if err != nil {
				return nil, err
			}

			paths, _ := params["paths"].([]string)
			filter, _ := params["filter"].(string)

			opts := []api.GNMIOption{api.Encoding(defaultGNMIEncoding)}
			for _, p := range paths {
				opts = append(opts, api.Path(p))
			}
			req, err := api.NewGetRequest(opts...)
			if err != nil {
				return nil, fmt.Errorf("building gnmi get request: %w", err)
			}

			resp, err := conn.Target().Get(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("gnmi get on host %q: %w", host.Name, err)
			}

			rendered, err := protojson.Marshal(resp)
			if err != nil {
				return nil, fmt.Errorf("rendering gnmi response: %w", err)
			}

			if filter != "" {
				return gjson.GetBytes(rendered, filter).Value(), nil
			}
			return gjson.ParseBytes(rendered).Value(), nil
		},
	}
}

// GNMISet builds a task issuing a gNMI Set with the given operations, applied
// in order within a single request
func GNMISet(ops []GNMISetOp) *runner.Task {
	return &runner.Task{
		Name:        "gnmi-set",
		Connections: []string{"gnmi"},
		Params: runner.Params{
			"ops": ops,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			conn, err := gnmiConn(host)
			if err != nil {
				return nil, err
			}

			ops, _ := params["ops"].([]GNMISetOp)
			var opts []api.GNMIOption
			for _, op := range ops {
				switch op.Action {
				case "update":
					opts = append(opts, api.Update(api.Path(op.Path), api.Value(op.Value, defaultGNMIEncoding)))
				case "replace":
					opts = append(opts, api.Replace(api.Path(op.Path), api.Value(op.Value, defaultGNMIEncoding)))
				case "delete":
					opts = append(opts, api.Delete(op.Path))
				default:
					return nil, fmt.Errorf("unknown gnmi set action %q", op.Action)
				}
			}

			req, err := api.NewSetRequest(opts...)
			if err != nil {
				return nil, fmt.Errorf("building gnmi set request: %w", err)
			}

			resp, err := conn.Target().Set(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("gnmi set on host %q: %w", host.Name, err)
			}

			applied := make([]string, 0, len(resp.GetResponse()))
			for _, upd := range resp.GetResponse() {
				applied = append(applied, fmt.Sprintf("%s %s", upd.GetOp(), xpath(upd.GetPath())))
			}
			return map[string]interface{}{
				"timestamp": resp.GetTimestamp(),
				"applied":   applied,
			}, nil
		},
	}
}

// xpath renders a gNMI path in xpath-like form for result payloads
func xpath(p *gnmipb.Path) string {
	if p == nil {
		return "/"
	}
	var sb strings.Builder
	for _, elem := range p.GetElem() {
		sb.WriteString("/")
		sb.WriteString(elem.GetName())
		for _, k := range sortedKeys(elem.GetKey()) {
			fmt.Fprintf(&sb, "[%s=%s]", k, elem.GetKey()[k])
		}
	}
	if sb.Len() == 0 {
		return "/"
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GNMICapabilities builds a task retrieving the gNMI capabilities of each
// host: service version, supported encodings and supported models
func GNMICapabilities() *runner.Task {
	return &runner.Task{
		Name:        "gnmi-capabilities",
		Connections: []string{"gnmi"},
		Func: func(ctx context.Context, host *inventory.Host, _ runner.Params) (interface{}, error) {
			conn, err := gnmiConn(host)
			if err != nil {
				return nil, err
			}

			resp, err := conn.Target().Capabilities(ctx)
			if err != nil {
				return nil, fmt.Errorf("gnmi capabilities on host %q: %w", host.Name, err)
			}

			encodings := make([]string, 0, len(resp.GetSupportedEncodings()))
			for _, enc := range resp.GetSupportedEncodings() {
				encodings = append(encodings, enc.String())
			}
			models := make([]string, 0, len(resp.GetSupportedModels()))
			for _, m := range resp.GetSupportedModels() {
				models = append(models, m.GetName())
			}
			return map[string]interface{}{
				"version":   resp.GetGNMIVersion(),
				"encodings": encodings,
				"models":    models,
			}, nil
		},
	}
}
