package output

import (
	"encoding/json"
	"io"

	"github.com/aryankumar/drover/internal/runner"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	options *Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(opts *Options) *JSONFormatter {
	if opts == nil {
		opts = &Options{}
	}
	return &JSONFormatter{
		options: opts,
	}
}

// Format outputs a single data item as JSON
func (f *JSONFormatter) Format(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// FormatResults outputs the per-host results of a run as JSON
func (f *JSONFormatter) FormatResults(w io.Writer, results runner.Results) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(flattenResults(results))
}

// flattenResults converts a result map into an ordered, serialization
// friendly slice
func flattenResults(results runner.Results) []map[string]interface{} {
	output := make([]map[string]interface{}, 0, len(results))

	for _, name := range results.HostNames() {
		result := results[name]
		item := map[string]interface{}{
			"host":     result.Host,
			"task":     result.Task,
			"duration": result.Duration.String(),
			"retries": map[string]int{
				"connect": result.ConnectRetries,
				"task":    result.TaskRetries,
			},
		}

		if result.Failed {
			item["status"] = "failed"
			item["error"] = result.ErrorText()
			if result.Data != nil {
				item["data"] = result.Data
			}
		} else {
			item["status"] = "success"
			item["data"] = result.Data
		}

		output = append(output, item)
	}

	return output
}
