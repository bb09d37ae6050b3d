// Package output provides formatters for displaying Drover command results.
//
// The package supports multiple output formats (table, JSON, YAML) and provides
// a unified interface for formatting both single data items and per-host run
// results.
//
// # Basic Usage
//
//	// Create a table formatter
//	formatter := output.NewFormatter(output.FormatTable)
//
//	// Format single data item
//	data := map[string]interface{}{"key": "value"}
//	formatter.Format(os.Stdout, data)
//
//	// Format run results
//	results, _ := r.Run(ctx, task, hosts)
//	formatter.FormatResults(os.Stdout, results)
//
// # Options
//
// Formatters can be configured with functional options:
//
//	formatter := output.NewFormatter(
//	    output.FormatTable,
//	    output.WithNoColor(true),
//	    output.WithWide(true),
//	)
//
// # Color Support
//
// Colors are automatically enabled for TTY outputs and can be disabled with
// the WithNoColor option or by piping output to a non-TTY destination.
//
// Color scheme:
//   - Host names: Cyan, Bold
//   - Success status: Green
//   - Error messages: Red, Bold
//   - Warnings: Yellow
//   - Headers: White, Bold
//   - Durations: Blue
package output
