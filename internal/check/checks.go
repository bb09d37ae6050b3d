// Package check evaluates assertions against task results, turning raw
// per-host output into pass/fail outcomes for fleet-wide verification runs.
package check

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aryankumar/drover/internal/runner"
)

// Check is one assertion evaluated against every host's result
type Check struct {
	// Name identifies the check in outcomes
	Name string `yaml:"name" json:"name"`

	// Type selects the assertion: contains, not_contains, equal, regex or
	// jsonpath
	Type string `yaml:"type" json:"type"`

	// Pattern is the substring, expected value, regular expression or gjson
	// path the assertion evaluates
	Pattern string `yaml:"pattern" json:"pattern"`

	// Expected is the value a jsonpath assertion compares against; empty
	// asserts mere existence of the path
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`
}

// Outcome is the evaluation of one check against one host
type Outcome struct {
	Host   string `yaml:"host" json:"host"`
	Check  string `yaml:"check" json:"check"`
	Passed bool   `yaml:"passed" json:"passed"`

	// Detail explains a failure; empty on pass
	Detail string `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// Validate checks that the assertion is well-formed, compiling regular
// expressions eagerly so a bad pattern fails before any host is evaluated
func (c *Check) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("check must have a name")
	}
	switch c.Type {
	case "contains", "not_contains", "equal", "jsonpath":
	case "regex":
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("check %q: invalid regex: %w", c.Name, err)
		}
	default:
		return fmt.Errorf("check %q: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// Evaluate runs every check against every host result, ordered by host name
// then check order. A host whose task failed gets a failing outcome per
// check without evaluating the assertion.
func Evaluate(results runner.Results, checks []Check) ([]Outcome, error) {
	for i := range checks {
		if err := checks[i].Validate(); err != nil {
			return nil, err
		}
	}

	hosts := results.HostNames()
	sort.Strings(hosts)

	outcomes := make([]Outcome, 0, len(hosts)*len(checks))
	for _, host := range hosts {
		res := results[host]
		for _, c := range checks {
			outcomes = append(outcomes, c.evaluate(host, res))
		}
	}
	return outcomes, nil
}

func (c *Check) evaluate(host string, res *runner.HostResult) Outcome {
	out := Outcome{Host: host, Check: c.Name}

	if res.Failed {
		out.Detail = fmt.Sprintf("task failed: %s", res.ErrorText())
		return out
	}

	text := flatten(res.Data)
	switch c.Type {
	case "contains":
		if strings.Contains(text, c.Pattern) {
			out.Passed = true
		} else {
			out.Detail = fmt.Sprintf("output does not contain %q", c.Pattern)
		}
	case "not_contains":
		if !strings.Contains(text, c.Pattern) {
			out.Passed = true
		} else {
			out.Detail = fmt.Sprintf("output contains %q", c.Pattern)
		}
	case "equal":
		if strings.TrimSpace(text) == c.Pattern {
			out.Passed = true
		} else {
			out.Detail = fmt.Sprintf("output %q does not equal %q", strings.TrimSpace(text), c.Pattern)
		}
	case "regex":
		// pattern validity established by Validate
		re := regexp.MustCompile(c.Pattern)
		if re.MatchString(text) {
			out.Passed = true
		} else {
			out.Detail = fmt.Sprintf("output does not match %q", c.Pattern)
		}
	case "jsonpath":
		out = c.evaluateJSONPath(out, res.Data)
	}
	return out
}

func (c *Check) evaluateJSONPath(out Outcome, data interface{}) Outcome {
	rendered, err := json.Marshal(data)
	if err != nil {
		out.Detail = fmt.Sprintf("result is not JSON-renderable: %v", err)
		return out
	}

	value := gjson.GetBytes(rendered, c.Pattern)
	if !value.Exists() {
		out.Detail = fmt.Sprintf("path %q not found in result", c.Pattern)
		return out
	}
	if c.Expected != "" && value.String() != c.Expected {
		out.Detail = fmt.Sprintf("path %q is %q, expected %q", c.Pattern, value.String(), c.Expected)
		return out
	}

	out.Passed = true
	return out
}

// flatten renders a result payload as text for substring and regex checks
func flatten(data interface{}) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString(v[k])
			b.WriteString("\n")
		}
		return b.String()
	default:
		if rendered, err := json.Marshal(v); err == nil {
			return string(rendered)
		}
		return fmt.Sprint(v)
	}
}

// CountFailed returns how many outcomes did not pass
func CountFailed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Passed {
			n++
		}
	}
	return n
}
