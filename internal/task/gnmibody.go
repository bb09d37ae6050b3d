package task

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// Body incrementally builds a JSON payload for gNMI Set operations using
// dotted paths. Errors are collected and surfaced once by Res, so calls
// chain without per-step checks.
//
//	body, err := task.NewBody().
//		Set("config.hostname", "edge-01").
//		Set("config.mtu", 9000).
//		Res()
type Body struct {
	str string
	err error
}

// NewBody creates an empty payload builder
func NewBody() *Body {
	return &Body{str: "{}"}
}

// Set assigns a value at the dotted path
func (b *Body) Set(path string, value interface{}) *Body {
	if b.err != nil {
		return b
	}
	res, err := sjson.Set(b.str, path, value)
	if err != nil {
		b.err = fmt.Errorf("setting body path %q: %w", path, err)
		return b
	}
	b.str = res
	return b
}

// SetRaw assigns a pre-rendered JSON fragment at the dotted path
func (b *Body) SetRaw(path, raw string) *Body {
	if b.err != nil {
		return b
	}
	res, err := sjson.SetRaw(b.str, path, raw)
	if err != nil {
		b.err = fmt.Errorf("setting body path %q: %w", path, err)
		return b
	}
	b.str = res
	return b
}

// Delete removes the value at the dotted path
func (b *Body) Delete(path string) *Body {
	if b.err != nil {
		return b
	}
	res, err := sjson.Delete(b.str, path)
	if err != nil {
		b.err = fmt.Errorf("deleting body path %q: %w", path, err)
		return b
	}
	b.str = res
	return b
}

// Res returns the built JSON string and the first error encountered
func (b *Body) Res() (string, error) {
	return b.str, b.err
}
