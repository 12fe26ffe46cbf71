// Package yamlflag provides a command line flag that accepts a YAML document.
package yamlflag

import (
	"encoding/json"
	"flag"
	"os"
	"reflect"
	"strings"

	"github.com/ghodss/yaml"
)

// New creates a flag.Value that recognizes a YAML document.
// It also satisfies urfave/cli Generic interface.
//
// The YAML document can be specified directly on the command line:
//
//	--flag="key: value"
//
// Or it can be read from a file, when the flag value starts with '@':
//
//	--flag=@file.yaml
//
// value must be a pointer to a struct containing config sections.
// Panics if value is not a pointer.
func New(value any) flag.Getter {
	if val := reflect.ValueOf(value); val.Kind() != reflect.Ptr {
		panic(val.Kind())
	}
	return &yamlFlagValue{value}
}

// Load decodes a YAML document, or a file when input starts with '@', into value.
// Fields absent from the document keep their existing values.
func Load(value any, input string) error {
	doc := []byte(input)
	if path, ok := strings.CutPrefix(input, "@"); ok {
		file, e := os.ReadFile(path)
		if e != nil {
			return e
		}
		doc = file
	}
	return yaml.Unmarshal(doc, value)
}

type yamlFlagValue struct {
	Value any
}

func (v *yamlFlagValue) Get() any {
	return v.Value
}

func (v *yamlFlagValue) Set(s string) error {
	return Load(v.Value, s)
}

func (v *yamlFlagValue) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	j, _ := json.Marshal(v.Value)
	return string(j)
}
