package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://skirmish.ai/schemas/"

// Validator checks inbound frames against the embedded JSON schemas.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	files := map[string]string{
		TypeHello:   "hello.schema.json",
		TypeCommand: "command.schema.json",
		TypeUpdate:  "update.schema.json",
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range files {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
	}
	v := &Validator{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range files {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Validate checks a raw JSON message. Message types without a schema pass.
func (v *Validator) Validate(msgType string, raw []byte) error {
	s := v.byType[msgType]
	if s == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
