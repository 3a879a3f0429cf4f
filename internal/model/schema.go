package model

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of Document for artifact authors.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Document{})
	s.Title = "modelprov model artifact"
	s.Description = "A trained model stored as JSON, YAML or CBOR, optionally zstd compressed."
	return s
}
