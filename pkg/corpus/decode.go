package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidMetadata indicates corpus.json does not match the metadata schema.
var ErrInvalidMetadata = errors.New("invalid corpus metadata")

// metaSchema is the JSON schema every corpus.json document must satisfy.
const metaSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "required": ["Version", "Repositories"],
  "properties": {
    "Version": {"type": "integer", "minimum": 1},
    "Repositories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["Name", "Files"],
        "properties": {
          "Name": {"type": "string", "minLength": 1},
          "Tags": {"type": "array", "items": {"type": "string"}},
          "Git": {"type": "string"},
          "Commit": {"type": "string"},
          "Size": {"type": "integer", "minimum": 0},
          "MinifiedSize": {"type": "integer", "minimum": 0},
          "SLOC": {"type": "integer", "minimum": 0},
          "Files": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["Name"],
              "properties": {
                "Name": {"type": "string", "minLength": 1},
                "Flags": {"type": "integer", "minimum": 0},
                "SLOC": {"type": "integer", "minimum": 0},
                "MaxDepth": {"type": "integer", "minimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(metaSchema))
})

// Decode reads and validates a corpus.json document.
func Decode(r io.Reader) (*Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read corpus metadata: %w", err)
	}

	validateErr := validateSchema(data)
	if validateErr != nil {
		return nil, validateErr
	}

	var meta Meta

	unmarshalErr := json.Unmarshal(data, &meta)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, unmarshalErr)
	}

	return &meta, nil
}

func validateSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile corpus schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(problems, "; "))
}

// Encode writes meta as indented JSON.
func Encode(w io.Writer, meta *Meta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")

	err := enc.Encode(meta)
	if err != nil {
		return fmt.Errorf("encode corpus metadata: %w", err)
	}

	return nil
}
