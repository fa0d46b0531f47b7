package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed seed/*.json
var seedFS embed.FS

const definitionSchemaURL = "schema://questionnaire.json"

// QuestionnaireDefinition is the on-disk form of a question set.
type QuestionnaireDefinition struct {
	Start     string      `json:"start,omitempty"`
	Questions []*Question `json:"questions"`
}

// Graph validates the definition and builds a QuestionGraph.
func (d *QuestionnaireDefinition) Graph(cfg QuestionnaireConfig) (*QuestionGraph, error) {
	return NewQuestionGraph(d.Questions, d.Start, cfg)
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func definitionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := seedFS.ReadFile("seed/questionnaire.schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("read schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(definitionSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(definitionSchemaURL)
	})
	return compiledSchema, schemaErr
}

// LoadQuestionnaire decodes a JSON or YAML definition and checks it against
// the definition schema. format is "json", "yaml" or empty to detect.
func LoadQuestionnaire(r io.Reader, format string) (*QuestionnaireDefinition, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read questionnaire: %w", err)
	}
	if format == "" {
		format = detectFormat(raw)
	}

	var data []byte
	switch strings.ToLower(format) {
	case "json":
		data = raw
	case "yaml", "yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, NewInvalidError(fmt.Sprintf("invalid YAML: %v", err))
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, NewInvalidError(fmt.Sprintf("convert YAML: %v", err))
		}
	default:
		return nil, NewInvalidError(fmt.Sprintf("unsupported questionnaire format %q", format))
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, NewInvalidError(fmt.Sprintf("invalid JSON: %v", err))
	}
	schema, err := definitionSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, NewInvalidError(fmt.Sprintf("schema validation failed: %v", err))
	}

	var def QuestionnaireDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewInvalidError(fmt.Sprintf("decode questionnaire: %v", err))
	}
	return &def, nil
}

// LoadQuestionnaireFile picks the format from the file extension.
func LoadQuestionnaireFile(path string) (*QuestionnaireDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "json" && format != "yaml" && format != "yml" {
		format = ""
	}
	return LoadQuestionnaire(f, format)
}

// DefaultQuestionnaire returns the built-in smartphone survey.
func DefaultQuestionnaire() (*QuestionnaireDefinition, error) {
	raw, err := seedFS.ReadFile("seed/smartphone.json")
	if err != nil {
		return nil, err
	}
	return LoadQuestionnaire(bytes.NewReader(raw), "json")
}

func detectFormat(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return "json"
	}
	return "yaml"
}
