package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/tendant/content-extensions/pkg/extensions"
)

//go:embed schema/manifest.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Manifest is a parsed extension manifest ready to be stored as an extensiontype document.
type Manifest struct {
	Name          string
	Version       *semver.Version
	LocationOrder []string
	Body          map[string]interface{}
}

// Issue is one schema violation found in a manifest.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// InvalidManifestError reports why a manifest was rejected.
type InvalidManifestError struct {
	Issues []Issue
}

func (e *InvalidManifestError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path != "" {
			parts = append(parts, issue.Path+": "+issue.Message)
		} else {
			parts = append(parts, issue.Message)
		}
	}
	return "invalid manifest: " + strings.Join(parts, "; ")
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("manifest.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("manifest.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ParseManifest decodes YAML or JSON manifest bytes, validates them against the embedded
// manifest schema and parses the version. Validation failures are *InvalidManifestError.
func ParseManifest(data []byte) (*Manifest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &InvalidManifestError{Issues: []Issue{{Message: fmt.Sprintf("parsing manifest: %v", err)}}}
	}
	var raw interface{}
	if err := root.Decode(&raw); err != nil {
		return nil, &InvalidManifestError{Issues: []Issue{{Message: fmt.Sprintf("decoding manifest: %v", err)}}}
	}
	body, ok := normalizeYAML(raw).(map[string]interface{})
	if !ok {
		return nil, &InvalidManifestError{Issues: []Issue{{Message: "manifest must be an object"}}}
	}

	if err := validate(body); err != nil {
		return nil, err
	}

	name, _ := body["name"].(string)
	versionText, _ := body["version"].(string)
	version, err := parseSemver(versionText)
	if err != nil {
		return nil, &InvalidManifestError{Issues: []Issue{{
			Path:    "/version",
			Message: fmt.Sprintf("parsing version %q: %v", versionText, err),
		}}}
	}

	return &Manifest{
		Name:          name,
		Version:       version,
		LocationOrder: locationOrder(&root),
		Body:          body,
	}, nil
}

// Document renders the manifest as an extensiontype document with the given id.
func (m *Manifest) Document(id string) extensions.Document {
	doc := extensions.Document(extensions.CloneValue(m.Body).(map[string]interface{}))
	doc[extensions.FieldID] = id
	order := make([]interface{}, len(m.LocationOrder))
	for i, key := range m.LocationOrder {
		order[i] = key
	}
	doc[extensions.FieldLocationOrder] = order
	return doc
}

func validate(body map[string]interface{}) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	// Round-trip through JSON so the validator sees json.Number values.
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("converting to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("preparing JSON for validation: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("unexpected validation error type: %w", err)
	}

	var issues []Issue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: ve.Error()})
	}
	return &InvalidManifestError{Issues: issues}
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) == 0 {
		path := ""
		if len(ve.InstanceLocation) > 0 {
			path = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		msg := ve.Error()
		if ve.ErrorKind != nil {
			msg = ve.ErrorKind.LocalizedString(printer)
		}
		for _, existing := range *issues {
			if existing.Path == path && existing.Message == msg {
				return
			}
		}
		*issues = append(*issues, Issue{Path: path, Message: msg})
		return
	}
	for _, cause := range ve.Causes {
		collectIssues(cause, issues)
	}
}

// compileLocations compiles each location's properties as an object schema. Problems are
// returned as warnings; the synthesizer skips node types it does not understand.
func compileLocations(m *Manifest) []string {
	doc := m.Document("")
	d, err := extensions.DescriptorFromDocument(doc)
	if err != nil {
		return []string{err.Error()}
	}
	raw := pluginLocations(m.Body)

	var warnings []string
	for _, loc := range d.Locations {
		schemaDoc := map[string]interface{}{"type": "object"}
		if locSchema, ok := raw[loc.Key].(map[string]interface{}); ok {
			if props, ok := locSchema["properties"]; ok {
				schemaDoc["properties"] = props
			}
		}
		data, err := json.Marshal(schemaDoc)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("location %s: %v", loc.Key, err))
			continue
		}
		inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("location %s: %v", loc.Key, err))
			continue
		}
		url := fmt.Sprintf("%s-%s.schema.json", m.Name, loc.Key)
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, inst); err != nil {
			warnings = append(warnings, fmt.Sprintf("location %s: %v", loc.Key, err))
			continue
		}
		if _, err := c.Compile(url); err != nil {
			warnings = append(warnings, fmt.Sprintf("location %s: %v", loc.Key, err))
		}
	}
	return warnings
}

func pluginLocations(body map[string]interface{}) map[string]interface{} {
	props, _ := body["properties"].(map[string]interface{})
	pl, _ := props["pluginLocations"].(map[string]interface{})
	locs, _ := pl["properties"].(map[string]interface{})
	return locs
}

// locationOrder reads the declared order of properties.pluginLocations.properties keys.
func locationOrder(root *yaml.Node) []string {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	for _, key := range []string{"properties", "pluginLocations", "properties"} {
		node = mappingValue(node, key)
		if node == nil {
			return nil
		}
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	order := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		order = append(order, node.Content[i].Value)
	}
	return order
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// normalizeYAML converts YAML-decoded values to JSON-compatible types.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[k] = normalizeYAML(v)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(val))
		for i, v := range val {
			a[i] = normalizeYAML(v)
		}
		return a
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return val
	}
}

// parseSemver parses a version with an optional leading "v". Original() keeps the text as
// written.
func parseSemver(version string) (*semver.Version, error) {
	return semver.NewVersion(version)
}
