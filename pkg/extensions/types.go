package extensions

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Document types understood by the store.
const (
	TypeCourse        = "course"
	TypeConfig        = "config"
	TypeContentObject = "contentobject"
	TypeArticle       = "article"
	TypeBlock         = "block"
	TypeComponent     = "component"
	TypeExtensionType = "extensiontype"
)

// Well-known document fields.
const (
	FieldID                = "_id"
	FieldCourseID          = "_courseId"
	FieldExtensions        = "_extensions"
	FieldEnabledExtensions = "_enabledExtensions"
	FieldLocationOrder     = "_locationOrder"
)

// ContentTypes lists the content types that receive extension defaults on creation.
var ContentTypes = []string{TypeContentObject, TypeArticle, TypeBlock, TypeComponent}

// Action selects whether an extension is being added to or removed from a course.
type Action string

const (
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// IsValid reports whether the action is enable or disable.
func (a Action) IsValid() bool {
	return a == ActionEnable || a == ActionDisable
}

// Document is a persisted JSON object. Nested objects are map[string]interface{}.
type Document map[string]interface{}

// ID returns the document's _id, or "" when absent.
func (d Document) ID() string {
	return stringField(d, FieldID)
}

// CourseID returns the document's _courseId, or "" when absent.
func (d Document) CourseID() string {
	return stringField(d, FieldCourseID)
}

// Extensions returns a deep copy of the _extensions attribute (never nil).
func (d Document) Extensions() map[string]interface{} {
	return objectField(d, FieldExtensions)
}

// EnabledExtensions returns a deep copy of the _enabledExtensions attribute (never nil).
func (d Document) EnabledExtensions() map[string]interface{} {
	return objectField(d, FieldEnabledExtensions)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneObject(d))
}

func stringField(d Document, key string) string {
	if d == nil {
		return ""
	}
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func objectField(d Document, key string) map[string]interface{} {
	if d != nil {
		if m, ok := asObject(d[key]); ok {
			return cloneObject(m)
		}
	}
	return map[string]interface{}{}
}

// Criteria selects documents. Values of type In match by membership, all others by equality.
type Criteria map[string]interface{}

// In is a membership criterion value.
type In []string

// Payload is the default-valued object tree synthesized from an extension schema.
type Payload = map[string]interface{}

// SchemaNode is the restricted JSON-schema subset used to describe extension data.
type SchemaNode struct {
	Type       string
	Default    interface{}
	HasDefault bool
	Properties map[string]*SchemaNode
}

// UnmarshalJSON keeps explicit defaults (including false, 0 and "") distinct from absent ones.
// Non-string "type" values decode to an empty type rather than failing.
func (n *SchemaNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       json.RawMessage        `json:"type"`
		Default    json.RawMessage        `json:"default"`
		Properties map[string]*SchemaNode `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Type = ""
	if len(raw.Type) > 0 {
		var t string
		if err := json.Unmarshal(raw.Type, &t); err == nil {
			n.Type = t
		}
	}
	n.HasDefault = raw.Default != nil
	n.Default = nil
	if n.HasDefault {
		if err := json.Unmarshal(raw.Default, &n.Default); err != nil {
			return err
		}
	}
	n.Properties = raw.Properties
	return nil
}

// Location is one content type an extension augments, with the schema for its data.
type Location struct {
	Key        string
	Properties map[string]*SchemaNode
}

// Descriptor describes an installed extension type.
type Descriptor struct {
	ID              string
	Name            string
	DisplayName     string
	Extension       string
	Version         string
	TargetAttribute string
	Locations       []Location
}

// Key is the registry key used in a course's _enabledExtensions.
func (d *Descriptor) Key() string {
	if d.Extension != "" {
		return d.Extension
	}
	return d.Name
}

// Attribute is the key under _extensions holding this extension's data. It falls back to
// "_" + Key() when the extension type declares no targetAttribute.
func (d *Descriptor) Attribute() string {
	if d.TargetAttribute != "" {
		return d.TargetAttribute
	}
	return "_" + d.Key()
}

// Location returns the declared location with the given key.
func (d *Descriptor) Location(key string) (Location, bool) {
	for _, loc := range d.Locations {
		if loc.Key == key {
			return loc, true
		}
	}
	return Location{}, false
}

// EnabledEntry returns the registry entry recorded when this extension is enabled.
func (d *Descriptor) EnabledEntry() EnabledExtension {
	return EnabledExtension{
		ID:              d.ID,
		Version:         d.Version,
		TargetAttribute: d.Attribute(),
	}
}

// EnabledExtension is one entry of a course's enabled-extensions registry.
type EnabledExtension struct {
	ID              string `json:"_id"`
	Version         string `json:"version"`
	TargetAttribute string `json:"targetAttribute"`
}

func (e EnabledExtension) toValue() map[string]interface{} {
	return map[string]interface{}{
		"_id":             e.ID,
		"version":         e.Version,
		"targetAttribute": e.TargetAttribute,
	}
}

func enabledExtensionFromValue(v interface{}) (EnabledExtension, bool) {
	m, ok := asObject(v)
	if !ok {
		return EnabledExtension{}, false
	}
	e := EnabledExtension{
		ID:              stringField(m, "_id"),
		Version:         stringField(m, "version"),
		TargetAttribute: stringField(m, "targetAttribute"),
	}
	return e, e.ID != ""
}

type descriptorDocument struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	DisplayName     string   `json:"displayName"`
	Extension       string   `json:"extension"`
	Version         string   `json:"version"`
	TargetAttribute string   `json:"targetAttribute"`
	LocationOrder   []string `json:"_locationOrder"`
	Properties      struct {
		PluginLocations struct {
			Properties map[string]struct {
				Properties map[string]*SchemaNode `json:"properties"`
			} `json:"properties"`
		} `json:"pluginLocations"`
	} `json:"properties"`
}

// DescriptorFromDocument decodes an extensiontype document. Locations follow the recorded
// _locationOrder; locations missing from it are appended in sorted order.
func DescriptorFromDocument(doc Document) (*Descriptor, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode extension type: %w", err)
	}
	var raw descriptorDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode extension type %s: %w", doc.ID(), err)
	}

	d := &Descriptor{
		ID:              raw.ID,
		Name:            raw.Name,
		DisplayName:     raw.DisplayName,
		Extension:       raw.Extension,
		Version:         raw.Version,
		TargetAttribute: raw.TargetAttribute,
	}

	locations := raw.Properties.PluginLocations.Properties
	seen := make(map[string]bool, len(locations))
	for _, key := range raw.LocationOrder {
		loc, ok := locations[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		d.Locations = append(d.Locations, Location{Key: key, Properties: loc.Properties})
	}
	var rest []string
	for key := range locations {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		d.Locations = append(d.Locations, Location{Key: key, Properties: locations[key].Properties})
	}
	return d, nil
}
