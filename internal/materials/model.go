package materials

import (
	"errors"
	"time"
)

// LifecycleState tags where a material record sits in its version chain.
type LifecycleState string

const (
	// StateActive marks the single live record of a lineage.
	StateActive LifecycleState = "active"
	// StateSuperseded marks a record closed out by a rename/retype.
	StateSuperseded LifecycleState = "superseded"
)

// AttributeKind enumerates the value kinds allowed in material attributes.
type AttributeKind string

const (
	AttributeKindText   AttributeKind = "text"
	AttributeKindNumber AttributeKind = "number"
)

// Attribute is one schema-validated key/value pair attached to a material.
type Attribute struct {
	Key         string        `json:"key"`
	Kind        AttributeKind `json:"kind"`
	TextValue   string        `json:"text_value,omitempty"`
	NumberValue *float64      `json:"number_value,omitempty"`
}

// Material is a named, typed item that can be stocked. Records form a
// version chain: editing an old enough record closes it out and inserts a
// new active record sharing the same root lineage.
type Material struct {
	ID               int64          `json:"id"`
	OwnerID          int64          `json:"owner_id"`
	RootID           int64          `json:"root_id"`
	Name             string         `json:"name"`
	Category         string         `json:"category,omitempty"`
	DefaultUnit      string         `json:"default_unit,omitempty"`
	Attributes       []Attribute    `json:"attributes,omitempty"`
	ImageRef         string         `json:"image_ref,omitempty"`
	State            LifecycleState `json:"state"`
	EndedAt          *time.Time     `json:"ended_at,omitempty"`
	SuccessorID      *int64         `json:"successor_id,omitempty"`
	CurrentVersionID *int64         `json:"current_version_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Version is an immutable snapshot of a material's name and category taken
// the first time a transaction referenced it.
type Version struct {
	ID         int64     `json:"id"`
	MaterialID int64     `json:"material_id"`
	VersionNo  int       `json:"version_no"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrInvalidAttribute indicates an attribute that fails schema validation.
var ErrInvalidAttribute = errors.New("materials: invalid attribute")

// ValidateAttributes checks every attribute against its declared kind.
func ValidateAttributes(attrs []Attribute) error {
	seen := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		if a.Key == "" {
			return ErrInvalidAttribute
		}
		if _, dup := seen[a.Key]; dup {
			return ErrInvalidAttribute
		}
		seen[a.Key] = struct{}{}
		switch a.Kind {
		case AttributeKindText:
			if a.NumberValue != nil {
				return ErrInvalidAttribute
			}
		case AttributeKindNumber:
			if a.NumberValue == nil || a.TextValue != "" {
				return ErrInvalidAttribute
			}
		default:
			return ErrInvalidAttribute
		}
	}
	return nil
}
