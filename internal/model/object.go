package model

import (
	"encoding/json"
	"time"
)

// Reserved structure keys used for silo-level documents that do not belong
// to a deployed instance.
const (
	StructureModulePublic = "module-public"
	StructurePeople       = "people"
)

// Reserved object types.
const (
	TypeGlobal  = "global"  // per-instance global properties
	TypePublic  = "public"  // module-public properties
	TypePersona = "persona" // silo-wide user identity documents
)

// ObjectRef addresses a single document in the hierarchical store:
// silo (tenant) / structure (module) / instance (deployment) / type / key.
type ObjectRef struct {
	Silo      string `json:"silo"`
	Structure string `json:"structure"`
	Instance  string `json:"instance"`
	Type      string `json:"type"`
	Key       string `json:"key"`
}

// Object is a mutable, last-write-wins document. Derived objects carry a
// back-reference to the structure/instance whose write produced them.
type Object struct {
	ObjectRef
	Value           json.RawMessage `json:"value"`
	Derived         bool            `json:"derived,omitempty"`
	SourceStructure string          `json:"source_structure,omitempty"`
	SourceInstance  string          `json:"source_instance,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Write is a committed write as seen by the trigger dispatcher.
type Write struct {
	Ref   ObjectRef       `json:"ref"`
	Value json.RawMessage `json:"value"`
}

// DerivedWrite is a wholesale upsert of a denormalized copy at a destination
// coordinate. Source fields record where the originating write landed.
type DerivedWrite struct {
	Ref             ObjectRef       `json:"ref"`
	Value           json.RawMessage `json:"value"`
	SourceStructure string          `json:"source_structure"`
	SourceInstance  string          `json:"source_instance"`
}
