package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/groblegark/ksilo/internal/model"
)

// InstanceSiloWide is the reserved instance key for silo-level documents
// (personas, module-public properties) that are not bound to one deployment.
const InstanceSiloWide = "silo"

// Scope is a silo/structure/instance-scoped view of a Store. It is the
// accessor handed to trigger handlers and notification assemblers so they
// read and write relative to the coordinates of the originating write.
type Scope struct {
	Store     Store
	Silo      string
	Structure string
	Instance  string
}

// GetObject reads an object of the given type and key within the scope.
func (s Scope) GetObject(ctx context.Context, objectType, key string) (json.RawMessage, error) {
	obj, err := s.Store.GetObject(ctx, model.ObjectRef{
		Silo:      s.Silo,
		Structure: s.Structure,
		Instance:  s.Instance,
		Type:      objectType,
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	return obj.Value, nil
}

// GetGlobalProperty reads an instance-global property. Absent properties
// return ErrNotFound.
func (s Scope) GetGlobalProperty(ctx context.Context, name string) (string, error) {
	raw, err := s.GetObject(ctx, model.TypeGlobal, name)
	if err != nil {
		return "", err
	}
	return decodeString(raw), nil
}

// GetModulePublic reads a silo-level public property published by a module.
func (s Scope) GetModulePublic(ctx context.Context, module, name string) (string, error) {
	obj, err := s.Store.GetObject(ctx, model.ObjectRef{
		Silo:      s.Silo,
		Structure: model.StructureModulePublic,
		Instance:  module,
		Type:      model.TypePublic,
		Key:       name,
	})
	if err != nil {
		return "", err
	}
	return decodeString(obj.Value), nil
}

// GetPersona resolves a silo-wide persona document for the given user.
func (s Scope) GetPersona(ctx context.Context, userID string) (*model.Persona, error) {
	obj, err := s.Store.GetObject(ctx, model.ObjectRef{
		Silo:      s.Silo,
		Structure: model.StructurePeople,
		Instance:  InstanceSiloWide,
		Type:      model.TypePersona,
		Key:       userID,
	})
	if err != nil {
		return nil, err
	}
	var p model.Persona
	if err := json.Unmarshal(obj.Value, &p); err != nil {
		return nil, fmt.Errorf("decoding persona %s: %w", userID, err)
	}
	if p.Key == "" {
		p.Key = userID
	}
	return &p, nil
}

// SetDerivedObject upserts a denormalized copy at the destination
// coordinate, stamping the scope's structure/instance as the source
// back-reference. The upsert is wholesale and idempotent.
func (s Scope) SetDerivedObject(ctx context.Context, structure, instance, objectType, key string, value json.RawMessage) error {
	return s.Store.SetDerivedObject(ctx, model.DerivedWrite{
		Ref: model.ObjectRef{
			Silo:      s.Silo,
			Structure: structure,
			Instance:  instance,
			Type:      objectType,
			Key:       key,
		},
		Value:           value,
		SourceStructure: s.Structure,
		SourceInstance:  s.Instance,
	})
}

// decodeString unwraps a JSON string value; non-string JSON is returned verbatim.
func decodeString(raw json.RawMessage) string {
	var v string
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}
