package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered (type, version) pair.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrPayloadInvalid indicates payload JSON that is malformed or fails the
	// registered shape validation.
	ErrPayloadInvalid = errors.New("payload json is invalid")
)

// PayloadValidator validates a payload JSON document for one (type, version).
type PayloadValidator func(json.RawMessage) error

// Definition registers one permissible (type, version) pair and its payload
// shape check. Bumping Version when a payload shape changes incompatibly
// keeps old events replayable forever: both versions stay registered and the
// fold logic handles both.
type Definition struct {
	Type            Type
	Version         int
	ValidatePayload PayloadValidator
}

type definitionKey struct {
	typ     Type
	version int
}

// Registry is the closed catalog of event definitions. Appends are validated
// against it so no caller can persist a malformed or unknown fact.
type Registry struct {
	definitions map[definitionKey]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[definitionKey]Definition)}
}

// Register adds a new event definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if def.Version <= 0 {
		return fmt.Errorf("event %s: version must be positive", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[definitionKey]Definition)
	}
	key := definitionKey{typ: def.Type, version: def.Version}
	if _, exists := r.definitions[key]; exists {
		return fmt.Errorf("event already registered: %s v%d", def.Type, def.Version)
	}
	r.definitions[key] = def
	return nil
}

// Types returns all registered event types, deduplicated across versions.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	seen := make(map[Type]struct{})
	var types []Type
	for key := range r.definitions {
		if _, dup := seen[key.typ]; dup {
			continue
		}
		seen[key.typ] = struct{}{}
		types = append(types, key.typ)
	}
	return types
}

// ValidateForAppend validates and normalizes an event before it is persisted.
// It returns the normalized event or an error that wraps one of the sentinel
// values above.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	evt.AggregateID = strings.TrimSpace(evt.AggregateID)
	if evt.AggregateID == "" {
		return Event{}, fmt.Errorf("%w: event %s", ErrAggregateIDRequired, evt.Type)
	}
	if evt.Version == 0 {
		evt.Version = 1
	}

	def, ok := r.definitions[definitionKey{typ: evt.Type, version: evt.Version}]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s v%d", ErrTypeUnknown, evt.Type, evt.Version)
	}

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, fmt.Errorf("%w: %s", ErrPayloadInvalid, evt.Type)
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(evt.PayloadJSON); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
		}
	}

	return evt, nil
}
