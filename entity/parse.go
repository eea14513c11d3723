package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/versia-works/federation/errors"
)

// envelopeSchema validates the shared wire envelope before any typed
// unmarshal runs. It rejects non-objects and missing or mistyped common
// fields with a precise message; per-type strictness comes from
// DisallowUnknownFields in the typed decode.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "uri", "type", "created_at"],
	"properties": {
		"id": {"type": "string", "minLength": 1, "maxLength": 512},
		"uri": {"type": "string", "format": "uri"},
		"type": {"type": "string", "minLength": 1},
		"created_at": {"type": "string", "format": "date-time"},
		"extensions": {"type": "object"}
	}
}`

var (
	envelopeOnce     sync.Once
	envelopeCompiled *gojsonschema.Schema
	envelopeErr      error
)

func compiledEnvelope() (*gojsonschema.Schema, error) {
	envelopeOnce.Do(func() {
		envelopeCompiled, envelopeErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(envelopeSchema))
	})
	return envelopeCompiled, envelopeErr
}

// Parse validates raw wire bytes and produces the typed entity. The error
// is always invalid-class for malformed input; an unrecognized type wraps
// errors.ErrUnknownType so callers can distinguish "we don't speak this"
// from "this is broken".
func Parse(raw []byte) (Entity, error) {
	schema, err := compiledEnvelope()
	if err != nil {
		return nil, errors.WrapFatal(err, "Entity", "Parse", "compile envelope schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Entity", "Parse", "not valid JSON")
	}
	if !result.Valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Entity", "Parse",
			describeSchemaErrors(result))
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Entity", "Parse", "read type field")
	}

	target, ok := newByType(envelope.Type)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownType, "Entity", "Parse",
			fmt.Sprintf("type %q", envelope.Type))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, errors.WrapInvalid(err, "Entity", "Parse",
			fmt.Sprintf("decode %s entity", envelope.Type))
	}

	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

// newByType returns a fresh concrete entity for the wire type. The
// returned bool is false for types outside the closed set.
func newByType(wireType string) (Entity, bool) {
	switch wireType {
	case TypeNote:
		return &Note{}, true
	case TypeUser:
		return &User{}, true
	case TypeFollow:
		return &Follow{}, true
	case TypeFollowAccept:
		return &FollowAccept{}, true
	case TypeFollowReject:
		return &FollowReject{}, true
	case TypeUnfollow:
		return &Unfollow{}, true
	case TypeDelete:
		return &Delete{}, true
	case TypeLike:
		return &Like{}, true
	case TypeReaction:
		return &Reaction{}, true
	case TypeShare:
		return &Share{}, true
	case TypeInstanceMetadata:
		return &InstanceMetadata{}, true
	case TypeCollection:
		return &Collection{}, true
	default:
		return nil, false
	}
}

// KnownTypes returns the closed set of wire type discriminants.
func KnownTypes() []string {
	return []string{
		TypeNote, TypeUser, TypeFollow, TypeFollowAccept, TypeFollowReject,
		TypeUnfollow, TypeDelete, TypeLike, TypeReaction, TypeShare,
		TypeInstanceMetadata, TypeCollection,
	}
}

// describeSchemaErrors flattens schema violations into one line.
func describeSchemaErrors(result *gojsonschema.Result) string {
	parts := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		parts = append(parts, desc.String())
	}
	return strings.Join(parts, "; ")
}
