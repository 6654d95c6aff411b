package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

// Schema names declared in openapi.yaml.
const (
	SchemaStartRequest   = "StartRequest"
	SchemaStartResponse  = "StartResponse"
	SchemaResumeRequest  = "ResumeRequest"
	SchemaResumeResponse = "ResumeResponse"
)

// Spec returns the embedded OpenAPI document describing the backend.
func Spec() []byte {
	return rawSpec
}

// Contract validates JSON bodies against the embedded OpenAPI schemas.
type Contract struct {
	doc *openapi3.T
}

// NewContract loads and validates the embedded document.
func NewContract(ctx context.Context) (*Contract, error) {
	doc, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}
	return &Contract{doc: doc}, nil
}

// Version returns the API version declared by the document.
func (c *Contract) Version() string {
	if c.doc.Info == nil {
		return ""
	}
	return c.doc.Info.Version
}

// Validate checks body against the named component schema.
func (c *Contract) Validate(schema string, body []byte) error {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	return c.ValidateValue(schema, value)
}

// ValidateValue checks an already decoded JSON value against the named schema.
func (c *Contract) ValidateValue(schema string, value any) error {
	if c.doc.Components == nil {
		return fmt.Errorf("schema %q not declared", schema)
	}
	ref, ok := c.doc.Components.Schemas[schema]
	if !ok || ref.Value == nil {
		return fmt.Errorf("schema %q not declared", schema)
	}
	if err := ref.Value.VisitJSON(value); err != nil {
		return fmt.Errorf("%s: %w", schema, err)
	}
	return nil
}
