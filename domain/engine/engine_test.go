package engine

import "testing"

func TestValidateParamSchemaAcceptsEmpty(t *testing.T) {
	if err := ValidateParamSchema(nil); err != nil {
		t.Errorf("nil params should be valid: %v", err)
	}
}

func TestValidateParamSchemaAcceptsWellFormedJSON(t *testing.T) {
	if err := ValidateParamSchema([]byte(`{"rate": 0.05}`)); err != nil {
		t.Errorf("well-formed JSON should be valid: %v", err)
	}
}

func TestValidateParamSchemaRejectsMalformedJSON(t *testing.T) {
	if err := ValidateParamSchema([]byte(`{not json`)); err == nil {
		t.Error("malformed JSON should be rejected")
	}
}
