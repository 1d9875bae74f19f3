package toolfactory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInputModel_RequiredAndOptionalFields(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"path"},
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "file path"},
			"recursive": map[string]interface{}{"type": "boolean"},
		},
	}

	model := BuildInputModel(schema)
	require.Len(t, model.Fields, 2)

	byName := map[string]Param{}
	for _, f := range model.Fields {
		byName[f.Name] = f
	}

	assert.True(t, byName["path"].Required)
	assert.Equal(t, ParamString, byName["path"].Kind)
	assert.Equal(t, "file path", byName["path"].Description)

	assert.False(t, byName["recursive"].Required)
	assert.Equal(t, ParamBoolean, byName["recursive"].Kind)
	assert.Equal(t, "The recursive for the tool.", byName["recursive"].Description)
}

func TestBuildInputModel_UnknownTypeDefaultsToString(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"weird": map[string]interface{}{},
		},
	}
	model := BuildInputModel(schema)
	require.Len(t, model.Fields, 1)
	assert.Equal(t, ParamString, model.Fields[0].Kind)
}

func TestBuildInputModel_NonObjectSchemaYieldsEmptyModel(t *testing.T) {
	model := BuildInputModel(map[string]interface{}{"type": "string"})
	assert.Empty(t, model.Fields)
	assert.Nil(t, model.Schema)
}

func TestBuildInputModel_NilSchema(t *testing.T) {
	model := BuildInputModel(nil)
	assert.Empty(t, model.Fields)
}
