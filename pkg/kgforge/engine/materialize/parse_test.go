package materialize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgforge/kgforge/pkg/kgforge/engine/materialize"
)

func TestParseModelOutputFencedBlock(t *testing.T) {
	text := "Here you go:\n```json\n{\"entities\": [], \"relationships\": []}\n```\nDone."
	parsed := materialize.ParseModelOutput(text)

	obj, ok := parsed.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, obj, "entities")
	assert.Contains(t, obj, "relationships")
}

func TestParseModelOutputFencedBlockWithoutLanguageTag(t *testing.T) {
	text := "```\n{\"entities\": [{\"id\": \"e1\", \"name\": \"Acme\", \"type\": \"Company\"}]}\n```"
	parsed := materialize.ParseModelOutput(text)

	obj, ok := parsed.(map[string]interface{})
	require.True(t, ok)
	entities, ok := obj["entities"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entities, 1)
}

func TestParseModelOutputWholeString(t *testing.T) {
	parsed := materialize.ParseModelOutput("  {\"entities\": []}  ")

	obj, ok := parsed.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, obj, "entities")
}

func TestParseModelOutputFallsBackToRawOutput(t *testing.T) {
	text := "I could not produce JSON for this document."
	parsed := materialize.ParseModelOutput(text)

	obj, ok := parsed.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, text, obj["raw_output"])
}

func TestParseModelOutputMalformedFenceFallsThrough(t *testing.T) {
	// The fenced content is broken JSON but the surrounding text is not JSON
	// either, so the raw wrapper wins.
	text := "```json\n{broken\n```"
	parsed := materialize.ParseModelOutput(text)

	obj, ok := parsed.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, text, obj["raw_output"])
}
