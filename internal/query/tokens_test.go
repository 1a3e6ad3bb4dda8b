package query

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensReplace(t *testing.T) {
	tokens := Tokens{"dih.last_index_time": "2016-03-20 22:14:56"}
	assert.Equal(t,
		"{$date:'2016-03-20 22:14:56'} ${dih.unknown}",
		tokens.ReplaceTokens("{$date:'${dih.last_index_time}'} ${dih.unknown}"))
	assert.Equal(t, "no tokens", tokens.ReplaceTokens("no tokens"))
}

func TestTokensFromMarker(t *testing.T) {
	tokens := TokensFromMarker("core1", "2016-01-01 00:00:00", "2016-02-02 00:00:00")
	assert.Equal(t, "2016-02-02 00:00:00", tokens["dih.last_index_time"])
	assert.Equal(t, "2016-01-01 00:00:00", tokens["dih.core1.last_index_time"])

	tokens = TokensFromMarker("core1", "", "2016-02-02 00:00:00")
	assert.Equal(t, "2016-02-02 00:00:00", tokens["dih.core1.last_index_time"])
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Primary, DeltaChanged, DeltaDeleted, ParentDelta} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("sideways")
	assert.Error(t, err)
}

func TestLoadEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.properties")
	content := "name=product\ncollection=products\nquery=SELECT * FROM products\n" +
		"deltaQuery=modified_at > '${dih.last_index_time}'\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	spec, err := LoadEntity(path)
	require.NoError(t, err)
	assert.Equal(t, "product", spec.Name)
	assert.Equal(t, "products", spec.Collection)
	assert.Equal(t, "SELECT * FROM products", spec.Query)
	assert.Equal(t, "modified_at > '${dih.last_index_time}'", spec.DeltaQuery)
	assert.Empty(t, spec.DeletedPkQuery)

	_, err = LoadEntity(filepath.Join(t.TempDir(), "missing.properties"))
	assert.Error(t, err)
}
