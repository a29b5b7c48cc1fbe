package record

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espin086/IntelliMatch/internal/source"
	"github.com/espin086/IntelliMatch/internal/types"
)

func loadFromCSV(t *testing.T, content, idColumn string) (*Store, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return Load(context.Background(), source.NewCSV(path), idColumn)
}

func TestLoad(t *testing.T) {
	store, err := loadFromCSV(t, "id,site_name,address\n1,Pizza Hut,123 Main St\n2,\"Taco  Bell\",\n", "id")
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())

	r1, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"site_name": "pizza hut", "address": "123 main st"}, r1.Fields)

	// Empty address drops out of the field map entirely
	r2, ok := store.Get("2")
	require.True(t, ok)
	assert.Equal(t, "taco bell", r2.Fields["site_name"])
	_, present := r2.Value("address")
	assert.False(t, present, "empty value must be missing, not empty string")
}

func TestLoadKeepsSourceOrder(t *testing.T) {
	store, err := loadFromCSV(t, "id,site_name\n30,a\n10,b\n20,c\n", "id")
	require.NoError(t, err)

	var ids []string
	for _, r := range store.Records() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"30", "10", "20"}, ids)
}

func TestLoadIdentifierKeptVerbatim(t *testing.T) {
	store, err := loadFromCSV(t, "id,site_name\nABC-1,pizza hut\n", "id")
	require.NoError(t, err)

	_, ok := store.Get("ABC-1")
	assert.True(t, ok, "identifiers are not normalized")
	_, ok = store.Get("abc-1")
	assert.False(t, ok)
}

func TestLoadMissingIDColumn(t *testing.T) {
	_, err := loadFromCSV(t, "key,site_name\n1,pizza hut\n", "id")
	require.Error(t, err)

	var dfe *types.DataFormatError
	require.True(t, errors.As(err, &dfe), "want DataFormatError, got %T", err)
	assert.Contains(t, dfe.Reason, `"id"`)
}

func TestLoadDuplicateIdentifier(t *testing.T) {
	_, err := loadFromCSV(t, "id,site_name\n1,pizza hut\n2,taco bell\n1,pizza hut again\n", "id")
	require.Error(t, err)

	var dfe *types.DataFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, 4, dfe.Row)
	assert.Contains(t, dfe.Reason, "duplicate identifier")
}

func TestLoadBlankIdentifier(t *testing.T) {
	_, err := loadFromCSV(t, "id,site_name\n ,pizza hut\n", "id")
	require.Error(t, err)

	var dfe *types.DataFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, 2, dfe.Row)
}

func TestLoadIdenticalRowsUnderDistinctIDs(t *testing.T) {
	// Fully identical field values under different ids are legitimate input;
	// they are exactly the duplicates the pipeline exists to resolve
	store, err := loadFromCSV(t, "id,site_name\n1,pizza hut\n2,pizza hut\n", "id")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}
