package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/settings"
	"github.com/espin086/IntelliMatch/internal/types"
)

// writeResolveFixture lays out a dataset, a config file pointing at it, and
// the artifact paths for one run. Records 1 and 2 normalize to identical
// field values; 3 and 4 match nothing.
func writeResolveFixture(t *testing.T) (cfgPath, outPath, settingsDir string) {
	t.Helper()
	dir := t.TempDir()

	dataPath := filepath.Join(dir, "records.csv")
	data := "id,name,city\n" +
		"1,pizza hut,austin\n" +
		"2,Pizza  Hut ,Austin\n" +
		"3,burger king,dallas\n" +
		"4,taco bell,houston\n"
	require.NoError(t, os.WriteFile(dataPath, []byte(data), 0644))

	outPath = filepath.Join(dir, "resolved.csv")
	settingsDir = filepath.Join(dir, "settings")
	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := "source:\n" +
		"  path: " + dataPath + "\n" +
		"fields:\n" +
		"  - name: name\n" +
		"  - name: city\n" +
		"paths:\n" +
		"  settings_dir: " + settingsDir + "\n" +
		"  output: " + outPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	return cfgPath, outPath, settingsDir
}

func withConfigPath(t *testing.T, path string) {
	t.Helper()
	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
}

func setResolveFlag(t *testing.T, name, value string) {
	t.Helper()
	require.NoError(t, resolveCmd.Flags().Set(name, value))
	t.Cleanup(func() {
		f := resolveCmd.Flags().Lookup(name)
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func TestResolveReusesSavedModel(t *testing.T) {
	cfgPath, outPath, settingsDir := writeResolveFixture(t)
	withConfigPath(t, cfgPath)

	// A compatible saved model means no labeling session: the run must
	// complete without a terminal attached
	sch, err := schema.New([]string{"name", "city"})
	require.NoError(t, err)
	model := &classify.Model{Weights: []float64{5, 5}, Intercept: -2.5}
	require.NoError(t, settings.SaveModel(filepath.Join(settingsDir, "model.gob"), model, sch))

	require.NoError(t, runResolve(resolveCmd))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, []string{"id", "cluster_id", "confidence_score"}, rows[0])

	// Every input id appears exactly once
	clusterOf := make(map[string]string)
	for _, row := range rows[1:] {
		require.Len(t, row, 3)
		_, dup := clusterOf[row[0]]
		require.False(t, dup, "record %s emitted twice", row[0])
		clusterOf[row[0]] = row[1]
	}
	assert.Len(t, clusterOf, 4)

	// The normalized duplicates cluster together; the others stay apart
	assert.Equal(t, clusterOf["1"], clusterOf["2"])
	assert.NotEqual(t, clusterOf["1"], clusterOf["3"])
	assert.NotEqual(t, clusterOf["3"], clusterOf["4"])

	for _, row := range rows[1:] {
		conf, err := strconv.ParseFloat(row[2], 64)
		require.NoError(t, err)
		if row[0] == "1" || row[0] == "2" {
			assert.Greater(t, conf, 0.99, "identical records should attach with near-certain confidence")
		} else {
			assert.Equal(t, 1.0, conf, "singletons carry the sentinel confidence")
		}
	}
}

func TestResolveRejectsIncompatibleModel(t *testing.T) {
	cfgPath, outPath, settingsDir := writeResolveFixture(t)
	withConfigPath(t, cfgPath)

	// Model trained against a single field, config now declares two
	sch, err := schema.New([]string{"name"})
	require.NoError(t, err)
	model := &classify.Model{Weights: []float64{5}, Intercept: -2.5}
	require.NoError(t, settings.SaveModel(filepath.Join(settingsDir, "model.gob"), model, sch))

	err = runResolve(resolveCmd)
	require.Error(t, err)

	var mismatch *types.ModelCompatibilityError
	assert.ErrorAs(t, err, &mismatch)
	assert.Contains(t, err.Error(), "delete", "the error should say how to recover")

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "no output may be written when the model is rejected")
}

func TestResolveOutputFlagWinsOverConfig(t *testing.T) {
	cfgPath, configuredOut, settingsDir := writeResolveFixture(t)
	withConfigPath(t, cfgPath)

	sch, err := schema.New([]string{"name", "city"})
	require.NoError(t, err)
	model := &classify.Model{Weights: []float64{5, 5}, Intercept: -2.5}
	require.NoError(t, settings.SaveModel(filepath.Join(settingsDir, "model.gob"), model, sch))

	flagOut := filepath.Join(t.TempDir(), "elsewhere.csv")
	setResolveFlag(t, "output", flagOut)

	require.NoError(t, runResolve(resolveCmd))

	_, err = os.Stat(flagOut)
	assert.NoError(t, err, "results should land at the flag path")
	_, err = os.Stat(configuredOut)
	assert.True(t, os.IsNotExist(err), "configured path must not be written when the flag overrides it")
}
