package jsonio

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeysAndIsCompact(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	b, err := Canonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`+"\n", string(b))
}

func TestCanonicalIdempotent(t *testing.T) {
	v := map[string]any{"x": 1.5, "y": []int{3, 2, 1}}
	once, err := Canonical(v)
	require.NoError(t, err)

	var roundTripped any
	require.NoError(t, json.Unmarshal(once, &roundTripped))
	twice, err := Canonical(roundTripped)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestCanonicalRejectsNaNAndInf(t *testing.T) {
	_, err := Canonical(map[string]float64{"x": math.NaN()})
	var nde *NumericDomainError
	require.ErrorAs(t, err, &nde)

	_, err = Canonical(map[string]float64{"x": math.Inf(1)})
	require.ErrorAs(t, err, &nde)
}

func TestSHA256HexDeterministic(t *testing.T) {
	a := map[string]float64{"min_interval_ms": 60, "impact_cap_ratio": 0.1}
	b := map[string]float64{"impact_cap_ratio": 0.1, "min_interval_ms": 60}

	ha, err := SHA256Hex(a)
	require.NoError(t, err)
	hb, err := SHA256Hex(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestWriteAtomicIdempotentBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")

	v := map[string]float64{"min_interval_ms": 55, "impact_cap_ratio": 0.12}
	require.NoError(t, WriteAtomic(path, v))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, WriteAtomic(path, v))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// no leftover tmp files
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAtomicRejectsNumericDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	err := WriteAtomic(path, map[string]float64{"x": math.NaN()})
	var nde *NumericDomainError
	require.ErrorAs(t, err, &nde)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
