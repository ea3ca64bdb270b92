// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/pkg/errutil"
)

func runCatalogCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCatalogCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCatalogValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, catalog.DefaultYAML(), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 1.0.0\nbudget: 0\narchetypes: []\n"), 0o600))

	out, err := runCatalogCmd(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (version")
	assert.Contains(t, out, "budget 100")

	_, err = runCatalogCmd(t, "validate", bad)
	errutil.AssertErrorCode(t, err, catalog.CodeCatalogInvalid)

	_, err = runCatalogCmd(t, "validate", filepath.Join(dir, "missing.yaml"))
	errutil.AssertErrorCode(t, err, catalog.CodeCatalogInvalid)
}

func TestCatalogSchema(t *testing.T) {
	out, err := runCatalogCmd(t, "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), "schema output must be JSON")
	assert.Contains(t, out, catalog.SchemaID)

	path := filepath.Join(t.TempDir(), "catalog.schema.json")
	out, err = runCatalogCmd(t, "schema", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestCatalogDefaultAndList(t *testing.T) {
	out, err := runCatalogCmd(t, "default")
	require.NoError(t, err)
	assert.Equal(t, string(catalog.DefaultYAML()), out)

	out, err = runCatalogCmd(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Budget: 100 tokens")
	assert.Contains(t, out, "Battleship")
	assert.Contains(t, out, "Reinforced Hull")
}
