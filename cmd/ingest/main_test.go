package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textile/backend/internal/interfaces/http/dto"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--store", "memory"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const orderCSV = "Style No.,Description,Qty,Unit Price\nX1,Twill,2,1200\nY2,Denim,,50\n"

func TestNormalizeCommand(t *testing.T) {
	out, err := run(t, "normalize", writeFile(t, "order.csv", orderCSV))
	require.NoError(t, err)
	assert.Contains(t, out, "X1")
	assert.Contains(t, out, "Denim")

	_, err = run(t, "normalize", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "--classifier", "header", writeFile(t, "order.csv", orderCSV))
	require.NoError(t, err)

	var resp dto.ImportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "imported", resp.Outcome)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "X1", resp.Items[0].Code)
	assert.Equal(t, int64(1), resp.Items[1].Quantity, "missing quantity takes the default")

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := run(t, "classify", writeFile(t, "order.pdf", orderCSV))
		assert.Error(t, err)
	})
}

func TestReserveCommand(t *testing.T) {
	out, err := run(t, "reserve", "--count", "3", "orderNumberCounter")
	require.NoError(t, err)
	assert.Equal(t, []string{"10004", "10005", "10006"}, strings.Fields(out))

	_, err = run(t, "reserve", "bogusCounter")
	assert.Error(t, err)

	_, err = run(t, "reserve", "--count", "0", "invoiceCounter")
	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	_, err := run(t, "reserve")
	assert.Error(t, err, "namespace argument is required")

	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}
