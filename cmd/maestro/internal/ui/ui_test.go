package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsColumns(t *testing.T) {
	var out bytes.Buffer
	u := New(&out, &bytes.Buffer{})

	table := u.NewTable("PID", "MODE")
	table.AddRow("12345", "owned")
	table.AddRow("7")
	table.Render()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "PID")
	assert.Contains(t, lines[2], "12345 │ owned")
	assert.Equal(t, "7     │", lines[3])
}

func TestMessagesGoToErr(t *testing.T) {
	var out, errOut bytes.Buffer
	u := New(&out, &errOut)

	u.Success("started")
	u.Error("failed")
	u.Println("child line")

	assert.Equal(t, "child line\n", out.String())
	assert.Contains(t, errOut.String(), "started")
	assert.Contains(t, errOut.String(), "failed")
}

func TestEmptyTableRendersNothing(t *testing.T) {
	var out bytes.Buffer
	New(&out, &out).NewTable().Render()
	assert.Empty(t, out.String())
}
