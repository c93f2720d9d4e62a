package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "NAME"}, [][]string{{"a1", "alice"}, {"b2", "bob"}})
	for _, want := range []string{"ID", "NAME", "alice", "bob", "╭"} {
		assert.Contains(t, out, want)
	}
}

func TestSuccessFailure(t *testing.T) {
	assert.Contains(t, Success("done"), "done")
	assert.Contains(t, Success("done"), SymbolCheck)
	assert.Contains(t, Failure("nope"), SymbolCross)
}
