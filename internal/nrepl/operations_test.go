package nrepl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationConstructors(t *testing.T) {
	assert.Equal(t, Operation{"op": "clone"}, Clone())
	assert.Equal(t, Operation{"op": "close"}, Close())
	assert.Equal(t, Operation{"op": "eval", "code": "(inc 1)"}, Eval("(inc 1)"))
	assert.Equal(t, Operation{"op": "describe"}, Describe())
	assert.Equal(t, Operation{"op": "interrupt", "interrupt-id": int64(3)}, Interrupt(3))
	assert.Equal(t, Operation{"op": "stdin", "stdin": "42\n"}, Stdin("42\n"))
}

func TestEvalWithOmitsEmptyFields(t *testing.T) {
	op := EvalWith("(inc 1)", "", "", 0, 0)
	assert.Equal(t, Eval("(inc 1)"), op)

	op = EvalWith("(inc 1)", "user", "core.clj", 10, 2)
	assert.Equal(t, "user", op["ns"])
	assert.Equal(t, "core.clj", op["file"])
	assert.Equal(t, 10, op["line"])
	assert.Equal(t, 2, op["column"])
}

func TestLoadFile(t *testing.T) {
	op := LoadFile("/tmp/core.clj", "core.clj", "(ns core)")
	assert.Equal(t, "load-file", op["op"])
	assert.Equal(t, "(ns core)", op["file"])
	assert.Equal(t, "core.clj", op["file-name"])
	assert.Equal(t, "/tmp/core.clj", op["file-path"])
}

func TestParseServerInfo(t *testing.T) {
	resp := Response{
		"ops": map[string]any{
			"eval":  map[string]any{},
			"clone": map[string]any{},
		},
		"versions": map[string]any{
			"nrepl": map[string]any{
				"major":          int64(1),
				"minor":          int64(0),
				"version-string": "1.0.0",
			},
			"clojure": map[string]any{
				"version-string": "1.11.1",
			},
			"weird": map[string]any{
				"version-string": "not a version",
			},
		},
	}

	info, err := ParseServerInfo(resp)
	require.NoError(t, err)

	assert.True(t, info.Supports("eval"))
	assert.True(t, info.Supports("clone"))
	assert.False(t, info.Supports("interrupt"))

	nrepl, ok := info.Versions["nrepl"]
	require.True(t, ok)
	assert.Equal(t, uint64(1), nrepl.Major)

	clojure, ok := info.Versions["clojure"]
	require.True(t, ok)
	assert.Equal(t, uint64(11), clojure.Minor)

	// 不可解析的版本条目被跳过。
	_, ok = info.Versions["weird"]
	assert.False(t, ok)
}

func TestParseServerInfoMissingOps(t *testing.T) {
	_, err := ParseServerInfo(Response{})
	assert.Error(t, err)
}
