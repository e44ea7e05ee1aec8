package docs

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	text := Get()
	for _, want := range []string{"## Table", "## Row", "## SearchIterator", "UpdateSimpleObjectColumn"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected the guide to mention %q", want)
		}
	}
}
