package styles

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	md := "# x2arm\n\n| Field | Value |\n|---|---|\n| Format | ELF |\n"
	out := RenderMarkdown(md, 80)
	for _, want := range []string{"x2arm", "Format", "ELF"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered markdown missing %q:\n%s", want, out)
		}
	}
}
