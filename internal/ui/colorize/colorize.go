package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether ANSI colors may be emitted.
func Enabled() bool {
	return os.Getenv("X2ARM_NO_COLOR") == "" && os.Getenv("NO_COLOR") == ""
}

// getAssemblyLexer returns a lexer for the given dialect with fallbacks.
// Intel and Go syntax read well enough through the nasm lexer.
func getAssemblyLexer(dialect string) chroma.Lexer {
	candidates := []string{"nasm", "gas"}
	if dialect == "gnu" {
		candidates = []string{"gas", "nasm"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{StyleName, "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a listing written in dialect ("intel", "gnu" or "go").
func Assembly(code, dialect string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer(dialect)
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	// Formatters terminate their output with a reset and sometimes a newline.
	out := buf.String()
	if !strings.HasSuffix(code, "\n") && strings.HasSuffix(StripANSI(out), "\n") {
		i := strings.LastIndexByte(out, '\n')
		out = out[:i] + out[i+1:]
	}
	return out, nil
}

// Instruction highlights a single instruction's text, returning it unchanged
// when colors are off or highlighting fails.
func Instruction(text, dialect string) string {
	out, err := Assembly(text, dialect)
	if err != nil {
		return text
	}
	return out
}

// Address renders an address in the listing's gray.
func Address(s string) string {
	if !Enabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;110;110;110m%s\033[0m", s)
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
