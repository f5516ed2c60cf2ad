package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// StyleName is the chroma style registered by this package.
const StyleName = "x2arm-dark"

// DisasmDark colors x86 listings: mnemonics white, registers teal,
// immediates pink, symbols gold.
var DisasmDark = styles.Register(chroma.MustNewStyle(StyleName, chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        "#8A8A8A",
	chroma.CommentPreproc: "#8A8A8A",

	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.KeywordType:   "#C4A7E7", // size specifiers (qword ptr)
	chroma.Name:          "#7C9C9D",
	chroma.NameBuiltin:   "#7C9C9D",
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameFunction:  "#FFFFFF", // nasm tokenises mnemonics as functions
	chroma.NameLabel:     "#FFD700",
	chroma.NameAttribute: "#FFD700",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberOct:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
