package pagetext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText_StripsNonContentTags(t *testing.T) {
	page := `<html><head><title>Shop</title><style>.a{color:red}</style></head>
<body>
  <script>trackUser();</script>
  <h1>Welcome</h1>
  <p>Find what you need.</p>
  <noscript>Enable JavaScript</noscript>
  <svg><path d="M0 0"/></svg>
</body></html>`

	got := ExtractText(page, nil)

	assert.Contains(t, got, "Welcome")
	assert.Contains(t, got, "Find what you need.")
	assert.NotContains(t, got, "trackUser")
	assert.NotContains(t, got, "color:red")
	assert.NotContains(t, got, "Enable JavaScript")
	assert.NotContains(t, got, "Shop", "title lives in head, not body text")
}

func TestExtractText_BlockTagsBecomeNewlines(t *testing.T) {
	page := `<body><h1>Menu</h1><ul><li>Soup</li><li>Bread</li></ul><p>Daily specials below.</p></body>`

	got := ExtractText(page, nil)
	lines := strings.Split(got, "\n")

	assert.Contains(t, lines, "Menu")
	assert.Contains(t, lines, "Soup")
	assert.Contains(t, lines, "Bread")
	assert.Contains(t, lines, "Daily specials below.")
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	page := "<body>\n\n\n  <div>   spaced    out  </div>\n\n<div></div>\n</body>"

	got := ExtractText(page, nil)

	assert.Equal(t, "spaced out", got)
}

func TestExtractText_DropsComments(t *testing.T) {
	got := ExtractText(`<body><!-- hidden note --><p>visible</p></body>`, nil)

	assert.Equal(t, "visible", got)
}

func TestExtractText_TruncatesAtLimit(t *testing.T) {
	long := strings.Repeat("word ", 100)
	cfg := Config{MaxOutputSize: 40}

	got := ExtractText("<body><p>"+long+"</p></body>", &cfg)

	assert.True(t, strings.HasSuffix(got, "... (truncated)"))
	assert.LessOrEqual(t, len(got), 40+len("\n... (truncated)"))
}

func TestExtractText_NoBodyFallsBackToDocument(t *testing.T) {
	got := ExtractText("just a fragment of text", nil)

	assert.Contains(t, got, "just a fragment of text")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Checkout", Title(`<html><head><title> Checkout </title></head><body/></html>`))
	assert.Equal(t, "", Title(`<html><body><p>untitled</p></body></html>`))
}
