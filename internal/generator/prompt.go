package generator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"

	"github.com/l0p7/worryhero/internal/catalog"
)

// DefaultPromptTemplate renders the icon request for a single catalog item.
const DefaultPromptTemplate = `Generate a high-quality 3D rendered icon of: {{ .DisplayName }} ({{ .Description }}).
Style: {{ .StyleHints | join ", " }}.
White background. No text. High resolution.`

// PromptData is the value a prompt template is executed against.
type PromptData struct {
	ID          string
	Kind        string
	DisplayName string
	MonsterName string
	Trait       string
	Description string
	StyleHints  []string
}

// PromptBuilder renders the generation description for a catalog item.
// It is safe for concurrent use.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder compiles source with the Sprig function set. Sprig's
// environment and filesystem helpers are removed so prompts cannot leak
// process state to the remote service.
func NewPromptBuilder(source string) (*PromptBuilder, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("generator: prompt template required")
	}
	funcs := sprig.TxtFuncMap()
	for _, name := range []string{"env", "expandenv", "readDir", "mustReadDir", "readFile", "mustReadFile", "glob"} {
		delete(funcs, name)
	}
	tmpl, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("generator: compile prompt: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the prompt for item.
func (b *PromptBuilder) Build(item catalog.Item) (string, error) {
	data := PromptData{
		ID:          item.ID,
		Kind:        string(item.Kind),
		DisplayName: item.DisplayName,
		MonsterName: item.MonsterName,
		Trait:       item.Trait,
		Description: item.Description,
		StyleHints:  item.StyleHints,
	}
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("generator: render prompt for %q: %w", item.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
