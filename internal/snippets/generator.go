// Package snippets generates the integration code an operator pastes into
// the landing page for one experiment.
package snippets

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pagesplit/pagesplit/internal/store"
)

type Framework string

const (
	FrameworkHTML  Framework = "html"
	FrameworkReact Framework = "react"
	FrameworkVue   Framework = "vue"
)

type Config struct {
	Experiment *store.Experiment
	ServerURL  string
}

type SnippetFile struct {
	Filename string
	Content  string
}

type templateData struct {
	Name           string
	NamePascal     string
	ServerURL      string
	TargetSelector string
	ControlContent string
	WinnerContent  string
	WinnerClass    string
}

// Generate produces the embed code for an experiment. Completed
// experiments with a winner get static winner-only markup with no testing
// logic left in the page.
func Generate(framework Framework, config Config) ([]SnippetFile, error) {
	exp := config.Experiment
	data := templateData{
		Name:           exp.Name,
		NamePascal:     toPascalCase(exp.Name),
		ServerURL:      config.ServerURL,
		TargetSelector: exp.TargetSelector,
	}
	if control := exp.Control(); control != nil {
		data.ControlContent = control.Content
	}

	if winner := exp.Winner(); winner != nil && exp.Status == store.StatusCompleted {
		data.WinnerContent = winner.Content
		data.WinnerClass = winner.CSSClass
		return generateStaticWinner(framework, data)
	}

	switch framework {
	case FrameworkReact:
		return render(framework, data, "Experiment"+data.NamePascal+".jsx", reactTemplate)
	case FrameworkVue:
		return render(framework, data, "Experiment"+data.NamePascal+".vue", vueTemplate)
	default:
		return render(framework, data, "", htmlTemplate)
	}
}

const htmlTemplate = `<!-- pagesplit: {{.Name}} -->
<script src="{{.ServerURL}}/ps.js" defer></script>

<!-- The script swaps the element(s) matching: {{.TargetSelector}} -->
<!-- Mark the conversion element: -->
<!-- <a href="/download" data-ps-convert="{{.Name}}">Get the book</a> -->
`

const reactTemplate = `import { useEffect } from 'react';

// pagesplit: {{.Name}}
export function Experiment{{.NamePascal}}() {
  useEffect(() => {
    const s = document.createElement('script');
    s.src = '{{.ServerURL}}/ps.js';
    s.defer = true;
    document.head.appendChild(s);
    return () => { document.head.removeChild(s); };
  }, []);
  return null;
}
`

const vueTemplate = `<script setup>
// pagesplit: {{.Name}}
import { onMounted } from 'vue';

onMounted(() => {
  const s = document.createElement('script');
  s.src = '{{.ServerURL}}/ps.js';
  s.defer = true;
  document.head.appendChild(s);
});
</script>
`

const staticWinnerTemplate = `<!-- pagesplit: {{.Name}} is complete; the winner is baked in. -->
<!-- Replace the content of {{.TargetSelector}} with: -->
{{if .WinnerContent}}{{.WinnerContent}}{{end}}{{if .WinnerClass}}
<!-- and apply the class: {{.WinnerClass}} -->{{end}}
<!-- The /ps.js script tag can be removed once this is deployed. -->
`

func generateStaticWinner(framework Framework, data templateData) ([]SnippetFile, error) {
	filename := ""
	if framework == FrameworkReact {
		filename = "Experiment" + data.NamePascal + ".jsx"
	}
	return render(framework, data, filename, staticWinnerTemplate)
}

func render(framework Framework, data templateData, filename, content string) ([]SnippetFile, error) {
	tmpl, err := template.New(string(framework)).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snippet template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render snippet: %w", err)
	}
	if filename == "" {
		filename = data.Name + ".html"
	}
	return []SnippetFile{{Filename: filename, Content: buf.String()}}, nil
}

func toPascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}
