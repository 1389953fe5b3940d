package livedata

import (
	"fmt"
	"strings"
	"text/template"
)

// Render executes a text/template against the live document. The document is
// the template's dot, so an object field renders as {{.price}}.
func Render(tmpl string, value Value) (string, error) {
	t, err := template.New("livedata").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse live template: %w", err)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, value.Raw()); err != nil {
		return "", fmt.Errorf("render live template: %w", err)
	}
	return sb.String(), nil
}
