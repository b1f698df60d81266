// Package content renders configuration for display on the terminal:
// profiles are serialized as YAML with secrets redacted and optionally
// syntax highlighted.
package content

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"gopkg.in/yaml.v3"

	"github.com/universal-console/garage/internal/interfaces"
)

// Redacted replaces secret values in rendered output
const Redacted = "********"

// SyntaxHighlighter colors source text for a terminal
type SyntaxHighlighter struct {
	formatter chroma.Formatter
	style     *chroma.Style
	theme     string
}

// NewSyntaxHighlighter creates a highlighter. Unknown formatter or theme
// names fall back to chroma's defaults.
func NewSyntaxHighlighter(themeName, formatterName string) *SyntaxHighlighter {
	formatter := formatters.Get(formatterName)
	if formatter == nil {
		formatter = formatters.Fallback
	}

	style := styles.Get(themeName)
	if style == nil {
		style = styles.GitHub
	}

	return &SyntaxHighlighter{
		formatter: formatter,
		style:     style,
		theme:     themeName,
	}
}

// Highlight applies syntax highlighting to code written in language
func (sh *SyntaxHighlighter) Highlight(code, language string) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var highlighted strings.Builder
	if err := sh.formatter.Format(&highlighted, sh.style, iterator); err != nil {
		return code, err
	}
	return highlighted.String(), nil
}

// RedactProfile returns a copy of profile with credentials masked
func RedactProfile(profile *interfaces.Profile) interfaces.Profile {
	out := *profile
	if out.Auth.Token != "" {
		out.Auth.Token = Redacted
	}
	if out.Auth.Password != "" {
		out.Auth.Password = Redacted
	}
	if len(profile.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(profile.Metadata))
		for k, v := range profile.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// RenderProfile serializes profile as YAML with secrets redacted. A nil
// highlighter returns plain text.
func RenderProfile(profile *interfaces.Profile, sh *SyntaxHighlighter) (string, error) {
	if profile == nil {
		return "", fmt.Errorf("profile cannot be nil")
	}

	redacted := RedactProfile(profile)
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}

	text := string(data)
	if sh == nil {
		return text, nil
	}
	return sh.Highlight(text, "yaml")
}
