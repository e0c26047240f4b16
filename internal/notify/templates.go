package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/BurntSushi/toml"
)

// DefaultLanguage is used when a template is missing for the requested language.
const DefaultLanguage = "en"

//go:embed templates.toml
var defaultTemplates []byte

// catalogFile is the on-disk TOML shape of a template catalog.
type catalogFile struct {
	Template []templateEntry `toml:"template"`
}

type templateEntry struct {
	ID       string `toml:"id"`
	Language string `toml:"language"`
	Subject  string `toml:"subject"`
	Body     string `toml:"body"`
}

type catalogKey struct {
	ID       string
	Language string
}

type renderedTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Catalog holds parsed notification templates keyed by id and language.
type Catalog struct {
	templates map[catalogKey]renderedTemplate
}

// DefaultCatalog parses the embedded template set. It panics on a bad embed,
// which can only happen at build time.
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("notify: embedded templates invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a TOML template catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	c, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", path, err)
	}
	return c, nil
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	c := &Catalog{templates: make(map[catalogKey]renderedTemplate)}
	for _, entry := range file.Template {
		if entry.ID == "" {
			return nil, fmt.Errorf("template entry missing id")
		}
		lang := entry.Language
		if lang == "" {
			lang = DefaultLanguage
		}

		subj, err := template.New(entry.ID + "/subject").Parse(entry.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s/%s subject: %w", entry.ID, lang, err)
		}
		body, err := template.New(entry.ID + "/body").Parse(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s/%s body: %w", entry.ID, lang, err)
		}

		c.templates[catalogKey{ID: entry.ID, Language: lang}] = renderedTemplate{
			subject: subj, body: body,
		}
	}
	return c, nil
}

// Render produces the subject and body for a template in the given language,
// falling back to the default language when no localized entry exists.
func (c *Catalog) Render(id, language string, fields map[string]string) (subject, body string, err error) {
	if language == "" {
		language = DefaultLanguage
	}
	tmpl, ok := c.templates[catalogKey{ID: id, Language: language}]
	if !ok {
		tmpl, ok = c.templates[catalogKey{ID: id, Language: DefaultLanguage}]
	}
	if !ok {
		return "", "", fmt.Errorf("no template %q for language %q", id, language)
	}

	var subjBuf, bodyBuf bytes.Buffer
	if err := tmpl.subject.Execute(&subjBuf, fields); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := tmpl.body.Execute(&bodyBuf, fields); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", id, err)
	}
	return subjBuf.String(), bodyBuf.String(), nil
}
