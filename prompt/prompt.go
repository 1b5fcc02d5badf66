package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template is a named text/template prompt.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content. Missing keys are an error at render time.
func NewTemplate(name, content string) (*Template, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("template %s is empty", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render executes the template against data.
func (t *Template) Render(data any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Manager is a registry of prompt templates. Safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{
		templates: make(map[string]*Template),
	}
}

// Register adds a template; names must be unique.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[tmpl.Name]; exists {
		return fmt.Errorf("template %s already registered", tmpl.Name)
	}
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString parses and registers content under name.
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get retrieves a template by name.
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return tmpl, nil
}

// Render renders the named template.
func (m *Manager) Render(name string, data any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(data)
}

// Builder assembles a user prompt out of titled sections.
type Builder struct {
	parts []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a raw line.
func (b *Builder) Add(part string) *Builder {
	if strings.TrimSpace(part) != "" {
		b.parts = append(b.parts, strings.TrimSpace(part))
	}
	return b
}

// AddFormat appends a formatted line.
func (b *Builder) AddFormat(format string, args ...any) *Builder {
	return b.Add(fmt.Sprintf(format, args...))
}

// AddSection appends "TITLE:\ncontent". Blank content is skipped.
func (b *Builder) AddSection(title, content string) *Builder {
	content = strings.TrimSpace(content)
	if content == "" {
		return b
	}
	b.parts = append(b.parts, fmt.Sprintf("%s:\n%s", title, content))
	return b
}

// AddFenced appends content between explicit start and end markers so the
// model can tell data apart from instructions.
func (b *Builder) AddFenced(tag, content string) *Builder {
	b.parts = append(b.parts, fmt.Sprintf("<%s_START>\n%s\n<%s_END>", tag, strings.TrimSpace(content), tag))
	return b
}

// Build joins the sections with blank lines.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "\n\n")
}
