// ABOUTME: Interactive wizard for the skim storage backend, data directory and URL file
// ABOUTME: Walks a table of fields one at a time; the setup command saves the result to config.yaml
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/storage"
)

// Step is the index of the field being edited. StepDone follows the last one.
type Step int

const (
	StepBackend Step = iota
	StepDataDir
	StepURLFile
	StepDone
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// setupField is one wizard question. An empty answer takes the default.
type setupField struct {
	label  string
	hint   string
	def    string
	input  textinput.Model
	accept func(string) (string, error)
}

// SetupModel is the bubbletea model for the setup wizard.
type SetupModel struct {
	step     Step
	fields   [StepDone]setupField
	err      error
	quitting bool
}

func defaultDataDir() string {
	dir, err := config.DefaultDataDir()
	if err != nil {
		return ".skim"
	}
	return dir
}

func defaultURLFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return config.DefaultURLFileName
	}
	return filepath.Join(dir, config.DefaultURLFileName)
}

func acceptBackend(v string) (string, error) {
	v = strings.ToLower(v)
	if v != storage.BackendSQLite && v != storage.BackendBadger {
		return "", fmt.Errorf("backend must be %s or %s", storage.BackendSQLite, storage.BackendBadger)
	}
	return v, nil
}

func acceptPath(v string) (string, error) { return v, nil }

func newField(label, hint, def, value string, accept func(string) (string, error)) setupField {
	in := textinput.New()
	in.Placeholder = def
	in.Width = 50
	in.SetValue(value)
	return setupField{label: label, hint: hint, def: def, input: in, accept: accept}
}

// NewSetupModel returns a wizard pre-filled from cfg.
func NewSetupModel(cfg *config.Config) SetupModel {
	fields := [StepDone]setupField{
		newField("Storage Backend", "sqlite or badger", storage.BackendSQLite, cfg.Backend, acceptBackend),
		newField("Data Directory", "where the cache lives", defaultDataDir(), cfg.DataDir, acceptPath),
		newField("Feed URL File", "one feed URL per line", defaultURLFile(), cfg.URLFile, acceptPath),
	}
	fields[0].input.Focus()
	return SetupModel{step: StepBackend, fields: fields}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.step < StepDone {
				return m.commit()
			}
		}
	}
	if m.step >= StepDone {
		return m, nil
	}

	var cmd tea.Cmd
	f := &m.fields[m.step]
	f.input, cmd = f.input.Update(msg)
	return m, cmd
}

// commit validates the current answer and moves to the next field.
func (m SetupModel) commit() (tea.Model, tea.Cmd) {
	f := &m.fields[m.step]
	val := strings.TrimSpace(f.input.Value())
	if val == "" {
		val = f.def
	}
	val, err := f.accept(val)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	f.input.SetValue(val)
	f.input.Blur()

	m.step++
	if m.step == StepDone {
		return m, tea.Quit
	}
	m.fields[m.step].input.Focus()
	return m, textinput.Blink
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   skim"))
	b.WriteString(titleStyle.Render(" - Setup"))
	b.WriteString("\n\n")
	b.WriteString("Choose where skim keeps its cache and its feed list.\n\n")

	if m.step == StepDone {
		b.WriteString(successStyle.Render("Setup complete! Settings saved to config.yaml."))
		b.WriteString("\n\n")
		for _, f := range m.fields {
			fmt.Fprintf(&b, "  %-16s %s\n", f.label+":", f.input.Value())
		}
		b.WriteString("\n")
		return b.String()
	}

	for _, f := range m.fields[:m.step] {
		fmt.Fprintf(&b, "  %s: %s\n", f.label, f.input.Value())
	}
	if m.step > 0 {
		b.WriteString("\n")
	}

	f := m.fields[m.step]
	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d: %s", m.step+1, len(m.fields), f.label)))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(fmt.Sprintf("(%s, press Enter for %s)", f.hint, f.def)))
	b.WriteString("\n")
	b.WriteString(f.input.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// Apply copies the answers onto cfg, leaving other settings alone.
func (m SetupModel) Apply(cfg *config.Config) {
	cfg.Backend = m.fields[StepBackend].input.Value()
	cfg.DataDir = m.fields[StepDataDir].input.Value()
	cfg.URLFile = m.fields[StepURLFile].input.Value()
}

// ShouldSave reports whether the wizard finished without being canceled.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}
