package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dstet/pathsync/internal/sync"
	"github.com/dstet/pathsync/internal/ui"
)

// PlanAction is what the user decided to do with a reviewed plan.
type PlanAction int

const (
	// PlanActionNone means the user quit without applying anything.
	PlanActionNone PlanAction = iota
	// PlanActionApply means the selected actions should be applied.
	PlanActionApply
)

// PlanReviewResult contains the result of a plan review.
type PlanReviewResult struct {
	Action   PlanAction
	Selected []sync.Action
}

// Includes reports whether a was selected. It is meant for sync.Plan.Keep.
func (r PlanReviewResult) Includes(a sync.Action) bool {
	for _, s := range r.Selected {
		if actionKey(s) == actionKey(a) {
			return true
		}
	}
	return false
}

type planListKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Toggle    key.Binding
	ToggleAll key.Binding
	Apply     key.Binding
	Filter    key.Binding
	ClearFlt  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultPlanListKeyMap() planListKeyMap {
	return planListKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "tab"),
			key.WithHelp("space/tab", "toggle"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle all"),
		),
		Apply: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply selected"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFlt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "skip pair"),
		),
	}
}

// PlanListModel is the BubbleTea model for reviewing a sync plan before it
// is applied.
type PlanListModel struct {
	table       table.Model
	plan        *sync.Plan
	actions     []sync.Action
	filtered    []sync.Action
	selected    map[string]bool
	keys        planListKeyMap
	result      PlanReviewResult
	filter      string
	filtering   bool
	showHelp    bool
	confirmMode bool
	width       int
	height      int
	quitting    bool
	pathWidth   int
}

var planListStyles = struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Help        lipgloss.Style
	Filter      lipgloss.Style
	FilterInput lipgloss.Style
	Confirm     lipgloss.Style
	Status      lipgloss.Style
	DetailBox   lipgloss.Style
	DetailTitle lipgloss.Style
}{
	Title:       Styles.Title.Padding(0, 1),
	Subtitle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Filter:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	FilterInput: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Confirm:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(1, 2),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	DetailBox:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	DetailTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
}

const (
	planListCheckboxWidth = 3
	planListKindWidth     = 8
	planListPathWidth     = 60
	planListColumnPadding = 2
	planListColumnCount   = 3
	planListDetailLines   = 3
	planListDetailHeight  = planListDetailLines + 1 + 2
)

func planListColumns(totalWidth int) ([]table.Column, int) {
	pathWidth := planListPathWidth
	if totalWidth > 0 {
		fixed := planListCheckboxWidth + planListKindWidth + planListColumnPadding*planListColumnCount
		pathWidth = max(totalWidth-fixed, 20)
	}
	return []table.Column{
		{Title: " ", Width: planListCheckboxWidth},
		{Title: "Action", Width: planListKindWidth},
		{Title: "Path", Width: pathWidth},
	}, pathWidth
}

// actionSymbol is the uncolored marker for kind; table cells are measured
// by display width, which escape sequences would distort.
func actionSymbol(kind sync.ActionKind) string {
	switch kind {
	case sync.ActionCreate:
		return ui.SymbolCreate
	case sync.ActionUpdate:
		return ui.SymbolUpdate
	case sync.ActionDelete:
		return ui.SymbolDelete
	default:
		return ui.SymbolPending
	}
}

func actionKey(a sync.Action) string {
	return string(a.Kind) + ":" + a.Path
}

// NewPlanListModel creates a review model for plan. Every action starts
// selected.
func NewPlanListModel(plan *sync.Plan) PlanListModel {
	actions := plan.Actions()
	selected := make(map[string]bool, len(actions))
	for _, a := range actions {
		selected[actionKey(a)] = true
	}

	columns, pathWidth := planListColumns(0)
	m := PlanListModel{
		plan:      plan,
		actions:   actions,
		filtered:  actions,
		selected:  selected,
		keys:      defaultPlanListKeyMap(),
		pathWidth: pathWidth,
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(m.actionsToRows(actions)),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	m.table = t

	return m
}

func (m PlanListModel) actionsToRows(actions []sync.Action) []table.Row {
	rows := make([]table.Row, len(actions))
	for i, a := range actions {
		checkbox := "[ ]"
		if m.selected[actionKey(a)] {
			checkbox = "[x]"
		}
		kind := actionSymbol(a.Kind) + " " + string(a.Kind)
		rows[i] = table.Row{
			checkbox,
			truncateText(kind, planListKindWidth),
			truncateLeft(a.Path, m.pathWidth),
		}
	}
	return rows
}

func (m PlanListModel) renderDetailPanel() string {
	width := m.width
	if width <= 0 {
		width = planListCheckboxWidth + planListKindWidth + m.pathWidth + planListColumnPadding*planListColumnCount
	}
	contentWidth := max(width-4, 10)

	a := m.current()
	var lines []string
	switch {
	case a.Path == "":
		lines = []string{"Nothing selected."}
	case a.Kind == sync.ActionDelete:
		lines = []string{
			"remove " + truncateLeft(filepath.Join(m.plan.Pair.Destination, a.Path), contentWidth-7),
		}
	default:
		lines = []string{
			"from " + truncateLeft(filepath.Join(m.plan.Pair.Source, a.Path), contentWidth-5),
			"to   " + truncateLeft(filepath.Join(m.plan.Pair.Destination, a.Path), contentWidth-5),
			truncateText(fmt.Sprintf("md5 %s  mtime %s", a.Fingerprint.Hash, a.Fingerprint.Modified), contentWidth),
		}
	}
	lines = padLines(lines, planListDetailLines)

	header := planListStyles.DetailTitle.Render("Details")
	content := append([]string{header}, lines...)
	return planListStyles.DetailBox.Width(width).Render(strings.Join(content, "\n"))
}

// Init implements tea.Model.
func (m PlanListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PlanListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-9-planListDetailHeight, 5))
		columns, pathWidth := planListColumns(msg.Width)
		m.pathWidth = pathWidth
		m.table.SetColumns(columns)
		m.table.SetRows(m.actionsToRows(m.filtered))

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = PlanReviewResult{
					Action:   PlanActionApply,
					Selected: m.selectedActions(),
				}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
			}
			return m, nil
		}

		if m.filtering {
			switch msg.String() {
			case "enter":
				m.filtering = false
			case "esc":
				m.filter = ""
				m.filtering = false
				m.applyFilter()
			case "backspace":
				if m.filter != "" {
					r := []rune(m.filter)
					m.filter = string(r[:len(r)-1])
					m.applyFilter()
				}
			default:
				if msg.Type == tea.KeyRunes {
					m.filter += string(msg.Runes)
					m.applyFilter()
				}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.result = PlanReviewResult{Action: PlanActionNone}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, nil
		case key.Matches(msg, m.keys.ClearFlt):
			m.filter = ""
			m.applyFilter()
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			if len(m.filtered) > 0 {
				k := actionKey(m.current())
				m.selected[k] = !m.selected[k]
				m.table.SetRows(m.actionsToRows(m.filtered))
			}
			return m, nil
		case key.Matches(msg, m.keys.ToggleAll):
			count := 0
			for _, a := range m.filtered {
				if m.selected[actionKey(a)] {
					count++
				}
			}
			selectAll := count < len(m.filtered)/2+1
			for _, a := range m.filtered {
				m.selected[actionKey(a)] = selectAll
			}
			m.table.SetRows(m.actionsToRows(m.filtered))
			return m, nil
		case key.Matches(msg, m.keys.Apply):
			m.confirmMode = true
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *PlanListModel) applyFilter() {
	if m.filter == "" {
		m.filtered = m.actions
	} else {
		var filtered []sync.Action
		lower := strings.ToLower(m.filter)
		for _, a := range m.actions {
			if strings.Contains(strings.ToLower(a.Path), lower) ||
				strings.Contains(string(a.Kind), lower) {
				filtered = append(filtered, a)
			}
		}
		m.filtered = filtered
	}
	m.table.SetRows(m.actionsToRows(m.filtered))
	if m.table.Cursor() >= len(m.filtered) {
		m.table.SetCursor(max(len(m.filtered)-1, 0))
	}
}

func (m PlanListModel) current() sync.Action {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.filtered) {
		return m.filtered[cursor]
	}
	return sync.Action{}
}

func (m PlanListModel) selectedActions() []sync.Action {
	var selected []sync.Action
	for _, a := range m.actions {
		if m.selected[actionKey(a)] {
			selected = append(selected, a)
		}
	}
	return selected
}

// View implements tea.Model.
func (m PlanListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(planListStyles.Title.Render("Review Sync Plan"))
	b.WriteString("\n")
	b.WriteString(planListStyles.Subtitle.Render(truncateLeft(m.plan.Pair.String(), max(m.width-2, 40))))
	b.WriteString("\n\n")

	if m.filter != "" || m.filtering {
		val := planListStyles.FilterInput.Render(m.filter)
		if m.filtering {
			val += "█"
		}
		b.WriteString(planListStyles.Filter.Render("Filter: ") + val + "\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.confirmMode {
		msg := fmt.Sprintf("Apply %d of %d action(s)? (y/n)", len(m.selectedActions()), len(m.actions))
		b.WriteString(planListStyles.Confirm.Render(msg))
		return b.String()
	}

	b.WriteString(m.renderDetailPanel())
	b.WriteString("\n")

	status := fmt.Sprintf("%d of %d action(s) selected", len(m.selectedActions()), len(m.actions))
	if m.filter != "" {
		status = fmt.Sprintf("%d selected, %d of %d shown (filtered)", len(m.selectedActions()), len(m.filtered), len(m.actions))
	}
	b.WriteString(planListStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}
	return b.String()
}

func (m PlanListModel) renderShortHelp() string {
	keys := []string{
		"space toggle",
		"a all",
		"enter apply",
		"/ filter",
		"? help",
		"q skip",
	}
	return planListStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PlanListModel) renderFullHelp() string {
	bindings := []key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.ToggleAll,
		m.keys.Apply, m.keys.Filter, m.keys.ClearFlt, m.keys.Help, m.keys.Quit,
	}
	width := 0
	for _, kb := range bindings {
		width = max(width, runewidth.StringWidth(kb.Help().Key))
	}
	var lines []string
	for _, kb := range bindings {
		h := kb.Help()
		lines = append(lines, runewidth.FillRight(h.Key, width)+"  "+h.Desc)
	}
	return planListStyles.Help.Render(strings.Join(lines, "\n"))
}

// Result returns the outcome of the review.
func (m PlanListModel) Result() PlanReviewResult {
	return m.result
}

// RunPlanReview shows plan in the alternate screen and returns the user's
// decision.
func RunPlanReview(plan *sync.Plan) (PlanReviewResult, error) {
	finalModel, err := Run(NewPlanListModel(plan), tea.WithAltScreen())
	if err != nil {
		return PlanReviewResult{}, fmt.Errorf("plan review: %w", err)
	}
	m, ok := finalModel.(PlanListModel)
	if !ok {
		return PlanReviewResult{}, nil
	}
	return m.Result(), nil
}
