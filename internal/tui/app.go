package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/browser"

	"github.com/robby/roster/internal/auth"
	"github.com/robby/roster/internal/bridge"
	"github.com/robby/roster/internal/logging"
	"github.com/robby/roster/internal/store"
)

// DefaultPollInterval is how often pending job outcomes are checked.
const DefaultPollInterval = 100 * time.Millisecond

// AppScreen represents the different screens in the application flow.
type AppScreen int

const (
	ScreenPhone AppScreen = iota
	ScreenCode
	ScreenGroups
	ScreenResults
	ScreenMembers
)

// Dispatcher submits jobs to the background worker. *bridge.Bridge implements it.
type Dispatcher interface {
	Submit(req bridge.Request) (*bridge.Reply, error)
	Authorized() bool
	OutputDir() string
}

// pendingJob is a submitted job whose outcome has not been collected yet.
type pendingJob struct {
	reply *bridge.Reply
	group string
}

// AppModel is the root Bubble Tea model that manages screen transitions.
// It orchestrates the flow phone -> code -> groups -> results, and polls
// every pending job on a timer so the UI never blocks on the network.
type AppModel struct {
	// Dependencies
	bridge Dispatcher
	store  *store.Store
	auth   *auth.Machine
	log    *slog.Logger

	pollInterval time.Duration
	pending      []pendingJob

	// Current state
	currentScreen AppScreen
	currentModel  tea.Model
	err           error // fatal; the program exits
	notice        string
	busyMsg       string
	spinner       spinner.Model

	// Cached so selection survives visits to the members view
	results ResultsModel

	width  int
	height int
}

// NewAppModel creates the root model. A session that is already signed in
// starts on the group screen.
func NewAppModel(d Dispatcher, s *store.Store, pollInterval time.Duration) AppModel {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if s.OutputDir() == "" {
		s.SetOutputDir(d.OutputDir())
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := AppModel{
		bridge:       d,
		store:        s,
		auth:         auth.Restore(d.Authorized()),
		log:          logging.Component("tui"),
		pollInterval: pollInterval,
		spinner:      sp,
		results:      NewResultsModel(),
	}
	if m.auth.State() == auth.Authenticated {
		m.showGroups()
	} else {
		m.showPhone()
	}
	return m
}

// Screen returns the active screen.
func (m AppModel) Screen() AppScreen {
	return m.currentScreen
}

// Err returns the error that ended the program, if any.
func (m AppModel) Err() error {
	return m.err
}

// Init initializes the app model.
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.tick()}
	if m.currentModel != nil {
		cmds = append(cmds, m.currentModel.Init())
	}
	return tea.Batch(cmds...)
}

func (m AppModel) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Update handles messages and transitions between screens.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global quit handler
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.currentScreen != ScreenResults {
			m.results, _ = updateResults(m.results, msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		cmd := m.poll()
		if m.err != nil {
			return m, tea.Quit
		}
		return m, tea.Batch(cmd, m.tick())

	case ErrorMsg:
		m.notice = msg.Err.Error()
		return m, nil

	case QuitMsg:
		return m, tea.Quit

	case PhoneEnteredMsg:
		if m.authBusy() {
			return m, nil
		}
		m.auth.Reset()
		m.notice = ""
		if !m.submit(bridge.RequestCode{Phone: msg.Phone}, "") {
			return m, tea.Quit
		}
		m.busyMsg = "Requesting login code..."
		return m, nil

	case CodeEnteredMsg:
		if m.authBusy() {
			return m, nil
		}
		m.notice = ""
		if !m.submit(bridge.SubmitCode{Token: m.auth.Token(), Code: msg.Code}, "") {
			return m, tea.Quit
		}
		m.busyMsg = "Signing in..."
		return m, nil

	case BackMsg:
		m.auth.Reset()
		m.notice = ""
		return m, m.showPhone()

	case GroupsSubmittedMsg:
		if msg.Dir != "" {
			m.store.SetOutputDir(msg.Dir)
		}
		for _, name := range m.store.Add(msg.Groups...) {
			if !m.submit(bridge.FetchMembers{Group: name}, name) {
				return m, tea.Quit
			}
		}
		m.notice = ""
		return m, tea.Batch(m.refreshResults(), m.showResults())

	case ViewMembersMsg:
		g, err := m.store.Get(msg.Group)
		if err != nil || g.Members == nil {
			m.notice = fmt.Sprintf("%s has no members to show yet", msg.Group)
			return m, nil
		}
		m.currentScreen = ScreenMembers
		mm := NewMembersModel(g)
		m.currentModel = mm
		return m, mm.Init()

	case closeMembersMsg:
		return m, m.showResults()

	case ExportGroupMsg:
		if !m.startExport(msg.Group) {
			return m, tea.Quit
		}
		return m, m.refreshResults()

	case OpenExportMsg:
		return m, openExport(msg.Path)

	case NewGroupsMsg:
		// Outcomes still in flight for the old batch are dropped by mark.
		m.store.Clear()
		m.notice = ""
		return m, tea.Batch(m.refreshResults(), m.showGroups())
	}

	// Delegate to current screen's model
	if m.currentModel != nil {
		var cmd tea.Cmd
		m.currentModel, cmd = m.currentModel.Update(msg)
		// Keep the cached results model in sync
		if rm, ok := m.currentModel.(ResultsModel); ok {
			m.results = rm
		}
		return m, cmd
	}

	return m, nil
}

func updateResults(rm ResultsModel, msg tea.Msg) (ResultsModel, tea.Cmd) {
	model, cmd := rm.Update(msg)
	return model.(ResultsModel), cmd
}

// View renders the current screen.
func (m AppModel) View() string {
	// Show error if present
	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err))
	}

	var b strings.Builder
	if m.currentModel != nil {
		b.WriteString(m.currentModel.View())
	}
	if m.busyMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + m.busyMsg)
	}
	if m.notice != "" {
		width := m.width
		if width <= 0 {
			width = 80
		}
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(wordwrap.String(m.notice, width)))
	}
	return b.String()
}

func (m *AppModel) showPhone() tea.Cmd {
	m.currentScreen = ScreenPhone
	pm := NewPromptModel(PromptPhone, "")
	m.currentModel = pm
	return pm.Init()
}

func (m *AppModel) showCode() tea.Cmd {
	phone := ""
	if t := m.auth.Token(); t != nil {
		phone = t.Phone()
	}
	m.currentScreen = ScreenCode
	pm := NewPromptModel(PromptCode, phone)
	m.currentModel = pm
	return pm.Init()
}

func (m *AppModel) showGroups() tea.Cmd {
	m.currentScreen = ScreenGroups
	gm := NewGroupsModel(m.store.OutputDir())
	m.currentModel = gm
	return tea.Batch(gm.Init(), tea.WindowSize())
}

func (m *AppModel) showResults() tea.Cmd {
	m.currentScreen = ScreenResults
	m.currentModel = m.results
	// Request window size to ensure proper rendering
	return tea.WindowSize()
}

// submit hands req to the worker. It returns false when the worker is gone,
// which ends the program.
func (m *AppModel) submit(req bridge.Request, group string) bool {
	reply, err := m.bridge.Submit(req)
	if err != nil {
		if errors.Is(err, bridge.ErrClosed) {
			err = fmt.Errorf("background worker stopped: %w", err)
		}
		m.err = err
		return false
	}
	m.pending = append(m.pending, pendingJob{reply: reply, group: group})
	return true
}

func (m *AppModel) startExport(group string) bool {
	members, err := m.store.GetMembers(group)
	if err != nil {
		m.notice = err.Error()
		return true
	}
	return m.submit(bridge.ExportMembers{
		Group: group,
		Dir:   m.store.OutputDir(),
		Rows:  slices.Values(members),
	}, group)
}

func (m AppModel) authBusy() bool {
	for _, p := range m.pending {
		if k := p.reply.Kind(); k == bridge.KindRequestCode || k == bridge.KindSubmitCode {
			return true
		}
	}
	return false
}

// poll collects every outcome that has arrived without blocking.
func (m *AppModel) poll() tea.Cmd {
	type finished struct {
		job pendingJob
		out bridge.Outcome
	}

	var done []finished
	remaining := make([]pendingJob, 0, len(m.pending))
	for _, p := range m.pending {
		if out, ok := p.reply.Poll(); ok {
			done = append(done, finished{p, out})
		} else {
			remaining = append(remaining, p)
		}
	}
	m.pending = remaining

	var cmds []tea.Cmd
	for _, f := range done {
		cmds = append(cmds, m.handleOutcome(f.job, f.out))
		if m.err != nil {
			return nil
		}
	}
	if !m.authBusy() {
		m.busyMsg = ""
	}
	if len(m.store.Groups()) > 0 {
		cmds = append(cmds, m.refreshResults())
	}
	return tea.Batch(cmds...)
}

func (m *AppModel) handleOutcome(p pendingJob, out bridge.Outcome) tea.Cmd {
	switch out.Kind {
	case bridge.KindRequestCode, bridge.KindSubmitCode:
		state, err := m.auth.Apply(out)
		if err != nil {
			m.notice = auth.Describe(err)
			if errors.Is(err, auth.ErrUnexpectedOutcome) {
				m.auth.Reset()
				return m.showPhone()
			}
			return nil
		}
		switch state {
		case auth.AwaitingCode:
			return m.showCode()
		case auth.Authenticated:
			return m.showGroups()
		}

	case bridge.KindFetchMembers:
		if !out.OK() {
			m.mark(m.store.MarkFailed(p.group, out.Err))
			return nil
		}
		if err := m.store.SetMembers(p.group, out.Members, out.Total, out.Partial()); err != nil {
			m.mark(err)
			return nil
		}
		// Fetched groups are exported straight away.
		m.startExport(p.group)

	case bridge.KindExportMembers:
		if !out.OK() {
			m.mark(m.store.MarkFailed(p.group, out.Err))
			return nil
		}
		m.mark(m.store.MarkExported(p.group, out.Path))
	}
	return nil
}

// mark logs store updates for groups the user has since replaced.
func (m *AppModel) mark(err error) {
	if err != nil {
		m.log.Debug("Dropped stale outcome", "error", err)
	}
}

// openFile is replaced in tests.
var openFile = browser.OpenFile

func openExport(path string) tea.Cmd {
	return func() tea.Msg {
		if err := openFile(path); err != nil {
			return ErrorMsg{Err: fmt.Errorf("could not open %s: %w", path, err)}
		}
		return nil
	}
}

// resultsTitle summarizes the batch for the results list header.
func resultsTitle(s *store.Store) string {
	total := len(s.Groups())
	if total == 0 {
		return "Groups"
	}
	counts := s.Counts()
	title := fmt.Sprintf("Groups · %d/%d done", total-counts[store.StatusPending], total)
	if s.Done() {
		title = "Groups · all done"
	}
	if n := counts[store.StatusFailed]; n > 0 {
		title += fmt.Sprintf(", %d failed", n)
	}
	return title
}

// refreshResults rebuilds the result rows from the store and live progress.
func (m *AppModel) refreshResults() tea.Cmd {
	fetching := make(map[string]*bridge.Reply)
	for _, p := range m.pending {
		if p.reply.Kind() == bridge.KindFetchMembers || p.reply.Kind() == bridge.KindExportMembers {
			fetching[p.group] = p.reply
		}
	}

	groups := m.store.Groups()
	items := make([]groupItem, len(groups))
	for i, g := range groups {
		item := groupItem{group: g, total: -1}
		if r, ok := fetching[g.Name]; ok {
			item.busy = true
			item.loaded, item.total = r.Progress()
		}
		items[i] = item
	}

	m.results.SetTitle(resultsTitle(m.store))
	cmd := m.results.SetItems(items)
	if m.currentScreen == ScreenResults {
		m.currentModel = m.results
	}
	return cmd
}
