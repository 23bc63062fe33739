package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/livefir/zealtime"
	"github.com/livefir/zealtime/internal/config"
)

type renderedMsg struct{}

type reloadedMsg struct{ err error }

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stateStyle = map[string]lipgloss.Style{
		"open":       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"connecting": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"closed":     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// watchModel shows the engine's text in a scrolling viewport.
type watchModel struct {
	engine *zealtime.Engine
	file   string
	url    string
	state  func() string
	events <-chan tea.Msg

	viewport viewport.Model
	ready    bool
	err      error
}

func newWatchModel(engine *zealtime.Engine, file, url string, state func() string, events <-chan tea.Msg) watchModel {
	return watchModel{engine: engine, file: file, url: url, state: state, events: events}
}

func waitFor(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(waitFor(m.events), tick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		height := msg.Height - lipgloss.Height(m.header()) - lipgloss.Height(m.footer())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()
	case renderedMsg:
		m.refresh()
		cmds = append(cmds, waitFor(m.events))
	case reloadedMsg:
		m.err = msg.err
		m.refresh()
		cmds = append(cmds, waitFor(m.events))
	case tickMsg:
		cmds = append(cmds, tick())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *watchModel) refresh() {
	if !m.ready {
		return
	}
	text, err := m.engine.Text()
	if err != nil {
		m.err = err
		return
	}
	m.viewport.SetContent(text)
}

func (m watchModel) header() string {
	state := m.state()
	style, ok := stateStyle[state]
	if !ok {
		style = lipgloss.NewStyle()
	}
	line := titleStyle.Render(filepath.Base(m.file)) + "  " + m.url + "  " + style.Render(state)
	if m.err != nil {
		line += "\n" + errorStyle.Render(m.err.Error())
	}
	return line
}

func (m watchModel) footer() string {
	return footerStyle.Render(fmt.Sprintf("renders %d  ·  q to quit", m.engine.Metrics().GetMetrics().RendersRun))
}

func (m watchModel) View() string {
	if !m.ready {
		return "loading..."
	}
	return m.header() + "\n" + m.viewport.View() + "\n" + m.footer()
}

// notify delivers msg without blocking. Renders hold the engine lock, and
// the model reads the engine while handling the message, so a blocking
// send could deadlock; a dropped render message is covered by the one
// still queued.
func notify(events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	default:
	}
}

func runWatch(ctx context.Context, args []string) error {
	var flags documentFlags
	fs := newFlagSet("watch", "watch FILE [--url ws://HOST:PORT] [--set key=value]... [--list SELECTOR]...")
	flags.add(fs)
	url := fs.String("url", "", "state server to sync from (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("watch takes exactly one FILE")
	}
	file := fs.Arg(0)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if fs.Changed("url") {
		cfg.Watch.URL = *url
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The terminal belongs to the view; keep the log out of it.
	logger := quietLogger()
	events := make(chan tea.Msg, 16)
	opts := []zealtime.Option{
		zealtime.WithLogger(logger),
		zealtime.WithOnRender(func() { notify(events, renderedMsg{}) }),
	}
	if cfg.Watch.ReconnectDelay > 0 {
		opts = append(opts, zealtime.WithReconnectDelay(cfg.Watch.ReconnectDelay))
	}
	engine, err := openEngine(file, &flags, cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := func() string { return "offline" }
	if cfg.Watch.URL != "" {
		client := engine.Connect(ctx, cfg.Watch.URL)
		state = func() string { return client.State().String() }
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", file, err)
	}
	defer watcher.Close()
	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", file, err)
	}
	go reloadOnChange(ctx, watcher, file, func() {
		doc, err := loadDocument(file, flags.lists)
		if err == nil {
			err = engine.Attach(doc)
		}
		notify(events, reloadedMsg{err: err})
	})

	model := newWatchModel(engine, file, cfg.Watch.URL, state, events)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// reloadOnChange calls reload whenever file is written or replaced.
func reloadOnChange(ctx context.Context, watcher *fsnotify.Watcher, file string, reload func()) {
	target := filepath.Clean(file)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
