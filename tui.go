package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"medivox/config"
	"medivox/log"
)

// TUI message types
type SessionStateMsg struct{ State sessionState }
type AudioLevelMsg struct{ Level audioLevel }
type SpeechStateMsg struct{ Speaking bool }
type LiveTranscriptMsg struct{ Text string }
type TranslationMsg struct {
	Text     string
	Provider string
}
type WarningMsg struct{ Text string }
type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// tuiSink forwards controller events into the Bubble Tea program.
type tuiSink struct{}

func (tuiSink) send(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s tuiSink) SessionState(st sessionState) { s.send(SessionStateMsg{State: st}) }
func (s tuiSink) AudioLevel(l audioLevel)      { s.send(AudioLevelMsg{Level: l}) }
func (s tuiSink) SpeechState(speaking bool)    { s.send(SpeechStateMsg{Speaking: speaking}) }
func (s tuiSink) LiveTranscript(text string)   { s.send(LiveTranscriptMsg{Text: text}) }
func (s tuiSink) Translation(text, provider string) {
	s.send(TranslationMsg{Text: text, Provider: provider})
}
func (s tuiSink) Warning(text string) { s.send(WarningMsg{Text: text}) }

// logSink is the headless sink: everything goes to the diagnostics log.
type logSink struct{}

func (logSink) SessionState(st sessionState) { log.Info("session state: " + st.String()) }
func (logSink) AudioLevel(audioLevel)        {}
func (logSink) SpeechState(speaking bool) {
	if speaking {
		log.Info("speech detected")
	} else {
		log.Info("speech ended")
	}
}
func (logSink) LiveTranscript(text string) {}
func (logSink) Translation(text, provider string) {
	log.Info(fmt.Sprintf("translation via %s: %s", provider, text))
}
func (logSink) Warning(text string) { log.Warn(text) }

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	idleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	listeningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	speakingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	meterOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	meterOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tuiModel struct {
	ctl   *sessionController
	store *config.Store

	state       sessionState
	level       audioLevel
	speaking    bool
	transcript  string
	translation string
	provider    string
	warning     string
	status      string
	frame       int
	width       int
	height      int
}

func NewTUIProgram(ctl *sessionController, store *config.Store) *tea.Program {
	m := tuiModel{ctl: ctl, store: store}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			go m.ctl.Stop()
			return m, tea.Quit
		case " ":
			go m.ctl.Toggle()
		case "up":
			v := m.store.AdjustSilenceTimeout(1)
			m.status = fmt.Sprintf("silence timeout: %dms", v)
		case "down":
			v := m.store.AdjustSilenceTimeout(-1)
			m.status = fmt.Sprintf("silence timeout: %dms", v)
		case "right":
			v := m.store.AdjustAudioThreshold(1)
			m.status = fmt.Sprintf("audio threshold: %d", v)
		case "left":
			v := m.store.AdjustAudioThreshold(-1)
			m.status = fmt.Sprintf("audio threshold: %d", v)
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case SessionStateMsg:
		m.state = msg.State
		if m.state == stateIdle {
			m.level = audioLevel{}
			m.speaking = false
		}
		if m.state == stateAcquiring {
			m.transcript = ""
			m.translation = ""
			m.warning = ""
		}

	case AudioLevelMsg:
		m.level = msg.Level

	case SpeechStateMsg:
		m.speaking = msg.Speaking

	case LiveTranscriptMsg:
		m.transcript = msg.Text

	case TranslationMsg:
		m.translation = msg.Text
		m.provider = msg.Provider

	case WarningMsg:
		m.warning = msg.Text
	}

	return m, nil
}

func renderMeter(level audioLevel, width int) string {
	if width < 10 {
		width = 10
	}
	filled := int(level.Average / 255 * float64(width))
	if filled > width {
		filled = width
	}
	return meterOnStyle.Render(strings.Repeat("█", filled)) +
		meterOffStyle.Render(strings.Repeat("░", width-filled))
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("medivox") + "\n\n")

	switch m.state {
	case stateListening:
		dot := "●"
		if m.frame%10 < 5 {
			dot = "○"
		}
		line := listeningStyle.Render(dot + " listening")
		if m.speaking {
			line += "  " + speakingStyle.Render("speaking")
		}
		b.WriteString(line + "\n")
	case stateAcquiring:
		b.WriteString(idleStyle.Render("… acquiring microphone") + "\n")
	case stateStopping:
		b.WriteString(idleStyle.Render("… finishing transcription") + "\n")
	default:
		b.WriteString(idleStyle.Render("idle, press space to record") + "\n")
	}

	meterWidth := 40
	if m.width > 0 && m.width-20 < meterWidth {
		meterWidth = m.width - 20
	}
	b.WriteString(renderMeter(m.level, meterWidth) +
		idleStyle.Render(fmt.Sprintf(" avg %3.0f peak %3.0f", m.level.Average, m.level.Peak)) + "\n\n")

	boxWidth := 60
	if m.width > 4 && m.width-4 < boxWidth {
		boxWidth = m.width - 4
	}
	if m.transcript != "" {
		b.WriteString(boxStyle.Width(boxWidth).Render(m.transcript) + "\n")
	}
	if m.translation != "" {
		label := "translated"
		if m.provider != "" {
			label += " via " + m.provider
		}
		b.WriteString(idleStyle.Render(label) + "\n")
		b.WriteString(boxStyle.Width(boxWidth).Render(m.translation) + "\n")
	}
	if m.warning != "" {
		b.WriteString(warnStyle.Render("⚠ "+m.warning) + "\n")
	}
	if m.status != "" {
		b.WriteString(idleStyle.Render(m.status) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("space record/stop · ↑↓ silence timeout · ←→ threshold · q quit"))
	return b.String()
}
