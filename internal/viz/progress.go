package viz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/hydrosim/internal/optim"
)

const (
	barWidth   = 40
	historyCap = 200
)

type (
	// TrialMsg reports one finished evaluation.
	TrialMsg optim.Trial

	// DoneMsg ends the calibration view.
	DoneMsg struct {
		Calibration *optim.Calibration
		Err         error
	}

	tickMsg time.Time
)

// Progress is the live calibration view: trial count against the budget,
// best loss so far and a sparkline of its history.
type Progress struct {
	title   string
	total   int
	started time.Time
	frame   int

	trials  int
	best    optim.Trial
	hasBest bool
	history []float64

	result *optim.Calibration
	err    error
	done   bool
	cancel context.CancelFunc
}

// NewProgress builds the view for a search of about total evaluations.
// cancel, if not nil, is called when the user quits early.
func NewProgress(title string, total int, cancel context.CancelFunc) Progress {
	return Progress{
		title:   title,
		total:   total,
		started: time.Now(),
		history: make([]float64, 0, historyCap),
		cancel:  cancel,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Progress) Init() tea.Cmd {
	return tick()
}

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case TrialMsg:
		m.trials++
		if !math.IsInf(msg.Loss, 0) && !math.IsNaN(msg.Loss) && (!m.hasBest || msg.Loss < m.best.Loss) {
			m.best = optim.Trial(msg)
			m.hasBest = true
		}
		if m.hasBest {
			if len(m.history) == historyCap {
				m.history = append(m.history[:0], m.history[1:]...)
			}
			m.history = append(m.history, m.best.Loss)
		}

	case DoneMsg:
		m.done = true
		m.result = msg.Calibration
		m.err = msg.Err
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Progress) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED")
	case m.done:
		return StatusDone.Render("DONE")
	default:
		return StatusRunning.Render(spinner[m.frame%len(spinner)] + " RUNNING")
	}
}

func (m Progress) View() string {
	var s strings.Builder
	s.WriteString(Title.Render(strings.ToUpper(m.title)) + "  " + m.status() + "\n\n")

	if m.total > 0 {
		pct := float64(m.trials) / float64(m.total)
		s.WriteString(ProgressBar(pct, barWidth) + fmt.Sprintf(" %d/%d\n", m.trials, m.total))
	} else {
		s.WriteString(Metric("Trials", fmt.Sprintf("%d", m.trials)) + "\n")
	}
	s.WriteString(Metric("Elapsed", time.Since(m.started).Truncate(time.Second).String()) + "\n")

	if m.hasBest {
		s.WriteString(Metric("Best loss", fmt.Sprintf("%.6g", m.best.Loss)) + "\n")
		s.WriteString(Metric("Best trial", fmt.Sprintf("#%d", m.best.Index)) + "\n")
		s.WriteString("\n" + SparklineChart(m.history, barWidth, true) + "\n\n")
		for _, k := range sortedParams(m.best.Params) {
			s.WriteString(Metric(k, fmt.Sprintf("%.6g", m.best.Params[k])) + "\n")
		}
	} else {
		s.WriteString(Subtle.Render("waiting for the first finite loss") + "\n")
	}

	if m.err != nil {
		s.WriteString("\n" + StatusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint.Render("q: stop"))
	return Panel.Render(s.String()) + "\n"
}

// Result returns what the finished search reported.
func (m Progress) Result() (*optim.Calibration, error) {
	return m.result, m.err
}

func sortedParams(p map[string]float64) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CalibrateFunc runs a search, reporting each trial to progress.
type CalibrateFunc func(ctx context.Context, progress func(optim.Trial)) (*optim.Calibration, error)

// WatchCalibration runs fn while showing the progress view. Quitting the
// view cancels the search through ctx.
func WatchCalibration(ctx context.Context, title string, total int, fn CalibrateFunc, opts ...tea.ProgramOption) (*optim.Calibration, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title, total, cancel), opts...)

	type outcome struct {
		cal *optim.Calibration
		err error
	}
	res := make(chan outcome, 1)
	go func() {
		cal, err := fn(ctx, func(t optim.Trial) { p.Send(TrialMsg(t)) })
		res <- outcome{cal, err}
		p.Send(DoneMsg{Calibration: cal, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-res
		return nil, err
	}
	out := <-res
	return out.cal, out.err
}
