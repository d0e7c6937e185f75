package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/sim"
)

const (
	fieldWidth    = 60
	fieldHeight   = 24
	errorCapacity = 300
	maxSpeed      = 16.0
	minSpeed      = 0.125
)

type sampleMsg sim.Sample

type doneMsg struct{ err error }

type resumeMsg struct{}

// Live streams a running simulation: the field with the reference, true
// and estimated paths, plus a stats panel. The simulation blocks while the
// view is paused.
type Live struct {
	title string
	cfg   sim.Config

	samples <-chan sim.Sample
	done    <-chan error

	field     *Field
	reference []drive.Pose
	truth     []drive.Pose
	estimate  []drive.Pose
	errors    []float64

	last     sim.Sample
	have     bool
	atRef    int
	ticks    int
	paused   bool
	waiting  bool
	speed    float64
	theme    Theme
	showHelp bool
	finished bool
	err      error
}

// NewLive builds the view over a sample stream. done receives the run's
// error once samples is closed.
func NewLive(title string, cfg sim.Config, samples <-chan sim.Sample, done <-chan error) *Live {
	start := poseOf(cfg.Trajectory.Start)
	goal := poseOf(cfg.Trajectory.Goal)
	return &Live{
		title:     title,
		cfg:       cfg,
		samples:   samples,
		done:      done,
		field:     NewField(fieldWidth, fieldHeight, BoundsAround(0.5, start, goal)),
		reference: make([]drive.Pose, 0, 512),
		truth:     make([]drive.Pose, 0, 512),
		estimate:  make([]drive.Pose, 0, 512),
		errors:    make([]float64, 0, errorCapacity),
		speed:     1,
		theme:     Themes[0],
	}
}

func poseOf(v [3]float64) drive.Pose {
	return drive.Pose{X: v[0], Y: v[1], Heading: v[2]}
}

func (m *Live) Init() tea.Cmd {
	return m.next()
}

// next reads one sample, or the run's outcome once the stream closes.
func (m *Live) next() tea.Cmd {
	samples, done := m.samples, m.done
	return func() tea.Msg {
		s, ok := <-samples
		if !ok {
			return doneMsg{err: <-done}
		}
		return sampleMsg(s)
	}
}

// pace waits one loop period scaled by the playback speed.
func (m *Live) pace() tea.Cmd {
	delay := time.Duration(m.cfg.Dt / m.speed * float64(time.Second))
	return tea.Tick(delay, func(time.Time) tea.Msg { return resumeMsg{} })
}

func (m *Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			if !m.paused && m.waiting && !m.finished {
				m.waiting = false
				return m, m.next()
			}
		case "+", "=":
			m.speed = min(maxSpeed, m.speed*2)
		case "-", "_":
			m.speed = max(minSpeed, m.speed/2)
		case "t":
			m.theme = NextTheme(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case sampleMsg:
		m.observe(sim.Sample(msg))
		return m, m.pace()
	case resumeMsg:
		if m.paused {
			m.waiting = true
			return m, nil
		}
		return m, m.next()
	case doneMsg:
		m.finished = true
		m.err = msg.err
	}
	return m, nil
}

func (m *Live) observe(s sim.Sample) {
	m.last, m.have = s, true
	m.ticks++
	if s.AtReference {
		m.atRef++
	}
	m.reference = append(m.reference, s.ReferencePose())
	m.truth = append(m.truth, s.TruthPose())
	m.estimate = append(m.estimate, s.EstimatedPose())

	m.errors = append(m.errors, s.TruthPose().Distance(s.ReferencePose()))
	if len(m.errors) > errorCapacity {
		m.errors = m.errors[1:]
	}
}

func (m *Live) status(s styles) string {
	switch {
	case m.err != nil:
		return s.bad.Render("FAILED: " + m.err.Error())
	case m.finished:
		return s.good.Render("DONE")
	case m.paused:
		return s.warn.Render("PAUSED")
	}
	return s.good.Render(fmt.Sprintf("RUNNING x%g", m.speed))
}

func (m *Live) View() string {
	s := newStyles(m.theme)

	m.field.Clear()
	m.field.Path(LayerReference, m.reference)
	m.field.Path(LayerEstimate, m.estimate)
	m.field.Path(LayerTruth, m.truth)
	if m.have {
		m.field.Robot(LayerTruth, m.last.TruthPose(), 0.3)
	}
	fieldView := s.panel.Render(strings.TrimRight(m.field.Render(m.theme), "\n"))

	var b strings.Builder
	b.WriteString(s.title.Render(strings.ToUpper(m.title)) + "\n")
	b.WriteString(m.status(s) + "\n\n")

	if m.have {
		truth, est, ref := m.last.TruthPose(), m.last.EstimatedPose(), m.last.ReferencePose()
		b.WriteString(s.row("time", fmt.Sprintf("%.2f s", m.last.Time)))
		b.WriteString(s.row("truth", formatPose(truth)))
		b.WriteString(s.row("estimate", formatPose(est)))
		b.WriteString(s.row("reference", formatPose(ref)))
		b.WriteString(s.row("track err", fmt.Sprintf("%.4f m", truth.Distance(ref))))
		b.WriteString(s.row("est err", fmt.Sprintf("%.4f m", est.Distance(truth))))
		b.WriteString(s.row("voltage", fmt.Sprintf("%6.2f %6.2f V", m.last.Control.AtVec(0), m.last.Control.AtVec(1))))
		b.WriteString(s.row("at reference", fmt.Sprintf("%.1f%%", 100*float64(m.atRef)/float64(m.ticks))))
		b.WriteString("\n")
		b.WriteString(ProgressBar(m.last.Time/m.cfg.Duration, 30, m.theme) + "\n\n")
	} else {
		b.WriteString(s.muted.Render("waiting for first sample") + "\n")
	}

	if len(m.errors) > 1 {
		b.WriteString(asciigraph.Plot(m.errors,
			asciigraph.Height(5),
			asciigraph.Width(34),
			asciigraph.Precision(3),
			asciigraph.Caption("tracking error [m]"),
		) + "\n")
	}

	b.WriteString("\n" + s.muted.Render("SP pause  +/- speed  T theme  ? help  Q quit"))
	if m.showHelp {
		b.WriteString("\n\n" + s.muted.Render(strings.Join([]string{
			"field: " + lipgloss.NewStyle().Foreground(m.theme.Truth).Render("truth") +
				" " + lipgloss.NewStyle().Foreground(m.theme.Estimate).Render("estimate") +
				" " + lipgloss.NewStyle().Foreground(m.theme.Reference).Render("reference"),
			"theme: " + m.theme.Name,
		}, "\n")))
	}
	statsView := s.panel.Width(48).Render(b.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, fieldView, statsView)
}

func formatPose(p drive.Pose) string {
	return fmt.Sprintf("%6.3f %6.3f %6.3f", p.X, p.Y, p.Heading)
}

// RunLive runs s in the background and shows it until the user quits.
func RunLive(ctx context.Context, title string, s *sim.Simulator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan sim.Sample)
	done := make(chan error, 1)
	go func() {
		err := s.RunWithCallback(ctx, func(smp sim.Sample) bool {
			select {
			case samples <- smp:
				return true
			case <-ctx.Done():
				return false
			}
		})
		close(samples)
		done <- err
	}()

	p := tea.NewProgram(NewLive(title, s.Config(), samples, done), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
