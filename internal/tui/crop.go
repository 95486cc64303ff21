// Package tui is the interactive terminal crop tool.
//
// The image is drawn with half-block cells. One cell column is CellSize display
// pixels wide and one cell row holds two grid pixels, 2*CellSize display pixels
// tall, so mouse input maps straight onto the selector's display space.
package tui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"github.com/menta2k/toolbox/internal/utils"
	"github.com/menta2k/toolbox/pkg/selector"
	"github.com/menta2k/toolbox/pkg/session"
	"github.com/menta2k/toolbox/pkg/types"
)

// CellSize is the display-space width of one terminal cell.
const CellSize = 8

// title, status and help
const chromeLines = 3

// CropModel drives a CropSession from keyboard and mouse input.
type CropModel struct {
	ctx     context.Context
	session *session.CropSession
	src     image.Image
	name    string
	outDir  string
	theme   *Theme

	aspects   []selector.AspectRatio
	aspectIdx int

	width, height int
	gridW, gridH  int
	thumb         *image.NRGBA

	dragging bool
	saved    string
	status   string
	err      error
}

type extractedMsg struct {
	path string
	res  *types.RasterResult
	err  error
}

// NewCropModel loads img into cs. Results are written to outDir.
func NewCropModel(ctx context.Context, cs *session.CropSession, name string, img image.Image, outDir string, theme *Theme) (CropModel, error) {
	if err := cs.Load(name, img, 0, 0); err != nil {
		return CropModel{}, err
	}
	if theme == nil {
		theme = DefaultTheme()
	}
	m := CropModel{
		ctx:     ctx,
		session: cs,
		src:     img,
		name:    name,
		outDir:  outDir,
		theme:   theme,
		aspects: selector.CommonAspectRatios(),
	}
	for i, a := range m.aspects {
		if a.Ratio() == cs.Aspect() {
			m.aspectIdx = i
		}
	}
	return m, nil
}

// Saved returns the path of the last written crop.
func (m CropModel) Saved() string { return m.saved }

// Init implements tea.Model.
func (m CropModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m CropModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.layout(msg.Width, msg.Height), nil
	case tea.MouseMsg:
		return m.handleMouse(msg), nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case extractedMsg:
		return m.handleExtracted(msg), nil
	}
	return m, nil
}

func (m CropModel) layout(w, h int) CropModel {
	first := m.width == 0
	m.width, m.height = w, h

	b := m.src.Bounds()
	nw, nh := float64(b.Dx()), float64(b.Dy())
	maxW := float64(max(1, w) * CellSize)
	maxH := float64(max(1, h-chromeLines) * 2 * CellSize)
	k := math.Min(maxW/nw, maxH/nh)
	dw, dh := nw*k, nh*k

	if first {
		if err := m.session.SetDisplay(dw, dh); err != nil {
			m.err = err
			return m
		}
		m.session.Reset()
	} else if err := m.session.Rescale(dw, dh); err != nil {
		m.err = err
		return m
	}
	m.gridW = max(1, int(dw/CellSize))
	m.gridH = max(1, int(dh/CellSize))
	m.thumb = imaging.Resize(m.src, m.gridW, m.gridH, imaging.Box)
	return m
}

// toDisplay maps a terminal cell to the display-space point at its center.
// Row 0 is the title line.
func toDisplay(col, row int) selector.Point {
	return selector.Point{
		X: float64(col)*CellSize + CellSize/2,
		Y: float64(row-1)*2*CellSize + CellSize,
	}
}

func (m CropModel) handleMouse(msg tea.MouseMsg) CropModel {
	p := toDisplay(msg.X, msg.Y)
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return m
		}
		h, move := m.session.HitTest(p, CellSize)
		switch {
		case h != "":
			m.session.BeginResize(h, p)
			m.dragging = true
		case move:
			m.session.BeginMove(p)
			m.dragging = true
		}
	case tea.MouseActionMotion:
		if m.dragging {
			m.session.PointerMove(p)
		}
	case tea.MouseActionRelease:
		if m.dragging {
			m.session.EndGesture()
			m.dragging = false
		}
	}
	return m
}

func (m CropModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "a":
		m.aspectIdx = (m.aspectIdx + 1) % len(m.aspects)
		m.session.SetAspect(m.aspects[m.aspectIdx].Ratio())
	case "r":
		m.session.Reset()
		m.saved, m.status, m.err = "", "", nil
	case "enter":
		if !m.session.Completed() {
			m.session.Accept()
		}
		m.status = "extracting..."
		return m, m.extract()
	case "left", "right", "up", "down":
		m.nudge(msg.String(), false)
	case "shift+left", "shift+right", "shift+up", "shift+down":
		m.nudge(strings.TrimPrefix(msg.String(), "shift+"), true)
	}
	return m, nil
}

// nudge moves the region, or grows it from the bottom-right grip, by one cell.
func (m CropModel) nudge(dir string, resize bool) {
	var dx, dy float64
	switch dir {
	case "left":
		dx = -CellSize
	case "right":
		dx = CellSize
	case "up":
		dy = -CellSize
	case "down":
		dy = CellSize
	}
	r := m.session.Region()
	p := selector.Point{X: r.Right(), Y: r.Bottom()}
	if resize {
		m.session.BeginResize(selector.HandleSE, p)
	} else {
		m.session.BeginMove(p)
	}
	m.session.PointerMove(selector.Point{X: p.X + dx, Y: p.Y + dy})
	m.session.EndGesture()
}

func (m CropModel) extract() tea.Cmd {
	ctx, cs, dir := m.ctx, m.session, m.outDir
	return func() tea.Msg {
		res, err := cs.Extract(ctx)
		if err != nil {
			return extractedMsg{err: err}
		}
		path, err := utils.WriteFile(dir, res.Name, res.Data)
		return extractedMsg{path: path, res: res, err: err}
	}
}

func (m CropModel) handleExtracted(msg extractedMsg) CropModel {
	switch {
	case errors.Is(msg.err, session.ErrSuperseded):
		m.err = nil
		m.status = "selection changed, press enter again"
	case msg.err != nil:
		m.err = msg.err
		m.status = ""
	default:
		m.err = nil
		m.saved = msg.path
		m.status = fmt.Sprintf("saved %s (%dx%d, %s)", msg.path, msg.res.Width, msg.res.Height,
			humanize.IBytes(uint64(len(msg.res.Data))))
	}
	return m
}

// View implements tea.Model.
func (m CropModel) View() string {
	if m.width == 0 || m.thumb == nil {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.theme.Title.Render(fmt.Sprintf("crop %s  aspect: %s", m.name, m.aspects[m.aspectIdx].Name)))
	b.WriteByte('\n')

	r := m.session.Region()
	for row := 0; row < m.gridH; row += 2 {
		for col := 0; col < m.gridW; col++ {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(hex(m.pixel(col, row, r))))
			if row+1 < m.gridH {
				style = style.Background(lipgloss.Color(hex(m.pixel(col, row+1, r))))
			}
			b.WriteString(style.Render("▀"))
		}
		b.WriteByte('\n')
	}

	line := fmt.Sprintf("region %.0f,%.0f %.0fx%.0f", r.X, r.Y, r.Width, r.Height)
	switch {
	case m.err != nil:
		line += "  " + m.theme.Failure.Render(m.err.Error())
	case m.status != "":
		line += "  " + m.theme.Success.Render(m.status)
	}
	b.WriteString(m.theme.Status.Render(line))
	b.WriteByte('\n')
	b.WriteString(m.help())
	return b.String()
}

func (m CropModel) help() string {
	keys := [][2]string{
		{"drag", "move/resize"}, {"arrows", "move"}, {"shift+arrows", "resize"},
		{"a", "aspect"}, {"r", "reset"}, {"enter", "save"}, {"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = m.theme.HelpKey.Render(k[0]) + " " + m.theme.Help.Render(k[1])
	}
	return strings.Join(parts, "  ")
}

// pixel returns the grid pixel shaded for the selection: dimmed outside,
// white on the border.
func (m CropModel) pixel(col, row int, r types.Rect) color.NRGBA {
	c := m.thumb.NRGBAAt(col, row)
	c.R = uint8(uint16(c.R) * uint16(c.A) / 255)
	c.G = uint8(uint16(c.G) * uint16(c.A) / 255)
	c.B = uint8(uint16(c.B) * uint16(c.A) / 255)

	cx := (float64(col) + 0.5) * CellSize
	cy := (float64(row) + 0.5) * CellSize
	if cx < r.X || cx >= r.Right() || cy < r.Y || cy >= r.Bottom() {
		return color.NRGBA{c.R / 2, c.G / 2, c.B / 2, 255}
	}
	if cx-r.X < CellSize || r.Right()-cx < CellSize || cy-r.Y < CellSize || r.Bottom()-cy < CellSize {
		return color.NRGBA{255, 255, 255, 255}
	}
	return color.NRGBA{c.R, c.G, c.B, 255}
}

func hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Run shows the crop screen until the user quits and returns the path of the
// last saved crop, if any.
func Run(ctx context.Context, m CropModel) (string, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	if fm, ok := final.(CropModel); ok {
		return fm.saved, nil
	}
	return "", nil
}
