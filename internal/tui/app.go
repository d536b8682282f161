package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/utils"
)

const PageSize = 10 // Number of lines to scroll per page

func initialModel(img *archive.Image) *Model {
	classes := img.Classes()
	sort.Slice(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		if a.Loader != b.Loader {
			return a.Loader < b.Loader
		}
		return a.Name.String() < b.Name.String()
	})

	return &Model{
		currentTab:      RegionsTab,
		img:             img,
		classes:         classes,
		records:         img.TrainingRecords(),
		keys:            DefaultKeyMap(),
		scrollPositions: make(map[TabType]int),
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "?":
			m.help.expanded = !m.help.expanded

		case "1":
			m.currentTab = RegionsTab
		case "2":
			m.currentTab = ClassesTab
		case "3":
			m.currentTab = PreloadTab
		case "4":
			m.currentTab = TrainingTab

		case "tab":
			utils.CycleEnumPtr(&m.currentTab, 1, tabCount-1)

		case "left", "h":
			return m.handleLeftNavigation()
		case "right", "l":
			return m.handleRightNavigation()

		default:
			return m.handleTabSpecificKeys(msg)
		}
	}

	return m, nil
}

func (m *Model) handleLeftNavigation() (tea.Model, tea.Cmd) {
	if m.currentTab == ClassesTab {
		m.classFilter = utils.GetPrevEnum(m.classFilter, filterApp)
		m.selectedClass = 0
		m.scrollPositions[ClassesTab] = 0
	}
	return m, nil
}

func (m *Model) handleRightNavigation() (tea.Model, tea.Cmd) {
	if m.currentTab == ClassesTab {
		m.classFilter = utils.GetNextEnum(m.classFilter, filterApp)
		m.selectedClass = 0
		m.scrollPositions[ClassesTab] = 0
	}
	return m, nil
}

func (m *Model) handleTabSpecificKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.currentTab == ClassesTab {
			if m.selectedClass > 0 {
				m.selectedClass--
			}
		} else if m.scrollPositions[m.currentTab] > 0 {
			m.scrollPositions[m.currentTab]--
		}
	case "down", "j":
		if m.currentTab == ClassesTab {
			if m.selectedClass < len(m.filteredClasses())-1 {
				m.selectedClass++
			}
		} else {
			// Bounded during rendering
			m.scrollPositions[m.currentTab]++
		}
	case "pgup":
		m.scrollPositions[m.currentTab] = max(0, m.scrollPositions[m.currentTab]-PageSize)
	case "pgdown":
		m.scrollPositions[m.currentTab] += PageSize
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	contentHeight := m.height - 4

	var content string
	switch m.currentTab {
	case RegionsTab:
		content = m.renderRegions(m.width, contentHeight)
	case ClassesTab:
		content = m.renderClasses(m.width, contentHeight)
	case PreloadTab:
		content = m.renderPreload(m.width, contentHeight)
	case TrainingTab:
		content = m.renderTraining(m.width, contentHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		content,
		m.renderFooter(),
	)
}

func (m *Model) renderHeader() string {
	tabs := []string{}

	tabIcons := []string{"🗄️", "📦", "🚀", "📈"}
	tabNames := []string{"Regions", "Classes", "Preload", "Training"}

	for i, name := range tabNames {
		style := TabInactiveStyle
		indicator := " "

		if TabType(i) == m.currentTab {
			style = TabActiveStyle
			indicator = "●"
		}

		tabText := fmt.Sprintf("%s %s %s [%d]", indicator, tabIcons[i], name, i+1)
		tabs = append(tabs, style.Render(tabText))
	}

	tabLine := strings.Join(tabs, "  ")
	border := strings.Repeat("─", m.width)

	return lipgloss.JoinVertical(lipgloss.Left, tabLine, border)
}

func (m *Model) renderFooter() string {
	h := help.New()
	h.Width = m.width
	h.ShowAll = m.help.expanded
	return h.View(m.keys)
}

// Start opens the archive browser and blocks until the user quits.
func Start(img *archive.Image) error {
	program := tea.NewProgram(
		initialModel(img),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err := program.Run()
	return err
}
