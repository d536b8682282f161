package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/training"
)

type Model struct {
	// Data
	img     *archive.Image
	classes []*meta.Class
	records []training.Record

	// UI State
	currentTab TabType
	width      int
	height     int

	scrollPositions map[TabType]int
	classFilter     classFilter
	selectedClass   int

	// Key bindings
	keys KeyMap
	help helpState
}

type TabType int

const (
	RegionsTab TabType = iota
	ClassesTab
	PreloadTab
	TrainingTab
	tabCount
)

// classFilter narrows the class list to one loader, or shows all.
type classFilter int

const (
	filterAll classFilter = iota
	filterBoot
	filterPlatform
	filterApp
)

func (f classFilter) String() string {
	switch f {
	case filterBoot:
		return meta.BootLoader.String()
	case filterPlatform:
		return meta.PlatformLoader.String()
	case filterApp:
		return meta.AppLoader.String()
	default:
		return "all"
	}
}

func (f classFilter) matches(c *meta.Class) bool {
	switch f {
	case filterBoot:
		return c.Loader == meta.BootLoader
	case filterPlatform:
		return c.Loader == meta.PlatformLoader
	case filterApp:
		return c.Loader == meta.AppLoader
	default:
		return true
	}
}

type helpState struct {
	expanded bool
}

type KeyMap struct {
	Tab1  key.Binding
	Tab2  key.Binding
	Tab3  key.Binding
	Tab4  key.Binding
	Left  key.Binding
	Right key.Binding
	Up    key.Binding
	Down  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func k(keys []string, help, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(help, desc),
	)
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Tab1:  k([]string{"1"}, "1", "regions"),
		Tab2:  k([]string{"2"}, "2", "classes"),
		Tab3:  k([]string{"3"}, "3", "preload"),
		Tab4:  k([]string{"4"}, "4", "training"),
		Left:  k([]string{"left", "h"}, "←/h", "prev filter"),
		Right: k([]string{"right", "l"}, "→/l", "next filter"),
		Up:    k([]string{"up", "k"}, "↑/k", "up"),
		Down:  k([]string{"down", "j"}, "↓/j", "down"),
		Help:  k([]string{"?"}, "?", "help"),
		Quit:  k([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}

// ShortHelp and FullHelp satisfy help.KeyMap.
func (km KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Up, km.Down, km.Left, km.Right, km.Help, km.Quit}
}

func (km KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Tab1, km.Tab2, km.Tab3, km.Tab4},
		{km.Up, km.Down, km.Left, km.Right},
		{km.Help, km.Quit},
	}
}
