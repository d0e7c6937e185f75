package viz

import "github.com/charmbracelet/lipgloss"

// Theme colors the field layers and the stats panel.
type Theme struct {
	Name      string
	Truth     lipgloss.Color
	Estimate  lipgloss.Color
	Reference lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Good      lipgloss.Color
	Warn      lipgloss.Color
	Bad       lipgloss.Color
}

var (
	ThemeCyberpunk = Theme{
		Name:      "cyberpunk",
		Truth:     lipgloss.Color("#00ffff"),
		Estimate:  lipgloss.Color("#ff00ff"),
		Reference: lipgloss.Color("#666666"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#666688"),
		Good:      lipgloss.Color("#00ff88"),
		Warn:      lipgloss.Color("#ffaa00"),
		Bad:       lipgloss.Color("#ff4444"),
	}

	ThemeRetroGreen = Theme{
		Name:      "retro",
		Truth:     lipgloss.Color("#00ff00"),
		Estimate:  lipgloss.Color("#88ff88"),
		Reference: lipgloss.Color("#005500"),
		Text:      lipgloss.Color("#00ff00"),
		Muted:     lipgloss.Color("#005500"),
		Good:      lipgloss.Color("#88ff88"),
		Warn:      lipgloss.Color("#ffff00"),
		Bad:       lipgloss.Color("#ff0000"),
	}

	ThemeMinimal = Theme{
		Name:      "minimal",
		Truth:     lipgloss.Color("#ffffff"),
		Estimate:  lipgloss.Color("#0088ff"),
		Reference: lipgloss.Color("#555555"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#888888"),
		Good:      lipgloss.Color("#00ff00"),
		Warn:      lipgloss.Color("#ffaa00"),
		Bad:       lipgloss.Color("#ff0000"),
	}

	Themes = []Theme{ThemeCyberpunk, ThemeRetroGreen, ThemeMinimal}
)

// GetTheme returns the named theme, falling back to the first one.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return Themes[0]
}

// NextTheme cycles through Themes.
func NextTheme(current Theme) Theme {
	for i, t := range Themes {
		if t.Name == current.Name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
