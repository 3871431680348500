package user

import "strings"

// MenuItem is one entry of the navigation tree returned on login.
type MenuItem struct {
	Label string     `json:"label"`
	Path  string     `json:"path,omitempty"`
	Items []MenuItem `json:"items,omitempty"`
}

// MenuResolver maps a role to the menu shown to users holding it.
type MenuResolver interface {
	Menu(role string) []MenuItem
}

// StaticMenus resolves menus from a fixed table keyed by lowercase role.
type StaticMenus struct {
	ByRole  map[string][]MenuItem
	Default []MenuItem
}

func (m StaticMenus) Menu(role string) []MenuItem {
	if items, ok := m.ByRole[strings.ToLower(role)]; ok {
		return items
	}
	return m.Default
}

// DefaultMenus is the stock menu tree: administrators manage users and read
// the audit trail, every other role gets the home entry only.
func DefaultMenus() StaticMenus {
	home := MenuItem{Label: "Inicio", Path: "/"}
	return StaticMenus{
		ByRole: map[string][]MenuItem{
			AdminRole: {
				home,
				{Label: "Usuarios", Path: "/users", Items: []MenuItem{
					{Label: "Listar", Path: "/users"},
					{Label: "Crear", Path: "/users/new"},
				}},
				{Label: "Auditoría", Path: "/audit"},
			},
		},
		Default: []MenuItem{home},
	}
}
