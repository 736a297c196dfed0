package permission

// ActionCell is one toggle in the role-authoring matrix
type ActionCell struct {
	Action  Action `json:"action"`
	Enabled bool   `json:"enabled"`
}

// ModuleRow groups the cells of a single module
type ModuleRow struct {
	ModuleKey string       `json:"module_key"`
	Actions   []ActionCell `json:"actions"`
}

// BuildMatrix groups a flat catalogue by module, in first-seen order, and marks each
// action enabled when existing grants include it. Inactive entries are left out and
// modules without active actions are dropped.
//
// A repeated (module, action) pair keeps its first position; the last occurrence
// decides whether it is active.
func BuildMatrix(catalogue []CatalogueEntry, existing []Grant) []ModuleRow {
	granted := NewGrantSet(existing)

	type moduleActions struct {
		order  []Action
		active map[Action]bool
	}
	var moduleOrder []string
	modules := make(map[string]*moduleActions)

	for _, e := range catalogue {
		key := e.ModuleKey
		if key == "" || e.Action == "" {
			continue
		}
		m, ok := modules[key]
		if !ok {
			m = &moduleActions{active: make(map[Action]bool)}
			modules[key] = m
			moduleOrder = append(moduleOrder, key)
		}
		if _, seen := m.active[e.Action]; !seen {
			m.order = append(m.order, e.Action)
		}
		m.active[e.Action] = e.active()
	}

	rows := make([]ModuleRow, 0, len(moduleOrder))
	for _, key := range moduleOrder {
		m := modules[key]
		var cells []ActionCell
		for _, a := range m.order {
			if !m.active[a] {
				continue
			}
			cells = append(cells, ActionCell{Action: a, Enabled: granted.CanPerform(key, a)})
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, ModuleRow{ModuleKey: key, Actions: cells})
	}
	return rows
}

// ApplyToggle returns a copy of the matrix with a single cell changed.
// Unknown cells leave the copy identical to the input.
func ApplyToggle(matrix []ModuleRow, moduleKey string, action Action, enabled bool) []ModuleRow {
	out := make([]ModuleRow, len(matrix))
	for i, row := range matrix {
		cells := append([]ActionCell(nil), row.Actions...)
		if row.ModuleKey == moduleKey {
			for j := range cells {
				if cells[j].Action == action {
					cells[j].Enabled = enabled
				}
			}
		}
		out[i] = ModuleRow{ModuleKey: row.ModuleKey, Actions: cells}
	}
	return out
}

// GrantsFromMatrix collects enabled cells into grants, one per module, in matrix order.
// Modules with nothing enabled produce no grant.
func GrantsFromMatrix(matrix []ModuleRow) []Grant {
	var grants []Grant
	for _, row := range matrix {
		var actions []Action
		for _, cell := range row.Actions {
			if cell.Enabled {
				actions = append(actions, cell.Action)
			}
		}
		if len(actions) > 0 {
			grants = append(grants, Grant{ModuleKey: row.ModuleKey, Actions: actions})
		}
	}
	return grants
}
