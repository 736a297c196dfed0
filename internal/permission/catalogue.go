package permission

// CatalogueEntry is one grantable module action as published by the authorization service.
// IsActive is optional; nil means active.
type CatalogueEntry struct {
	ModuleKey string `json:"module_key"`
	Action    Action `json:"action"`
	Name      string `json:"name,omitempty"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

func (e CatalogueEntry) active() bool {
	return e.IsActive == nil || *e.IsActive
}

// Module keys of the fleet console
const (
	ModuleCompany    = "company"
	ModuleVendor     = "vendor"
	ModuleDriver     = "driver"
	ModuleVehicle    = "vehicle"
	ModuleEscort     = "escort"
	ModuleShift      = "shift"
	ModuleRole       = "role"
	ModuleUser       = "user"
	ModuleDepartment = "department"
	ModuleEmployee   = "employee"
	ModuleNotice     = "notice"
)

var crud = []Action{ActionRead, ActionWrite, ActionDelete}

// DefaultCatalogue lists the module vocabularies seeded on a fresh install.
// Notices use the content vocabulary; everything else uses read/write/delete.
func DefaultCatalogue() []CatalogueEntry {
	var entries []CatalogueEntry
	for _, module := range []string{
		ModuleCompany, ModuleVendor, ModuleDriver, ModuleVehicle, ModuleEscort,
		ModuleShift, ModuleRole, ModuleUser, ModuleDepartment, ModuleEmployee,
	} {
		for _, a := range crud {
			entries = append(entries, CatalogueEntry{ModuleKey: module, Action: a})
		}
	}
	for _, a := range []Action{ActionView, ActionEdit, ActionCreate, ActionDelete, ActionPublish} {
		entries = append(entries, CatalogueEntry{ModuleKey: ModuleNotice, Action: a})
	}
	return entries
}

// Vocabularies maps each module key to its active actions. When a module action is
// listed more than once the last entry decides whether it is active, as in BuildMatrix.
func Vocabularies(catalogue []CatalogueEntry) map[string]map[Action]struct{} {
	type moduleAction struct {
		module string
		action Action
	}
	active := make(map[moduleAction]bool, len(catalogue))
	for _, e := range catalogue {
		if e.ModuleKey == "" || e.Action == "" {
			continue
		}
		active[moduleAction{e.ModuleKey, e.Action}] = e.active()
	}

	vocab := make(map[string]map[Action]struct{})
	for ma, ok := range active {
		if !ok {
			continue
		}
		if _, exists := vocab[ma.module]; !exists {
			vocab[ma.module] = make(map[Action]struct{})
		}
		vocab[ma.module][ma.action] = struct{}{}
	}
	return vocab
}
