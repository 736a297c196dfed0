package service

import (
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/ws"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *fakePublisher) Publish(e ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) Types() []ws.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ws.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// fakePrivilegeRepo serves the default catalogue with ids in catalogue order
type fakePrivilegeRepo struct {
	rows []model.Privilege
}

func newFakePrivilegeRepo() *fakePrivilegeRepo {
	rows := model.DefaultPrivileges()
	for i := range rows {
		rows[i].ID = uint(i + 1)
	}
	return &fakePrivilegeRepo{rows: rows}
}

func (r *fakePrivilegeRepo) FindByModuleAction(moduleKey, action string) (*model.Privilege, error) {
	for i := range r.rows {
		if r.rows[i].ModuleKey == moduleKey && r.rows[i].Action == action {
			p := r.rows[i]
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePrivilegeRepo) FindByIDs(ids []uint) ([]model.Privilege, error) {
	var out []model.Privilege
	for _, p := range r.rows {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *fakePrivilegeRepo) FindAll() ([]model.Privilege, error) {
	return append([]model.Privilege(nil), r.rows...), nil
}

func (r *fakePrivilegeRepo) Create(p *model.Privilege) error {
	p.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *p)
	return nil
}

func (r *fakePrivilegeRepo) SetActive(id uint, active bool) error {
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows[i].IsActive = active
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakePrivilegeRepo) SeedDefaults() error { return nil }

type fakeRoleRepo struct {
	roles map[uint]*model.Role
	next  uint
}

// newFakeRoleRepo seeds the default roles with their default privileges
func newFakeRoleRepo(privileges []model.Privilege) *fakeRoleRepo {
	r := &fakeRoleRepo{roles: make(map[uint]*model.Role)}
	for _, def := range model.DefaultRoles {
		role := def
		for _, p := range privileges {
			if model.DefaultRoleIncludes(role.Code, p) {
				role.Privileges = append(role.Privileges, p)
			}
		}
		_ = r.Create(&role)
	}
	return r
}

func (r *fakeRoleRepo) FindAll() ([]model.Role, error) {
	var out []model.Role
	for id := uint(1); id <= r.next; id++ {
		if role, ok := r.roles[id]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (r *fakeRoleRepo) FindByID(id uint) (*model.Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *role
	cp.Privileges = append([]model.Privilege(nil), role.Privileges...)
	return &cp, nil
}

func (r *fakeRoleRepo) FindByCode(code string) (*model.Role, error) {
	for _, role := range r.roles {
		if role.Code == code {
			return r.FindByID(role.ID)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRoleRepo) Create(role *model.Role) error {
	r.next++
	role.ID = r.next
	cp := *role
	r.roles[role.ID] = &cp
	return nil
}

func (r *fakeRoleRepo) ReplacePrivileges(roleID uint, privileges []model.Privilege) error {
	role, ok := r.roles[roleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	role.Privileges = append([]model.Privilege(nil), privileges...)
	return nil
}

func (r *fakeRoleRepo) SeedDefaults() error { return nil }

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
	roles *fakeRoleRepo
}

func newFakeUserRepo(roles *fakeRoleRepo) *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User), roles: roles}
}

func (r *fakeUserRepo) hydrate(u *model.User) *model.User {
	cp := *u
	cp.Role = nil
	if u.RoleID != nil {
		if role, err := r.roles.FindByID(*u.RoleID); err == nil {
			cp.Role = role
		}
	}
	return &cp
}

func (r *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return r.hydrate(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindByID(id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.hydrate(u), nil
}

func (r *fakeUserRepo) Create(u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Update(u *model.User) error {
	if _, ok := r.users[u.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *u
	cp.Role = nil
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Delete(id uuid.UUID) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) UpdatePassword(id uuid.UUID, hashed string) error {
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Password = hashed
	return nil
}

func (r *fakeUserRepo) UpdateRole(id uuid.UUID, roleID uint) error {
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.RoleID = &roleID
	return nil
}

func (r *fakeUserRepo) FindAll() ([]model.User, error) {
	var out []model.User
	for _, u := range r.users {
		out = append(out, *r.hydrate(u))
	}
	return out, nil
}

func (r *fakeUserRepo) FindByRole(roleID uint) ([]model.User, error) {
	var out []model.User
	for _, u := range r.users {
		if u.RoleID != nil && *u.RoleID == roleID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateTokenVersion(id uuid.UUID, version string) error {
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.TokenVersion = version
	return nil
}

func (r *fakeUserRepo) UpdateLastSeen(id uuid.UUID) error {
	if _, ok := r.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type fakeDirectory struct {
	depts   map[uuid.UUID]*model.Department
	order   []uuid.UUID
	emps    map[uuid.UUID]*model.Employee
	empList []uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{depts: make(map[uuid.UUID]*model.Department), emps: make(map[uuid.UUID]*model.Employee)}
}

type fakeDeptRepo struct{ d *fakeDirectory }
type fakeEmpRepo struct{ d *fakeDirectory }

func (r fakeDeptRepo) FindAll() ([]model.Department, error) {
	var out []model.Department
	for _, id := range r.d.order {
		out = append(out, *r.d.depts[id])
	}
	return out, nil
}

func (r fakeDeptRepo) FindByID(id uuid.UUID) (*model.Department, error) {
	dept, ok := r.d.depts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *dept
	return &cp, nil
}

func (r fakeDeptRepo) Create(dept *model.Department) error {
	dept.ID = uuid.New()
	cp := *dept
	r.d.depts[dept.ID] = &cp
	r.d.order = append(r.d.order, dept.ID)
	return nil
}

func (r fakeDeptRepo) Rename(id uuid.UUID, name, _ string) error {
	dept, ok := r.d.depts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	dept.Name = name
	return nil
}

func (r fakeDeptRepo) Delete(id uuid.UUID, cascade bool, _ string) ([]uuid.UUID, error) {
	dept, ok := r.d.depts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	var removed []uuid.UUID
	if cascade {
		for _, e := range dept.Employees {
			removed = append(removed, e.ID)
			r.d.scrub(e.ID)
		}
	}
	delete(r.d.depts, id)
	var order []uuid.UUID
	for _, d := range r.d.order {
		if d != id {
			order = append(order, d)
		}
	}
	r.d.order = order
	return removed, nil
}

func (d *fakeDirectory) scrub(empID uuid.UUID) {
	delete(d.emps, empID)
	for _, dept := range d.depts {
		var kept []model.Employee
		for _, e := range dept.Employees {
			if e.ID != empID {
				kept = append(kept, e)
			}
		}
		dept.Employees = kept
	}
}

func (r fakeDeptRepo) AddEmployee(deptID uuid.UUID, emp *model.Employee) error {
	dept, ok := r.d.depts[deptID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if emp.ID == uuid.Nil {
		_ = fakeEmpRepo{r.d}.Create(emp)
	} else if existing, ok := r.d.emps[emp.ID]; ok {
		*emp = *existing
	} else {
		return gorm.ErrRecordNotFound
	}
	for _, e := range dept.Employees {
		if e.ID == emp.ID {
			return nil
		}
	}
	dept.Employees = append(dept.Employees, *emp)
	return nil
}

func (r fakeDeptRepo) RemoveEmployee(deptID, empID uuid.UUID, global bool, _ string) error {
	dept, ok := r.d.depts[deptID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if global {
		r.d.scrub(empID)
		return nil
	}
	var kept []model.Employee
	for _, e := range dept.Employees {
		if e.ID != empID {
			kept = append(kept, e)
		}
	}
	dept.Employees = kept
	return nil
}

func (r fakeEmpRepo) FindAll() ([]model.Employee, error) {
	var out []model.Employee
	for _, id := range r.d.empList {
		if e, ok := r.d.emps[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r fakeEmpRepo) Search(query string, _ int) ([]model.Employee, error) {
	all, _ := r.FindAll()
	var out []model.Employee
	for _, e := range all {
		if e.FullName == query || e.Email == query {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r fakeEmpRepo) FindByID(id uuid.UUID) (*model.Employee, error) {
	e, ok := r.d.emps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r fakeEmpRepo) Create(emp *model.Employee) error {
	emp.ID = uuid.New()
	cp := *emp
	r.d.emps[emp.ID] = &cp
	r.d.empList = append(r.d.empList, emp.ID)
	return nil
}

func (r fakeEmpRepo) Update(emp *model.Employee) error {
	if _, ok := r.d.emps[emp.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *emp
	r.d.emps[emp.ID] = &cp
	return nil
}

func (r fakeEmpRepo) Delete(id uuid.UUID, _ string) error {
	if _, ok := r.d.emps[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.d.scrub(id)
	return nil
}
