// Package store is the console's normalized cache of departments and employees.
//
// Employees live in a single global collection. Departments reference them by id and
// an employee may be referenced by several departments. A back-reference index from
// employee id to department ids makes cascade removal a lookup rather than a scan.
package store

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Department references its members by employee id, in display order
type Department struct {
	ID          string
	Name        string
	EmployeeIDs []string
}

func (d Department) clone() Department {
	d.EmployeeIDs = append([]string(nil), d.EmployeeIDs...)
	return d
}

// Employee is a profile in the global employee collection
type Employee struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Designation string
}

// DeleteOptions controls RemoveDepartment. Without Cascade the department's employees
// stay in the global collection.
type DeleteOptions struct {
	Cascade bool
}

// DetachOptions controls RemoveEmployeeFromDepartment
type DetachOptions struct {
	RemoveGlobally bool
}

// State is an immutable copy of the store handed back after every mutation
type State struct {
	DepartmentIDs []string
	Departments   map[string]Department
	EmployeeIDs   []string
	Employees     map[string]Employee
}

// ViolationHook receives every rejected mutation, strict or not
type ViolationHook func(op string, err error)

// Option configures a Directory
type Option func(*Directory)

// WithStrict makes integrity violations return errors instead of silently no-opping
func WithStrict(strict bool) Option {
	return func(d *Directory) { d.strict = strict }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithViolationHook(hook ViolationHook) Option {
	return func(d *Directory) { d.hook = hook }
}

// Directory holds the department and employee collections.
// All access goes through its methods; the mutex serializes commits arriving from
// concurrent fetches.
type Directory struct {
	mu          sync.RWMutex
	departments *collection[Department]
	employees   *collection[Employee]
	memberships map[string]map[string]struct{} // employee id -> department ids

	strict bool
	logger *zap.Logger
	hook   ViolationHook
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		departments: newCollection(func(d Department) string { return d.ID }),
		employees:   newCollection(func(e Employee) string { return e.ID }),
		memberships: make(map[string]map[string]struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetAllDepartments replaces every department. Repeated member ids inside a
// department keep their first position.
func (d *Directory) SetAllDepartments(departments []Department) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := make([]Department, len(departments))
	for i, dept := range departments {
		normalized[i] = normalizeDepartment(dept)
	}
	next, err := d.departments.build(normalized)
	if err != nil {
		return d.reject("setAll departments", err)
	}
	d.departments.replaceWith(next)
	d.rebuildMemberships()
	return d.snapshot(), nil
}

// SetAllEmployees replaces the global employee collection
func (d *Directory) SetAllEmployees(employees []Employee) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.employees.build(employees)
	if err != nil {
		return d.reject("setAll employees", err)
	}
	d.employees.replaceWith(next)
	return d.snapshot(), nil
}

// UpsertDepartment replaces the whole entity when the id exists, otherwise appends it
func (d *Directory) UpsertDepartment(dept Department) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dept = normalizeDepartment(dept)
	if dept.ID == "" {
		return d.reject("upsert department", errEmptyID)
	}
	if old, ok := d.departments.get(dept.ID); ok {
		d.unlink(old)
	}
	_ = d.departments.upsert(dept)
	d.link(dept)
	return d.snapshot(), nil
}

func (d *Directory) UpsertEmployee(emp Employee) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.employees.upsert(emp); err != nil {
		return d.reject("upsert employee", err)
	}
	return d.snapshot(), nil
}

// RemoveDepartment deletes a department. With Cascade every employee it listed is
// removed from the global collection and from every other department.
// Removing an unknown id is a no-op.
func (d *Directory) RemoveDepartment(id string, opts DeleteOptions) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dept, ok := d.departments.get(id)
	if !ok {
		return d.snapshot(), nil
	}
	d.unlink(dept)
	d.departments.remove(id)
	if opts.Cascade {
		for _, empID := range dept.EmployeeIDs {
			d.purgeEmployee(empID)
		}
	}
	return d.snapshot(), nil
}

// RemoveEmployee deletes an employee globally and strips it from every department
func (d *Directory) RemoveEmployee(id string) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeEmployee(id)
	return d.snapshot(), nil
}

// AddEmployeeToDepartment upserts the employee and appends it to the department once
func (d *Directory) AddEmployeeToDepartment(departmentID string, emp Employee) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dept, ok := d.departments.get(departmentID)
	if !ok {
		return d.reject("add employee", fmt.Errorf("department %s not in store", departmentID))
	}
	if emp.ID == "" {
		return d.reject("add employee", errEmptyID)
	}
	_ = d.employees.upsert(emp)
	if !contains(dept.EmployeeIDs, emp.ID) {
		dept = dept.clone()
		dept.EmployeeIDs = append(dept.EmployeeIDs, emp.ID)
		_ = d.departments.upsert(dept)
	}
	d.addMembership(emp.ID, departmentID)
	return d.snapshot(), nil
}

// RemoveEmployeeFromDepartment drops the reference from one department. With
// RemoveGlobally the employee is deleted and scrubbed from every department.
func (d *Directory) RemoveEmployeeFromDepartment(departmentID, employeeID string, opts DetachOptions) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dept, ok := d.departments.get(departmentID)
	if !ok {
		return d.reject("remove employee", fmt.Errorf("department %s not in store", departmentID))
	}
	if contains(dept.EmployeeIDs, employeeID) {
		dept = dept.clone()
		dept.EmployeeIDs = without(dept.EmployeeIDs, employeeID)
		_ = d.departments.upsert(dept)
	}
	d.dropMembership(employeeID, departmentID)
	if opts.RemoveGlobally {
		d.purgeEmployee(employeeID)
	}
	return d.snapshot(), nil
}

// DepartmentIDs returns department ids in display order
func (d *Directory) DepartmentIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.departments.ids()
}

func (d *Directory) Department(id string) (Department, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dept, ok := d.departments.get(id)
	return dept.clone(), ok
}

// EmployeeIDs returns the global employee ids in display order
func (d *Directory) EmployeeIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.employees.ids()
}

func (d *Directory) Employee(id string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.employees.get(id)
}

// EmployeesForDepartment resolves a department's members in its order. References to
// employees that are not loaded yet are skipped.
func (d *Directory) EmployeesForDepartment(id string) []Employee {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dept, ok := d.departments.get(id)
	if !ok {
		return nil
	}
	out := make([]Employee, 0, len(dept.EmployeeIDs))
	for _, empID := range dept.EmployeeIDs {
		if emp, ok := d.employees.get(empID); ok {
			out = append(out, emp)
		}
	}
	return out
}

// DepartmentsForEmployee returns the ids of departments referencing the employee,
// in department display order
func (d *Directory) DepartmentsForEmployee(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	refs := d.memberships[id]
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, deptID := range d.departments.allIDs {
		if _, ok := refs[deptID]; ok {
			out = append(out, deptID)
		}
	}
	return out
}

// State returns a copy of the whole store
func (d *Directory) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot()
}

// CheckIntegrity verifies both collections and the back-reference index
func (d *Directory) CheckIntegrity() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.departments.check(); err != nil {
		return fmt.Errorf("%w: departments: %v", ErrIntegrity, err)
	}
	if err := d.employees.check(); err != nil {
		return fmt.Errorf("%w: employees: %v", ErrIntegrity, err)
	}

	expected := 0
	for _, deptID := range d.departments.allIDs {
		dept := d.departments.byID[deptID]
		seen := make(map[string]struct{}, len(dept.EmployeeIDs))
		for _, empID := range dept.EmployeeIDs {
			if _, dup := seen[empID]; dup {
				return fmt.Errorf("%w: department %s lists %s twice", ErrIntegrity, deptID, empID)
			}
			seen[empID] = struct{}{}
			if _, ok := d.memberships[empID][deptID]; !ok {
				return fmt.Errorf("%w: index misses %s in %s", ErrIntegrity, empID, deptID)
			}
			expected++
		}
	}
	indexed := 0
	for _, refs := range d.memberships {
		indexed += len(refs)
	}
	if indexed != expected {
		return fmt.Errorf("%w: index holds %d references, departments hold %d", ErrIntegrity, indexed, expected)
	}
	return nil
}

func (d *Directory) reject(op string, cause error) (State, error) {
	err := fmt.Errorf("%w: %s: %v", ErrIntegrity, op, cause)
	if d.hook != nil {
		d.hook(op, err)
	}
	if d.strict {
		d.logger.Error("store mutation rejected", zap.String("op", op), zap.Error(err))
		return d.snapshot(), err
	}
	d.logger.Warn("store mutation ignored", zap.String("op", op), zap.Error(err))
	return d.snapshot(), nil
}

// purgeEmployee removes the employee globally and from every referencing department
func (d *Directory) purgeEmployee(empID string) {
	for deptID := range d.memberships[empID] {
		dept, ok := d.departments.get(deptID)
		if !ok {
			continue
		}
		dept = dept.clone()
		dept.EmployeeIDs = without(dept.EmployeeIDs, empID)
		_ = d.departments.upsert(dept)
	}
	delete(d.memberships, empID)
	d.employees.remove(empID)
}

func (d *Directory) link(dept Department) {
	for _, empID := range dept.EmployeeIDs {
		d.addMembership(empID, dept.ID)
	}
}

func (d *Directory) unlink(dept Department) {
	for _, empID := range dept.EmployeeIDs {
		d.dropMembership(empID, dept.ID)
	}
}

func (d *Directory) addMembership(empID, deptID string) {
	refs, ok := d.memberships[empID]
	if !ok {
		refs = make(map[string]struct{})
		d.memberships[empID] = refs
	}
	refs[deptID] = struct{}{}
}

func (d *Directory) dropMembership(empID, deptID string) {
	refs, ok := d.memberships[empID]
	if !ok {
		return
	}
	delete(refs, deptID)
	if len(refs) == 0 {
		delete(d.memberships, empID)
	}
}

func (d *Directory) rebuildMemberships() {
	d.memberships = make(map[string]map[string]struct{})
	for _, deptID := range d.departments.allIDs {
		d.link(d.departments.byID[deptID])
	}
}

func (d *Directory) snapshot() State {
	s := State{
		DepartmentIDs: d.departments.ids(),
		Departments:   make(map[string]Department, d.departments.len()),
		EmployeeIDs:   d.employees.ids(),
		Employees:     make(map[string]Employee, d.employees.len()),
	}
	for id, dept := range d.departments.byID {
		s.Departments[id] = dept.clone()
	}
	for id, emp := range d.employees.byID {
		s.Employees[id] = emp
	}
	return s
}

func normalizeDepartment(dept Department) Department {
	if len(dept.EmployeeIDs) == 0 {
		dept.EmployeeIDs = nil
		return dept
	}
	seen := make(map[string]struct{}, len(dept.EmployeeIDs))
	ids := make([]string, 0, len(dept.EmployeeIDs))
	for _, id := range dept.EmployeeIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		ids = nil
	}
	dept.EmployeeIDs = ids
	return dept
}

// IsIntegrityError reports whether err came from a rejected mutation
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrIntegrity)
}
