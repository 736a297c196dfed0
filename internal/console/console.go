// Package console composes the permission cache, the directory store, and the
// fetch coordinator into the operations an operator console performs.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-fleet-console/internal/fetch"
	"go-fleet-console/internal/obs"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/session"
	"go-fleet-console/internal/store"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrCollaborator     = errors.New("collaborator request failed")
)

// Fetch slots. A newer request in a slot supersedes every older one.
const (
	slotDepartments = "departments"
	slotEmployees   = "employees"
	slotSearch      = "search"
)

// LoginResult is what the authorization collaborator returns for valid credentials
type LoginResult struct {
	User   session.User
	Token  string
	Grants []permission.Grant
}

// AuthAPI is the authorization collaborator
type AuthAPI interface {
	session.PermissionFetcher
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// DirectoryAPI is the directory collaborator. AddEmployeeToDepartment attaches an
// existing employee when emp.ID is set and creates one otherwise.
type DirectoryAPI interface {
	ListDepartments(ctx context.Context, token string) ([]store.Department, error)
	ListEmployees(ctx context.Context, token, query string) ([]store.Employee, error)
	CreateDepartment(ctx context.Context, token, name string) (store.Department, error)
	RenameDepartment(ctx context.Context, token, id, name string) (store.Department, error)
	DeleteDepartment(ctx context.Context, token, id string, cascade bool) ([]string, error)
	AddEmployeeToDepartment(ctx context.Context, token, departmentID string, emp store.Employee) (store.Employee, error)
	RemoveEmployeeFromDepartment(ctx context.Context, token, departmentID, employeeID string, global bool) error
}

// SearchListener is told about every committed search and every failed one
type SearchListener func(query string, results []store.Employee, err error)

type Console struct {
	auth  AuthAPI
	dir   DirectoryAPI
	cache *session.Cache
	store *store.Directory
	coord *fetch.Coordinator

	debounce time.Duration
	search   *fetch.Debouncer
	onSearch SearchListener
	strict   bool

	logger  *zap.Logger
	metrics *obs.Metrics

	// mutations serializes writes so a create and its refresh never interleave with another write
	mutations sync.Mutex

	mu          sync.RWMutex
	searchQuery string
	searchHits  []store.Employee
	searchErr   error
}

type Option func(*Console)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Console) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(c *Console) { c.metrics = m }
}

// WithStrict makes store integrity violations surface as errors
func WithStrict(strict bool) Option {
	return func(c *Console) { c.strict = strict }
}

func WithDebounce(window time.Duration) Option {
	return func(c *Console) { c.debounce = window }
}

func WithSearchListener(fn SearchListener) Option {
	return func(c *Console) { c.onSearch = fn }
}

// WithStore replaces the directory store built by New
func WithStore(d *store.Directory) Option {
	return func(c *Console) { c.store = d }
}

func New(auth AuthAPI, dir DirectoryAPI, cache *session.Cache, opts ...Option) *Console {
	c := &Console{
		auth:   auth,
		dir:    dir,
		cache:  cache,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = store.NewDirectory(
			store.WithStrict(c.strict),
			store.WithLogger(c.logger.Named("store")),
			store.WithViolationHook(func(op string, _ error) { c.metrics.IntegrityViolation(op) }),
		)
	}
	c.coord = fetch.NewCoordinator(fetch.WithLogger(c.logger.Named("fetch")), fetch.WithMetrics(c.metrics))
	c.search = fetch.NewDebouncer(c.debounce)
	return c
}

// Store exposes the normalized directory for read selectors
func (c *Console) Store() *store.Directory {
	return c.store
}

// Cache exposes the session permission cache
func (c *Console) Cache() *session.Cache {
	return c.cache
}

// ============ SESSION ============

func (c *Console) Login(ctx context.Context, email, password string) error {
	res, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return c.collaborator("login", err)
	}
	c.cache.Replace(ctx, res.User, res.Token, res.Grants)
	c.logger.Info("signed in", zap.String("user_id", res.User.ID), zap.String("role", res.User.RoleCode))
	return nil
}

// Logout ends the session with the collaborator on a best-effort basis and always
// clears local state
func (c *Console) Logout(ctx context.Context) error {
	if token := c.cache.Token(); token != "" {
		if err := c.auth.Logout(ctx, token); err != nil {
			c.logger.Warn("logout request failed", zap.Error(err))
		}
	}
	return c.clear(ctx)
}

// Restore rehydrates the session from the persisted snapshot
func (c *Console) Restore(ctx context.Context) error {
	err := c.cache.Restore(ctx, c.auth)
	if errors.Is(err, session.ErrSessionInvalid) {
		c.clearDirectory()
	}
	return err
}

// RefreshPermissions refetches the current user's grants
func (c *Console) RefreshPermissions(ctx context.Context) error {
	err := c.cache.Refresh(ctx, c.auth)
	if errors.Is(err, session.ErrSessionInvalid) {
		c.clearDirectory()
	}
	return err
}

func (c *Console) CanPerform(moduleKey string, action permission.Action) bool {
	return c.cache.CanPerform(moduleKey, action)
}

func (c *Console) clear(ctx context.Context) error {
	c.search.Stop()
	c.clearDirectory()
	c.mu.Lock()
	c.searchQuery, c.searchHits, c.searchErr = "", nil, nil
	c.mu.Unlock()
	return c.cache.Reset(ctx)
}

func (c *Console) clearDirectory() {
	// supersede anything still in flight
	c.coord.Sequencer(slotDepartments).Next()
	c.coord.Sequencer(slotEmployees).Next()
	c.coord.Sequencer(slotSearch).Next()
	c.store.SetAllDepartments(nil)
	c.store.SetAllEmployees(nil)
}

// authorize re-checks a grant locally before any request leaves the console
func (c *Console) authorize(moduleKey string, action permission.Action) error {
	if c.cache.CanPerform(moduleKey, action) {
		return nil
	}
	user, _ := c.cache.User()
	c.logger.Warn("permission denied",
		zap.String("user_id", user.ID),
		zap.String("module", moduleKey),
		zap.String("action", string(action)),
		zap.Bool("fresh", c.cache.Fresh()),
	)
	c.metrics.PermissionDenied(moduleKey, string(action))
	return fmt.Errorf("%w: %s", ErrPermissionDenied, permission.Code(moduleKey, action))
}

// collaborator normalizes a collaborator failure. A rejected session clears local state.
func (c *Console) collaborator(op string, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionInvalid):
		c.logger.Info("session rejected", zap.String("op", op))
		if resetErr := c.clear(context.Background()); resetErr != nil {
			c.logger.Warn("clear session failed", zap.Error(resetErr))
		}
		return err
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrCollaborator),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrCollaborator, op, err)
}

// ============ DIRECTORY LOADS ============

// LoadDepartments replaces the department collection with the collaborator's list.
// A response superseded by a newer load is dropped and the current state returned.
func (c *Console) LoadDepartments(ctx context.Context) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionRead); err != nil {
		return c.store.State(), err
	}
	token := c.cache.Token()

	var commitErr error
	_, err := fetch.Fetch(ctx, c.coord, slotDepartments, "all",
		func(ctx context.Context) ([]store.Department, error) {
			return c.dir.ListDepartments(ctx, token)
		},
		func(list []store.Department) {
			_, commitErr = c.store.SetAllDepartments(list)
		})
	if err != nil {
		err = c.collaborator("list departments", err)
		return c.store.State(), err
	}
	return c.store.State(), commitErr
}

func (c *Console) LoadEmployees(ctx context.Context) (store.State, error) {
	if err := c.authorize(permission.ModuleEmployee, permission.ActionRead); err != nil {
		return c.store.State(), err
	}
	token := c.cache.Token()

	var commitErr error
	_, err := fetch.Fetch(ctx, c.coord, slotEmployees, "all",
		func(ctx context.Context) ([]store.Employee, error) {
			return c.dir.ListEmployees(ctx, token, "")
		},
		func(list []store.Employee) {
			_, commitErr = c.store.SetAllEmployees(list)
		})
	if err != nil {
		err = c.collaborator("list employees", err)
		return c.store.State(), err
	}
	return c.store.State(), commitErr
}

// ============ SEARCH ============

// SearchEmployees schedules a debounced search. Only the last query typed within
// the debounce window is sent, and only the newest response is kept.
func (c *Console) SearchEmployees(ctx context.Context, query string) error {
	if err := c.authorize(permission.ModuleEmployee, permission.ActionRead); err != nil {
		return err
	}
	c.search.Trigger(func() { c.runSearch(ctx, query) })
	return nil
}

func (c *Console) runSearch(ctx context.Context, query string) {
	token := c.cache.Token()
	committed, err := fetch.Fetch(ctx, c.coord, slotSearch, query,
		func(ctx context.Context) ([]store.Employee, error) {
			return c.dir.ListEmployees(ctx, token, query)
		},
		func(hits []store.Employee) {
			c.mu.Lock()
			c.searchQuery, c.searchHits, c.searchErr = query, hits, nil
			c.mu.Unlock()
		})
	if err != nil {
		err = c.collaborator("search employees", err)
		c.logger.Warn("employee search failed", zap.String("query", query), zap.Error(err))
		c.mu.Lock()
		c.searchQuery, c.searchErr = query, err
		c.mu.Unlock()
	}
	if c.onSearch != nil && (committed || err != nil) {
		q, hits, serr := c.SearchResults()
		c.onSearch(q, hits, serr)
	}
}

// SearchResults returns the last committed search, or the error of the last failed one
func (c *Console) SearchResults() (string, []store.Employee, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.searchQuery, append([]store.Employee(nil), c.searchHits...), c.searchErr
}

// ============ DIRECTORY MUTATIONS ============

// CreateDepartment creates a department, then reloads the list. The reload is only
// issued once the create has resolved.
func (c *Console) CreateDepartment(ctx context.Context, name string) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionWrite); err != nil {
		return c.store.State(), err
	}
	c.mutations.Lock()
	defer c.mutations.Unlock()

	created, err := c.dir.CreateDepartment(ctx, c.cache.Token(), name)
	if err != nil {
		err = c.collaborator("create department", err)
		return c.store.State(), err
	}
	state, err := c.store.UpsertDepartment(created)
	if err != nil || !c.cache.CanPerform(permission.ModuleDepartment, permission.ActionRead) {
		return state, err
	}
	// a list already in flight was sent before the create and cannot be reused
	c.coord.Forget(slotDepartments, "all")
	return c.LoadDepartments(ctx)
}

func (c *Console) RenameDepartment(ctx context.Context, id, name string) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionWrite); err != nil {
		return c.store.State(), err
	}
	c.mutations.Lock()
	defer c.mutations.Unlock()

	updated, err := c.dir.RenameDepartment(ctx, c.cache.Token(), id, name)
	if err != nil {
		err = c.collaborator("rename department", err)
		return c.store.State(), err
	}
	return c.store.UpsertDepartment(updated)
}

// DeleteDepartment removes a department. With cascade its employees are removed
// from the global collection and from every other department too.
func (c *Console) DeleteDepartment(ctx context.Context, id string, cascade bool) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionDelete); err != nil {
		return c.store.State(), err
	}
	c.mutations.Lock()
	defer c.mutations.Unlock()

	removed, err := c.dir.DeleteDepartment(ctx, c.cache.Token(), id, cascade)
	if err != nil {
		err = c.collaborator("delete department", err)
		return c.store.State(), err
	}
	state, err := c.store.RemoveDepartment(id, store.DeleteOptions{Cascade: cascade})
	if err != nil {
		return state, err
	}
	// the collaborator may know members this console never loaded
	for _, empID := range removed {
		if _, ok := c.store.Employee(empID); ok {
			if state, err = c.store.RemoveEmployee(empID); err != nil {
				return state, err
			}
		}
	}
	return state, nil
}

func (c *Console) AddEmployeeToDepartment(ctx context.Context, departmentID string, emp store.Employee) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionWrite); err != nil {
		return c.store.State(), err
	}
	c.mutations.Lock()
	defer c.mutations.Unlock()

	saved, err := c.dir.AddEmployeeToDepartment(ctx, c.cache.Token(), departmentID, emp)
	if err != nil {
		err = c.collaborator("add employee", err)
		return c.store.State(), err
	}
	return c.store.AddEmployeeToDepartment(departmentID, saved)
}

// RemoveEmployeeFromDepartment detaches a member. With global the employee is
// deleted everywhere.
func (c *Console) RemoveEmployeeFromDepartment(ctx context.Context, departmentID, employeeID string, global bool) (store.State, error) {
	if err := c.authorize(permission.ModuleDepartment, permission.ActionWrite); err != nil {
		return c.store.State(), err
	}
	c.mutations.Lock()
	defer c.mutations.Unlock()

	if err := c.dir.RemoveEmployeeFromDepartment(ctx, c.cache.Token(), departmentID, employeeID, global); err != nil {
		err = c.collaborator("remove employee", err)
		return c.store.State(), err
	}
	return c.store.RemoveEmployeeFromDepartment(departmentID, employeeID, store.DetachOptions{RemoveGlobally: global})
}
