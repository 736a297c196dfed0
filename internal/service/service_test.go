package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/jwt"
)

var (
	_ repository.PrivilegeRepository  = (*fakePrivilegeRepo)(nil)
	_ repository.RoleRepository       = (*fakeRoleRepo)(nil)
	_ repository.UserRepository       = (*fakeUserRepo)(nil)
	_ repository.DepartmentRepository = fakeDeptRepo{}
	_ repository.EmployeeRepository   = fakeEmpRepo{}
)

type fixture struct {
	privileges *fakePrivilegeRepo
	roles      *fakeRoleRepo
	users      *fakeUserRepo
	hub        *fakePublisher
	tokens     *jwt.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	privileges := newFakePrivilegeRepo()
	roles := newFakeRoleRepo(privileges.rows)
	tokens, err := jwt.NewManager("test-secret", 1)
	require.NoError(t, err)
	return &fixture{
		privileges: privileges,
		roles:      roles,
		users:      newFakeUserRepo(roles),
		hub:        &fakePublisher{},
		tokens:     tokens,
	}
}

func (f *fixture) addUser(t *testing.T, email, roleCode string) *model.User {
	t.Helper()
	role, err := f.roles.FindByCode(roleCode)
	require.NoError(t, err)
	u := &model.User{Email: email, FullName: email, RoleID: &role.ID, IsActive: true}
	require.NoError(t, u.SetPassword("secret123"))
	require.NoError(t, f.users.Create(u))
	return u
}

func TestLogin_ReturnsRoleGrants(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "dispatch@example.com", model.RoleDispatcher)
	auth := NewAuthService(f.users, f.tokens, f.hub, nil)

	resp, err := auth.Login("dispatch@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, model.RoleDispatcher, resp.User.RoleCode)

	set := permission.NewGrantSet(resp.Grants)
	assert.True(t, set.CanPerform(permission.ModuleDriver, permission.ActionWrite))
	assert.False(t, set.CanPerform(permission.ModuleDriver, permission.ActionDelete))
	assert.False(t, set.CanPerform(permission.ModuleRole, permission.ActionRead))

	_, err = auth.Login("dispatch@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login("nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_SingleSession(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "viewer@example.com", model.RoleViewer)
	auth := NewAuthService(f.users, f.tokens, f.hub, nil)

	first, err := auth.Login("viewer@example.com", "secret123")
	require.NoError(t, err)
	user, err := auth.Authenticate(first.Token)
	require.NoError(t, err)
	assert.Equal(t, "viewer@example.com", user.Email)

	second, err := auth.Login("viewer@example.com", "secret123")
	require.NoError(t, err)
	_, err = auth.Authenticate(first.Token)
	assert.ErrorIs(t, err, ErrSessionReplaced)

	require.NoError(t, auth.Logout(user.ID))
	_, err = auth.Authenticate(second.Token)
	assert.ErrorIs(t, err, ErrSessionReplaced)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "gone@example.com", model.RoleViewer)
	u.IsActive = false
	require.NoError(t, f.users.Update(u))

	_, err := NewAuthService(f.users, f.tokens, f.hub, nil).Login("gone@example.com", "secret123")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestRoleMatrix_ReflectsGrants(t *testing.T) {
	f := newFixture(t)
	roles := NewRoleService(f.roles, f.privileges, f.users, f.hub, nil)
	dispatcher, err := f.roles.FindByCode(model.RoleDispatcher)
	require.NoError(t, err)

	m, err := roles.Matrix(dispatcher.ID)
	require.NoError(t, err)
	require.NotEmpty(t, m.Modules)
	assert.Equal(t, permission.ModuleCompany, m.Modules[0].ModuleKey)

	for _, row := range m.Modules {
		if row.ModuleKey != permission.ModuleDriver {
			continue
		}
		assert.Equal(t, []permission.ActionCell{
			{Action: permission.ActionRead, Enabled: true},
			{Action: permission.ActionWrite, Enabled: true},
			{Action: permission.ActionDelete, Enabled: false},
		}, row.Actions)
	}
}

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t)
	holder := f.addUser(t, "ops@example.com", model.RoleDispatcher)
	roles := NewRoleService(f.roles, f.privileges, f.users, f.hub, nil)
	dispatcher, err := f.roles.FindByCode(model.RoleDispatcher)
	require.NoError(t, err)

	resp, err := roles.UpdatePermissions(dispatcher.ID, []permission.Grant{
		{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionRead}},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, []permission.Grant{{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionRead}}}, resp.Grants)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, ws.EventPermissionsChanged, f.hub.events[0].Type)
	assert.Equal(t, []string{holder.ID.String()}, f.hub.events[0].IDs)

	_, err = roles.UpdatePermissions(dispatcher.ID, []permission.Grant{
		{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionPublish}},
	}, "admin")
	assert.ErrorIs(t, err, ErrInvalidGrants)

	_, err = roles.UpdatePermissions(dispatcher.ID, []permission.Grant{
		{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionRead}},
		{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionWrite}},
	}, "admin")
	assert.ErrorIs(t, err, ErrInvalidGrants)

	master, err := f.roles.FindByCode(model.RoleMasterAdmin)
	require.NoError(t, err)
	_, err = roles.UpdatePermissions(master.ID, nil, "admin")
	assert.ErrorIs(t, err, ErrRoleLocked)

	_, err = roles.UpdatePermissions(999, nil, "admin")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestToggleCell(t *testing.T) {
	f := newFixture(t)
	roles := NewRoleService(f.roles, f.privileges, f.users, f.hub, nil)
	viewer, err := f.roles.FindByCode(model.RoleViewer)
	require.NoError(t, err)

	m, err := roles.ToggleCell(viewer.ID, &ToggleRequest{ModuleKey: "notice", Action: permission.ActionPublish, Enabled: true}, "admin")
	require.NoError(t, err)

	set := permission.NewGrantSet(m.Role.Grants)
	assert.True(t, set.CanPerform("notice", permission.ActionPublish))
	assert.True(t, set.CanPerform("notice", permission.ActionView))
	assert.False(t, set.CanPerform("notice", permission.ActionEdit))
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)
	roles := NewRoleService(f.roles, f.privileges, f.users, f.hub, nil)

	resp, err := roles.CreateRole(&CreateRoleRequest{
		Code:   " escort_lead ",
		Name:   "Escort lead",
		Grants: []permission.Grant{{ModuleKey: "escort", Actions: []permission.Action{permission.ActionRead, permission.ActionWrite}}},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "ESCORT_LEAD", resp.Code)
	assert.True(t, resp.IsAssignable)

	_, err = roles.CreateRole(&CreateRoleRequest{Code: "ESCORT_LEAD", Name: "dup"}, "admin")
	assert.ErrorIs(t, err, ErrRoleExists)
	_, err = roles.CreateRole(&CreateRoleRequest{Code: "X"}, "admin")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssignRole_RejectsSystemRole(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "ops@example.com", model.RoleViewer)
	users := NewUserService(f.users, f.roles, f.hub, nil)

	master, err := f.roles.FindByCode(model.RoleMasterAdmin)
	require.NoError(t, err)
	_, err = users.AssignRole(u.ID, master.ID, "admin")
	assert.ErrorIs(t, err, ErrRoleNotAssignable)
	assert.Empty(t, f.hub.events)

	dispatcher, err := f.roles.FindByCode(model.RoleDispatcher)
	require.NoError(t, err)
	updated, err := users.AssignRole(u.ID, dispatcher.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleDispatcher, updated.RoleCode())
	assert.Equal(t, []ws.EventType{ws.EventPermissionsChanged}, f.hub.Types())

	_, err = users.AssignRole(uuid.New(), dispatcher.ID, "admin")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.users, f.roles, f.hub, nil)
	viewer, err := f.roles.FindByCode(model.RoleViewer)
	require.NoError(t, err)

	u, err := users.CreateUser(&CreateUserRequest{Email: "new@example.com", Password: "secret123", FullName: "New", RoleID: viewer.ID}, "admin")
	require.NoError(t, err)
	assert.True(t, u.CheckPassword("secret123"))

	_, err = users.CreateUser(&CreateUserRequest{Email: "new@example.com", Password: "secret123", FullName: "Dup", RoleID: viewer.ID}, "admin")
	assert.ErrorIs(t, err, ErrEmailExists)
	_, err = users.CreateUser(&CreateUserRequest{Email: "bad", Password: "x"}, "admin")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDirectory_CascadeDelete(t *testing.T) {
	d := newFakeDirectory()
	hub := &fakePublisher{}
	svc := NewDirectoryService(fakeDeptRepo{d}, fakeEmpRepo{d}, hub, nil)

	dispatch, err := svc.CreateDepartment(&DepartmentRequest{Name: " Dispatch "}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Dispatch", dispatch.Name)
	fleet, err := svc.CreateDepartment(&DepartmentRequest{Name: "Fleet"}, "admin")
	require.NoError(t, err)

	ayu, err := svc.AddEmployeeToDepartment(dispatch.ID, &MemberRequest{Employee: &EmployeeRequest{FullName: "Ayu"}}, "admin")
	require.NoError(t, err)
	budi, err := svc.AddEmployeeToDepartment(dispatch.ID, &MemberRequest{Employee: &EmployeeRequest{FullName: "Budi"}}, "admin")
	require.NoError(t, err)
	_, err = svc.AddEmployeeToDepartment(fleet.ID, &MemberRequest{EmployeeID: &budi.ID}, "admin")
	require.NoError(t, err)

	removed, err := svc.DeleteDepartment(dispatch.ID, true, "admin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ayu.ID, budi.ID}, removed)

	got, err := svc.GetDepartment(fleet.ID)
	require.NoError(t, err)
	assert.Empty(t, got.EmployeeIDs)

	emps, err := svc.ListEmployees("")
	require.NoError(t, err)
	assert.Empty(t, emps)
	assert.Contains(t, hub.Types(), ws.EventDirectoryChanged)
}

func TestDirectory_Errors(t *testing.T) {
	d := newFakeDirectory()
	svc := NewDirectoryService(fakeDeptRepo{d}, fakeEmpRepo{d}, &fakePublisher{}, nil)

	_, err := svc.CreateDepartment(&DepartmentRequest{Name: "  "}, "admin")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.DeleteDepartment(uuid.New(), false, "admin")
	assert.ErrorIs(t, err, ErrDepartmentNotFound)

	_, err = svc.AddEmployeeToDepartment(uuid.New(), &MemberRequest{Employee: &EmployeeRequest{FullName: "Ayu"}}, "admin")
	assert.ErrorIs(t, err, ErrDepartmentNotFound)

	dept, err := svc.CreateDepartment(&DepartmentRequest{Name: "Fleet"}, "admin")
	require.NoError(t, err)
	missing := uuid.New()
	_, err = svc.AddEmployeeToDepartment(dept.ID, &MemberRequest{EmployeeID: &missing}, "admin")
	assert.ErrorIs(t, err, ErrEmployeeNotFound)

	_, err = svc.AddEmployeeToDepartment(dept.ID, &MemberRequest{}, "admin")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDirectory_DetachKeepsEmployeeUnlessGlobal(t *testing.T) {
	d := newFakeDirectory()
	svc := NewDirectoryService(fakeDeptRepo{d}, fakeEmpRepo{d}, &fakePublisher{}, nil)

	dept, err := svc.CreateDepartment(&DepartmentRequest{Name: "Fleet"}, "admin")
	require.NoError(t, err)
	emp, err := svc.AddEmployeeToDepartment(dept.ID, &MemberRequest{Employee: &EmployeeRequest{FullName: "Citra"}}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveEmployeeFromDepartment(dept.ID, emp.ID, false, "admin"))
	emps, err := svc.ListEmployees("")
	require.NoError(t, err)
	assert.Len(t, emps, 1)

	_, err = svc.AddEmployeeToDepartment(dept.ID, &MemberRequest{EmployeeID: &emp.ID}, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveEmployeeFromDepartment(dept.ID, emp.ID, true, "admin"))
	emps, err = svc.ListEmployees("")
	require.NoError(t, err)
	assert.Empty(t, emps)
}
