package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-console/internal/console"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/session"
	"go-fleet-console/internal/store"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.body))
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1", time.Second), &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"token": "tok",
			"user":  map[string]any{"id": "u1", "email": "ops@example.com", "full_name": "Ops", "role_code": "DISPATCHER"},
			"grants": []map[string]any{
				{"module_key": "driver", "actions": []string{"read", "write"}},
			},
		})
	})

	res, err := c.Login(context.Background(), "ops@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, session.User{ID: "u1", Email: "ops@example.com", Name: "Ops", RoleCode: "DISPATCHER"}, res.User)
	assert.Equal(t, []permission.Grant{{ModuleKey: "driver", Actions: []permission.Action{"read", "write"}}}, res.Grants)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "POST", got.method)
	assert.Equal(t, "/api/v1/auth/login", got.path)
	assert.Equal(t, "secret", got.body["password"])
	assert.Empty(t, got.auth)
}

func TestErrorMapping(t *testing.T) {
	status := 401
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]string{"error": "nope"})
	})
	ctx := context.Background()

	_, err := c.FetchPermissions(ctx, "tok")
	require.ErrorIs(t, err, session.ErrSessionInvalid)
	assert.Contains(t, err.Error(), "nope")

	status = 403
	_, err = c.ListDepartments(ctx, "tok")
	require.ErrorIs(t, err, console.ErrPermissionDenied)

	status = 500
	_, err = c.ListEmployees(ctx, "tok", "")
	require.ErrorIs(t, err, console.ErrCollaborator)
	assert.NotErrorIs(t, err, session.ErrSessionInvalid)
}

func TestUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1/api/v1", 200*time.Millisecond)
	_, err := c.ListDepartments(context.Background(), "tok")
	require.ErrorIs(t, err, console.ErrCollaborator)
}

func TestCanceledContext(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, 200, []any{}) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListDepartments(ctx, "tok")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *calls)
}

func TestDirectoryCalls(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/api/v1/departments":
			writeJSON(w, 200, []map[string]any{{"id": "d1", "name": "Ops", "employee_ids": []string{"e1", "e2"}}})
		case r.Method == "GET" && r.URL.Path == "/api/v1/employees":
			writeJSON(w, 200, []map[string]any{{"id": "e1", "full_name": "Ann", "email": "ann@example.com"}})
		case r.Method == "POST" && r.URL.Path == "/api/v1/departments":
			writeJSON(w, 201, map[string]any{"message": "Department created", "data": map[string]any{"id": "d2", "name": "Fleet", "employee_ids": []string{}}})
		case r.Method == "DELETE" && r.URL.Path == "/api/v1/departments/d1":
			writeJSON(w, 200, map[string]any{"message": "Department deleted", "removed_employee_ids": []string{"e1"}})
		case r.Method == "POST" && r.URL.Path == "/api/v1/departments/d1/employees":
			writeJSON(w, 201, map[string]any{"message": "Employee added", "data": map[string]any{"id": "e9", "full_name": "Bo"}})
		default:
			writeJSON(w, 200, map[string]any{"message": "ok"})
		}
	})
	ctx := context.Background()

	depts, err := c.ListDepartments(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, []store.Department{{ID: "d1", Name: "Ops", EmployeeIDs: []string{"e1", "e2"}}}, depts)

	emps, err := c.ListEmployees(ctx, "tok", "an n")
	require.NoError(t, err)
	assert.Equal(t, "Ann", emps[0].Name)

	created, err := c.CreateDepartment(ctx, "tok", "Fleet")
	require.NoError(t, err)
	assert.Equal(t, "d2", created.ID)

	removed, err := c.DeleteDepartment(ctx, "tok", "d1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, removed)

	emp, err := c.AddEmployeeToDepartment(ctx, "tok", "d1", store.Employee{Name: "Bo"})
	require.NoError(t, err)
	assert.Equal(t, "e9", emp.ID)

	_, err = c.AddEmployeeToDepartment(ctx, "tok", "d1", store.Employee{ID: "e1"})
	require.NoError(t, err)

	require.NoError(t, c.RemoveEmployeeFromDepartment(ctx, "tok", "d1", "e1", true))

	log := *calls
	require.Len(t, log, 7)
	assert.Equal(t, "Bearer tok", log[0].auth)
	assert.Equal(t, "q=an+n", log[1].query)
	assert.Equal(t, "Fleet", log[2].body["name"])
	assert.Equal(t, "cascade=true", log[3].query)
	assert.Equal(t, map[string]any{"full_name": "Bo", "email": "", "phone": "", "designation": ""}, log[4].body["employee"])
	assert.Equal(t, "e1", log[5].body["employee_id"])
	assert.Equal(t, "DELETE", log[6].method)
	assert.Equal(t, "/api/v1/departments/d1/employees/e1", log[6].path)
	assert.Equal(t, "global=true", log[6].query)
}
