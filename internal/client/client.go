// Package client talks to the fleet console REST API over fiber's HTTP client.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"go-fleet-console/internal/console"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/session"
	"go-fleet-console/internal/store"
)

const DefaultTimeout = 10 * time.Second

// Client implements console.AuthAPI, console.DirectoryAPI and session.PermissionFetcher
type Client struct {
	baseURL string
	http    *fiber.Client
	timeout time.Duration
}

var (
	_ console.AuthAPI           = (*Client)(nil)
	_ console.DirectoryAPI      = (*Client)(nil)
	_ session.PermissionFetcher = (*Client)(nil)
)

// New returns a client for the API rooted at baseURL, e.g. http://localhost:8080/api/v1
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fiber.Client{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal},
		timeout: timeout,
	}
}

// Wire types, matching the API's JSON

type userDTO struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleCode string `json:"role_code"`
}

func (u userDTO) toSession() session.User {
	return session.User{ID: u.ID, Email: u.Email, Name: u.FullName, RoleCode: u.RoleCode}
}

type departmentDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	EmployeeIDs []string `json:"employee_ids"`
}

func (d departmentDTO) toStore() store.Department {
	return store.Department{ID: d.ID, Name: d.Name, EmployeeIDs: d.EmployeeIDs}
}

type employeeDTO struct {
	ID          string `json:"id,omitempty"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Designation string `json:"designation"`
}

func (e employeeDTO) toStore() store.Employee {
	return store.Employee{ID: e.ID, Name: e.FullName, Email: e.Email, Phone: e.Phone, Designation: e.Designation}
}

func employeeFromStore(e store.Employee) employeeDTO {
	return employeeDTO{FullName: e.Name, Email: e.Email, Phone: e.Phone, Designation: e.Designation}
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type apiError struct {
	Error string `json:"error"`
}

// ============ TRANSPORT ============

type request struct {
	method string
	path   string
	query  url.Values
	token  string
	body   any
}

// do sends req and decodes a 2xx JSON body into out. 401 maps to
// session.ErrSessionInvalid, 403 to console.ErrPermissionDenied, anything else
// unexpected to console.ErrCollaborator.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	uri := c.baseURL + req.path
	if len(req.query) > 0 {
		uri += "?" + req.query.Encode()
	}

	var agent *fiber.Agent
	switch req.method {
	case fiber.MethodPost:
		agent = c.http.Post(uri)
	case fiber.MethodPut:
		agent = c.http.Put(uri)
	case fiber.MethodDelete:
		agent = c.http.Delete(uri)
	default:
		agent = c.http.Get(uri)
	}
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if req.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+req.token)
	}
	if req.body != nil {
		agent.JSON(req.body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("%w: %s %s: %v", console.ErrCollaborator, req.method, req.path, err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", console.ErrCollaborator, req.method, req.path, errs[0])
	}

	if code < 200 || code > 299 {
		msg := strconv.Itoa(code)
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		switch code {
		case fiber.StatusUnauthorized:
			return fmt.Errorf("%w: %s", session.ErrSessionInvalid, msg)
		case fiber.StatusForbidden:
			return fmt.Errorf("%w: %s", console.ErrPermissionDenied, msg)
		}
		return fmt.Errorf("%w: %s %s: %d %s", console.ErrCollaborator, req.method, req.path, code, msg)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", console.ErrCollaborator, req.path, err)
	}
	return nil
}

// ============ AUTH ============

func (c *Client) Login(ctx context.Context, email, password string) (*console.LoginResult, error) {
	var resp struct {
		Token  string             `json:"token"`
		User   userDTO            `json:"user"`
		Grants []permission.Grant `json:"grants"`
	}
	err := c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &console.LoginResult{User: resp.User.toSession(), Token: resp.Token, Grants: resp.Grants}, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, request{method: fiber.MethodPost, path: "/auth/logout", token: token}, nil)
}

// FetchPermissions returns the grants currently held by the token's user
func (c *Client) FetchPermissions(ctx context.Context, token string) ([]permission.Grant, error) {
	var resp struct {
		Grants []permission.Grant `json:"grants"`
	}
	if err := c.do(ctx, request{method: fiber.MethodGet, path: "/auth/permissions", token: token}, &resp); err != nil {
		return nil, err
	}
	return resp.Grants, nil
}

// ============ DIRECTORY ============

func (c *Client) ListDepartments(ctx context.Context, token string) ([]store.Department, error) {
	var list []departmentDTO
	if err := c.do(ctx, request{method: fiber.MethodGet, path: "/departments", token: token}, &list); err != nil {
		return nil, err
	}
	out := make([]store.Department, len(list))
	for i, d := range list {
		out[i] = d.toStore()
	}
	return out, nil
}

// ListEmployees lists every employee, or those matching query when it is not empty
func (c *Client) ListEmployees(ctx context.Context, token, query string) ([]store.Employee, error) {
	req := request{method: fiber.MethodGet, path: "/employees", token: token}
	if query != "" {
		req.query = url.Values{"q": {query}}
	}
	var list []employeeDTO
	if err := c.do(ctx, req, &list); err != nil {
		return nil, err
	}
	out := make([]store.Employee, len(list))
	for i, e := range list {
		out[i] = e.toStore()
	}
	return out, nil
}

func (c *Client) CreateDepartment(ctx context.Context, token, name string) (store.Department, error) {
	var resp envelope[departmentDTO]
	err := c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/departments",
		token:  token,
		body:   map[string]string{"name": name},
	}, &resp)
	return resp.Data.toStore(), err
}

func (c *Client) RenameDepartment(ctx context.Context, token, id, name string) (store.Department, error) {
	var resp envelope[departmentDTO]
	err := c.do(ctx, request{
		method: fiber.MethodPut,
		path:   "/departments/" + url.PathEscape(id),
		token:  token,
		body:   map[string]string{"name": name},
	}, &resp)
	return resp.Data.toStore(), err
}

// DeleteDepartment returns the ids of employees removed along with the department
func (c *Client) DeleteDepartment(ctx context.Context, token, id string, cascade bool) ([]string, error) {
	var resp struct {
		Removed []string `json:"removed_employee_ids"`
	}
	err := c.do(ctx, request{
		method: fiber.MethodDelete,
		path:   "/departments/" + url.PathEscape(id),
		query:  url.Values{"cascade": {strconv.FormatBool(cascade)}},
		token:  token,
	}, &resp)
	return resp.Removed, err
}

func (c *Client) AddEmployeeToDepartment(ctx context.Context, token, departmentID string, emp store.Employee) (store.Employee, error) {
	body := map[string]any{}
	if emp.ID != "" {
		body["employee_id"] = emp.ID
	} else {
		body["employee"] = employeeFromStore(emp)
	}

	var resp envelope[employeeDTO]
	err := c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/departments/" + url.PathEscape(departmentID) + "/employees",
		token:  token,
		body:   body,
	}, &resp)
	return resp.Data.toStore(), err
}

func (c *Client) RemoveEmployeeFromDepartment(ctx context.Context, token, departmentID, employeeID string, global bool) error {
	return c.do(ctx, request{
		method: fiber.MethodDelete,
		path:   "/departments/" + url.PathEscape(departmentID) + "/employees/" + url.PathEscape(employeeID),
		query:  url.Values{"global": {strconv.FormatBool(global)}},
		token:  token,
	}, nil)
}
