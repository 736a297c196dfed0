package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-fleet-console/internal/model"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/validator"
)

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrInvalidInput       = errors.New("invalid input")
)

const defaultSearchLimit = 50

type DirectoryService interface {
	ListDepartments() ([]model.DepartmentResponse, error)
	GetDepartment(id uuid.UUID) (*model.DepartmentResponse, error)
	CreateDepartment(req *DepartmentRequest, actor string) (*model.DepartmentResponse, error)
	RenameDepartment(id uuid.UUID, req *DepartmentRequest, actor string) (*model.DepartmentResponse, error)
	DeleteDepartment(id uuid.UUID, cascade bool, actor string) ([]uuid.UUID, error)
	AddEmployeeToDepartment(deptID uuid.UUID, req *MemberRequest, actor string) (*model.EmployeeResponse, error)
	RemoveEmployeeFromDepartment(deptID, empID uuid.UUID, global bool, actor string) error

	ListEmployees(query string) ([]model.EmployeeResponse, error)
	CreateEmployee(req *EmployeeRequest, actor string) (*model.EmployeeResponse, error)
	UpdateEmployee(id uuid.UUID, req *EmployeeRequest, actor string) (*model.EmployeeResponse, error)
	DeleteEmployee(id uuid.UUID, actor string) error
}

type DepartmentRequest struct {
	Name string `json:"name" validate:"required,max=150"`
}

type EmployeeRequest struct {
	FullName    string `json:"full_name" validate:"required,max=255"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=30"`
	Designation string `json:"designation" validate:"max=100"`
}

// MemberRequest attaches an existing employee by id, or creates one from Employee
type MemberRequest struct {
	EmployeeID *uuid.UUID       `json:"employee_id,omitempty"`
	Employee   *EmployeeRequest `json:"employee,omitempty"`
}

type directoryService struct {
	deptRepo repository.DepartmentRepository
	empRepo  repository.EmployeeRepository
	hub      ws.Publisher
	logger   *zap.Logger
}

func NewDirectoryService(deptRepo repository.DepartmentRepository, empRepo repository.EmployeeRepository, hub ws.Publisher, logger *zap.Logger) DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &directoryService{deptRepo: deptRepo, empRepo: empRepo, hub: hub, logger: logger}
}

func invalid(err error) error {
	return errors.Join(ErrInvalidInput, err)
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func (s *directoryService) changed(resource string, ids ...uuid.UUID) {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	s.hub.Publish(ws.Event{Type: ws.EventDirectoryChanged, Resource: resource, IDs: out})
}

func (s *directoryService) ListDepartments() ([]model.DepartmentResponse, error) {
	depts, err := s.deptRepo.FindAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.DepartmentResponse, len(depts))
	for i := range depts {
		out[i] = depts[i].ToResponse()
	}
	return out, nil
}

func (s *directoryService) GetDepartment(id uuid.UUID) (*model.DepartmentResponse, error) {
	dept, err := s.deptRepo.FindByID(id)
	if err != nil {
		return nil, notFound(err, ErrDepartmentNotFound)
	}
	resp := dept.ToResponse()
	return &resp, nil
}

func (s *directoryService) CreateDepartment(req *DepartmentRequest, actor string) (*model.DepartmentResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}

	dept := &model.Department{Name: req.Name}
	dept.CreatedBy = actor
	dept.UpdatedBy = actor
	if err := s.deptRepo.Create(dept); err != nil {
		return nil, err
	}

	s.logger.Info("department created", zap.String("department_id", dept.ID.String()), zap.String("actor", actor))
	s.changed("departments", dept.ID)
	resp := dept.ToResponse()
	return &resp, nil
}

func (s *directoryService) RenameDepartment(id uuid.UUID, req *DepartmentRequest, actor string) (*model.DepartmentResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}
	if err := s.deptRepo.Rename(id, req.Name, actor); err != nil {
		return nil, notFound(err, ErrDepartmentNotFound)
	}
	s.changed("departments", id)
	return s.GetDepartment(id)
}

func (s *directoryService) DeleteDepartment(id uuid.UUID, cascade bool, actor string) ([]uuid.UUID, error) {
	removed, err := s.deptRepo.Delete(id, cascade, actor)
	if err != nil {
		return nil, notFound(err, ErrDepartmentNotFound)
	}

	s.logger.Info("department deleted",
		zap.String("department_id", id.String()),
		zap.Bool("cascade", cascade),
		zap.Int("employees_removed", len(removed)),
		zap.String("actor", actor),
	)
	s.changed("departments", id)
	if len(removed) > 0 {
		s.changed("employees", removed...)
	}
	return removed, nil
}

func (s *directoryService) AddEmployeeToDepartment(deptID uuid.UUID, req *MemberRequest, actor string) (*model.EmployeeResponse, error) {
	var emp model.Employee
	switch {
	case req.EmployeeID != nil:
		emp.ID = *req.EmployeeID
	case req.Employee != nil:
		if err := validator.First(req.Employee); err != nil {
			return nil, invalid(err)
		}
		emp = model.Employee{
			FullName:    strings.TrimSpace(req.Employee.FullName),
			Email:       req.Employee.Email,
			Phone:       req.Employee.Phone,
			Designation: req.Employee.Designation,
		}
		emp.CreatedBy = actor
		emp.UpdatedBy = actor
	default:
		return nil, invalid(errors.New("employee_id or employee is required"))
	}

	if err := s.deptRepo.AddEmployee(deptID, &emp); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if _, lookupErr := s.deptRepo.FindByID(deptID); lookupErr != nil {
				return nil, ErrDepartmentNotFound
			}
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}

	s.changed("departments", deptID)
	s.changed("employees", emp.ID)
	resp := emp.ToResponse()
	return &resp, nil
}

func (s *directoryService) RemoveEmployeeFromDepartment(deptID, empID uuid.UUID, global bool, actor string) error {
	if err := s.deptRepo.RemoveEmployee(deptID, empID, global, actor); err != nil {
		return notFound(err, ErrDepartmentNotFound)
	}
	s.changed("departments", deptID)
	if global {
		s.changed("employees", empID)
	}
	return nil
}

func (s *directoryService) ListEmployees(query string) ([]model.EmployeeResponse, error) {
	var (
		emps []model.Employee
		err  error
	)
	if q := strings.TrimSpace(query); q != "" {
		emps, err = s.empRepo.Search(q, defaultSearchLimit)
	} else {
		emps, err = s.empRepo.FindAll()
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.EmployeeResponse, len(emps))
	for i := range emps {
		out[i] = emps[i].ToResponse()
	}
	return out, nil
}

func (s *directoryService) CreateEmployee(req *EmployeeRequest, actor string) (*model.EmployeeResponse, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}
	emp := &model.Employee{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Designation: req.Designation,
	}
	emp.CreatedBy = actor
	emp.UpdatedBy = actor
	if err := s.empRepo.Create(emp); err != nil {
		return nil, err
	}
	s.changed("employees", emp.ID)
	resp := emp.ToResponse()
	return &resp, nil
}

func (s *directoryService) UpdateEmployee(id uuid.UUID, req *EmployeeRequest, actor string) (*model.EmployeeResponse, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validator.First(req); err != nil {
		return nil, invalid(err)
	}
	emp, err := s.empRepo.FindByID(id)
	if err != nil {
		return nil, notFound(err, ErrEmployeeNotFound)
	}
	emp.FullName = req.FullName
	emp.Email = req.Email
	emp.Phone = req.Phone
	emp.Designation = req.Designation
	emp.UpdatedBy = actor
	if err := s.empRepo.Update(emp); err != nil {
		return nil, err
	}
	s.changed("employees", emp.ID)
	resp := emp.ToResponse()
	return &resp, nil
}

func (s *directoryService) DeleteEmployee(id uuid.UUID, actor string) error {
	if err := s.empRepo.Delete(id, actor); err != nil {
		return notFound(err, ErrEmployeeNotFound)
	}
	s.changed("employees", id)
	return nil
}
