package app

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"folio/api/internal/rbac"
	"folio/api/internal/store"
)

type CustomerInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

type CustomerView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func customerView(c store.Customer) CustomerView {
	return CustomerView{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (in CustomerInput) normalize() (CustomerInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Company = strings.TrimSpace(in.Company)
	if in.Name == "" {
		return in, validationError("name is required")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return in, validationError("email %q is not a valid address", in.Email)
		}
	}
	return in, nil
}

func (s *Service) ListCustomers(ctx context.Context, session Session) ([]CustomerView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	customers, err := s.store.ListCustomers(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	items := make([]CustomerView, 0, len(customers))
	for _, c := range customers {
		items = append(items, customerView(c))
	}
	return items, nil
}

func (s *Service) GetCustomer(ctx context.Context, session Session, id string) (CustomerView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return CustomerView{}, err
	}
	c, err := s.store.GetCustomer(ctx, session.OrgID, id)
	if errors.Is(err, store.ErrNotFound) {
		return CustomerView{}, notFoundError("customer")
	}
	if err != nil {
		return CustomerView{}, err
	}
	return customerView(c), nil
}

func (s *Service) CreateCustomer(ctx context.Context, session Session, input CustomerInput) (CustomerView, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return CustomerView{}, err
	}
	input, err := input.normalize()
	if err != nil {
		return CustomerView{}, err
	}
	c, err := s.store.CreateCustomer(ctx, store.Customer{
		OrgID:   session.OrgID,
		Name:    input.Name,
		Email:   input.Email,
		Company: input.Company,
	})
	if err != nil {
		return CustomerView{}, err
	}
	return customerView(c), nil
}

// UpdateCustomer edits a stored contact. Documents already assigned keep the
// recipient they were assigned with.
func (s *Service) UpdateCustomer(ctx context.Context, session Session, id string, input CustomerInput) (CustomerView, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return CustomerView{}, err
	}
	input, err := input.normalize()
	if err != nil {
		return CustomerView{}, err
	}
	c, err := s.store.UpdateCustomer(ctx, store.Customer{
		ID:      id,
		OrgID:   session.OrgID,
		Name:    input.Name,
		Email:   input.Email,
		Company: input.Company,
	})
	if errors.Is(err, store.ErrNotFound) {
		return CustomerView{}, notFoundError("customer")
	}
	if err != nil {
		return CustomerView{}, err
	}
	return customerView(c), nil
}

func (s *Service) DeleteCustomer(ctx context.Context, session Session, id string) error {
	if err := s.authorize(session, rbac.ActionManage); err != nil {
		return err
	}
	err := s.store.DeleteCustomer(ctx, session.OrgID, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("customer")
	}
	return err
}
