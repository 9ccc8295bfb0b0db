package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"folio/api/internal/util"
)

var customerColumns = []string{"id", "org_id", "name", "email", "company", "created_at", "updated_at"}

func scanCustomer(scan func(dest ...any) error) (Customer, error) {
	var c Customer
	if err := scan(&c.ID, &c.OrgID, &c.Name, &c.Email, &c.Company, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Customer{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *SQLStore) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	now := s.now()
	c.ID = util.NewID()
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.CreatedAt, c.UpdatedAt = now, now
	if _, err := exec(ctx, s.db, s.sq.Insert("customers").
		Columns(customerColumns...).
		Values(c.ID, c.OrgID, c.Name, c.Email, c.Company, c.CreatedAt, c.UpdatedAt)); err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (s *SQLStore) GetCustomer(ctx context.Context, orgID, customerID string) (Customer, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select(customerColumns...).From("customers").
		Where(squirrel.Eq{"org_id": orgID, "id": customerID}))
	if err != nil {
		return Customer{}, err
	}
	c, err := scanCustomer(row.Scan)
	if err != nil {
		return Customer{}, fmt.Errorf("get customer: %w", notFound(err))
	}
	return c, nil
}

func (s *SQLStore) ListCustomers(ctx context.Context, orgID string) ([]Customer, error) {
	rows, err := query(ctx, s.db, s.sq.Select(customerColumns...).From("customers").
		Where(squirrel.Eq{"org_id": orgID}).
		OrderBy("name ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *SQLStore) UpdateCustomer(ctx context.Context, c Customer) (Customer, error) {
	c.UpdatedAt = s.now()
	res, err := exec(ctx, s.db, s.sq.Update("customers").
		Set("name", strings.TrimSpace(c.Name)).
		Set("email", strings.TrimSpace(c.Email)).
		Set("company", c.Company).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"org_id": c.OrgID, "id": c.ID}))
	if err != nil {
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Customer{}, fmt.Errorf("update customer: %w", ErrNotFound)
	}
	return s.GetCustomer(ctx, c.OrgID, c.ID)
}

func (s *SQLStore) DeleteCustomer(ctx context.Context, orgID, customerID string) error {
	res, err := exec(ctx, s.db, s.sq.Delete("customers").Where(squirrel.Eq{"org_id": orgID, "id": customerID}))
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete customer: %w", ErrNotFound)
	}
	return nil
}
