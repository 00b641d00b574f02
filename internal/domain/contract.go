package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContractStatus represents the lease contract's lifecycle state.
type ContractStatus string

const (
	ContractActive     ContractStatus = "ACTIVE"
	ContractTerminated ContractStatus = "TERMINATED"
	ContractExpired    ContractStatus = "EXPIRED"
)

// Contract is the lease a payment settles against. The processing core only
// reads it for validation and increments its running balance on completion;
// contract CRUD lives elsewhere in the back office.
type Contract struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	MonthlyRentCents int64
	BalanceCents     int64
	Status           ContractStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Contract) IsActive() bool {
	return c.Status == ContractActive
}

func (c *Contract) BelongsTo(tenantID uuid.UUID) bool {
	return c.TenantID == tenantID
}
