package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Capability is a permission granted to a session.
type Capability string

// Capabilities. Admin implies read.
const (
	CapabilityRead  Capability = "read"
	CapabilityAdmin Capability = "admin"
)

// Operator is a dashboard user allowed to read or administer the agent.
type Operator struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         Capability `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Has reports whether the operator's role grants c.
func (o *Operator) Has(c Capability) bool {
	if o == nil {
		return false
	}
	switch o.Role {
	case CapabilityAdmin:
		return true
	case CapabilityRead:
		return c == CapabilityRead
	default:
		return false
	}
}

// CreateOperatorRequest is the input for provisioning an operator.
type CreateOperatorRequest struct {
	Email    string     `json:"email" validate:"required,email"`
	Name     string     `json:"name" validate:"required,min=1"`
	Role     Capability `json:"role" validate:"required,oneof=read admin"`
	Password string     `json:"password" validate:"required,min=8"`
}

// TransitionRequest is the body of a manual stage change.
type TransitionRequest struct {
	Stage    string `json:"stage" validate:"required"`
	Override bool   `json:"override,omitempty"`
	Note     string `json:"note,omitempty" validate:"max=500"`
}

// CreateOrderRequest is the body of a paid order placement.
type CreateOrderRequest struct {
	CampaignID uuid.UUID `json:"campaignId" validate:"required"`
	SKU        string    `json:"sku" validate:"required,max=64"`
	Quantity   int       `json:"quantity" validate:"required,min=1,max=1000"`
}

// Validate validates the CreateOperatorRequest using the validator.
func (r *CreateOperatorRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the TransitionRequest using the validator.
func (r *TransitionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CreateOrderRequest using the validator.
func (r *CreateOrderRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
