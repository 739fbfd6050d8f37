package customer

import "github.com/zllovesuki/stayhub/auth"

// Customer describes a user on the marketplace: a business owner, or an
// administrator working the approval console
type Customer struct {
	ID    string    `json:"id" gorm:"primaryKey"`     // Corresponds to Stripe's customer ID
	Email string    `json:"email" gorm:"uniqueIndex"` // User's email address
	Role  auth.Role `json:"role"`                     // Owner or Admin
}
