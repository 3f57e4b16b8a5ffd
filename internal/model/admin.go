package model

import "time"

// RoleAdmin is the only role accepted on the admin surface.
const RoleAdmin = "ADMIN"

// Admin represents an operator account in the `admins` table.
type Admin struct {
    ID           uint64    // admins.id
    Email        string    // admins.email
    PasswordHash string    // admins.password_hash
    Role         string    // admins.role
    IsActive     bool      // admins.is_active
    CreatedAt    time.Time // admins.created_at
    UpdatedAt    time.Time // admins.updated_at
}
