package auth

// Context identifies the caller of a store operation. Every permission
// check receives one; collaborators must never fall back to ambient
// identity.
type Context struct {
	UserID int64
	Email  string
	Role   string

	// Admin bypasses capability checks entirely. Only trusted internal
	// callers (system send-configuration lookup, permission rebuild jobs)
	// may use an admin context.
	Admin bool
}

// AdminContext returns the synthetic administrative identity used by
// trusted internal callers.
func AdminContext() Context {
	return Context{UserID: adminUserID, Role: "master", Admin: true}
}

// adminUserID is the seeded root user. It exists as a real row so that
// audit columns referencing it stay valid.
const adminUserID = 1
