package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/auth"
	"incmgr/internal/handlers/common"
	"incmgr/internal/server"
	"incmgr/internal/validation"
)

var (
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists   = errors.New("username already exists")
	ErrUserNotFound = errors.New("user not found")
	// ErrSelfChange guards an admin against locking themselves out.
	ErrSelfChange = errors.New("you cannot delete, deactivate or demote your own account")
	ErrUserInUse  = errors.New("user has saved inspection routines; deactivate the account instead")
)

// User is a row of the users table as listed to admins.
type User struct {
	ID          int
	Username    string
	DisplayName string
	Role        string
	Active      bool
	LastLogin   string
}

// NewUser describes an account to create.
type NewUser struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
}

// Validate checks the username, role and password strength.
func (u NewUser) Validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", u.Username)
	validation.ValidateUsername(ve, "username", u.Username)
	validation.ValidateEnum(ve, "role", u.Role, validation.ValidRoles)
	if err := auth.ValidatePasswordStrength(u.Password); err != nil {
		ve.Add("password", err.Error())
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// CreateUser validates and inserts u, returning the new user ID.
func CreateUser(ctx context.Context, db *sql.DB, u NewUser) (int, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", u.Username).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, ErrUserExists
	}

	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, "INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		u.Username, hash, u.DisplayName, u.Role)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return int(id), nil
}

// ListUsers returns every account ordered by username.
func ListUsers(ctx context.Context, db *sql.DB) ([]User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, username, COALESCE(display_name, ''), role, active, COALESCE(last_login, '')
		FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var active int
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &active, &u.LastLogin); err != nil {
			return nil, err
		}
		u.Active = active == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

type usersView struct {
	Users []User
}

// Users lists accounts. Admin only.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := ListUsers(r.Context(), h.DB)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "users", "Users", usersView{Users: users})
}

// CreateUserForm handles the add-user form. Admin only.
func (h *Handler) CreateUserForm(w http.ResponseWriter, r *http.Request) {
	u := NewUser{
		Username:    strings.TrimSpace(r.FormValue("username")),
		DisplayName: strings.TrimSpace(r.FormValue("display_name")),
		Password:    r.FormValue("password"),
		Role:        "user",
	}
	if r.FormValue("is_admin") != "" {
		u.Role = "admin"
	}

	id, err := CreateUser(r.Context(), h.DB, u)
	if err != nil {
		var ve *validation.ValidationErrors
		if errors.As(err, &ve) || errors.Is(err, ErrUserExists) {
			common.Redirect(w, r, "/users", "danger", err.Error())
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionCreate, "user", fmt.Sprint(id), "Created user "+u.Username)
	common.Redirect(w, r, "/users", "success", "User "+u.Username+" created.")
}

// UserChange is an admin edit of an existing account. An empty Password
// keeps the current one.
type UserChange struct {
	ID       int
	Password string
	Admin    bool
	Active   bool
}

// UpdateUser applies c. actorID is the admin making the change.
func UpdateUser(ctx context.Context, db *sql.DB, actorID int, c UserChange) error {
	if c.ID == actorID && (!c.Admin || !c.Active) {
		return ErrSelfChange
	}
	if c.Password != "" {
		if err := auth.ValidatePasswordStrength(c.Password); err != nil {
			ve := &validation.ValidationErrors{}
			ve.Add("password", err.Error())
			return ve
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	role := "user"
	if c.Admin {
		role = "admin"
	}
	active := 0
	if c.Active {
		active = 1
	}
	res, err := tx.ExecContext(ctx, "UPDATE users SET role = ?, active = ? WHERE id = ?", role, active, c.ID)
	if err != nil {
		return fmt.Errorf("update user %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	if c.Password != "" {
		hash, err := auth.HashPassword(c.Password)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = ?, failed_login_attempts = 0, locked_until = NULL WHERE id = ?", hash, c.ID); err != nil {
			return fmt.Errorf("set password of user %d: %w", c.ID, err)
		}
		// A reset password ends every open session of that account.
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", c.ID); err != nil {
			return fmt.Errorf("end sessions of user %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteUser removes an account and its sessions. Accounts that saved
// routines are kept so the routines stay attributed.
func DeleteUser(ctx context.Context, db *sql.DB, actorID, id int) (string, error) {
	if id == actorID {
		return "", ErrSelfChange
	}
	var username string
	err := db.QueryRowContext(ctx, "SELECT username FROM users WHERE id = ?", id).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	var routines int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM inspection_routines WHERE inspector_id = ?", id).Scan(&routines); err != nil {
		return "", err
	}
	if routines > 0 {
		return "", ErrUserInUse
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return "", fmt.Errorf("delete user %d: %w", id, err)
	}
	return username, nil
}

// UserForm handles the update and delete buttons of one account row.
// Admin only.
func (h *Handler) UserForm(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch r.FormValue("action") {
	case "update":
		c := UserChange{
			ID:       id,
			Password: r.FormValue("new_password"),
			Admin:    r.FormValue("is_admin") != "",
			Active:   r.FormValue("active") != "",
		}
		err = UpdateUser(r.Context(), h.DB, sess.UserID, c)
		if err == nil {
			summary := fmt.Sprintf("Updated user %d: admin=%t active=%t", id, c.Admin, c.Active)
			if c.Password != "" {
				summary += ", password reset"
			}
			h.Audit(r, audit.ActionUpdate, "user", strconv.Itoa(id), summary)
			common.Redirect(w, r, "/users", "success", "User updated.")
			return
		}
	case "delete":
		var username string
		username, err = DeleteUser(r.Context(), h.DB, sess.UserID, id)
		if err == nil {
			h.Audit(r, audit.ActionDelete, "user", strconv.Itoa(id), "Deleted user "+username)
			common.Redirect(w, r, "/users", "success", "User "+username+" deleted.")
			return
		}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	var ve *validation.ValidationErrors
	switch {
	case errors.Is(err, ErrUserNotFound):
		http.NotFound(w, r)
	case errors.As(err, &ve), errors.Is(err, ErrSelfChange), errors.Is(err, ErrUserInUse):
		common.Redirect(w, r, "/users", "danger", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
