package repository

import (
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"turnero/internal/db"
)

type AdminAuthRepository interface {
	GetByEmail(email string) (*db.AdminUser, error)
	CreateNewUser(email, password string) error
}

type adminAuthRepository struct {
	db *sql.DB
}

func NewAdminAuthRepository(database *sql.DB) AdminAuthRepository {
	return &adminAuthRepository{db: database}
}

func (r *adminAuthRepository) GetByEmail(email string) (*db.AdminUser, error) {
	var admin db.AdminUser
	err := r.db.QueryRow("SELECT id, email, password_hash FROM admin_users WHERE email = $1", email).
		Scan(&admin.ID, &admin.Email, &admin.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

func (r *adminAuthRepository) CreateNewUser(email, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	query := "INSERT INTO admin_users (id, email, password_hash) VALUES ($1, $2, $3)"
	_, err = r.db.Exec(query, newID(), email, hashedPassword)
	return err
}
