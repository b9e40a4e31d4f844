// Package auth pins the acting user of a request to a signed session cookie.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/tablehold/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

const sessionTTL = 14 * 24 * time.Hour

// Users verifies credentials and registers accounts.
type Users interface {
	CreateUser(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
}

type Store struct {
	sc    *securecookie.SecureCookie
	users Users
}

type ctxKey string

const userIDKey ctxKey = "userID"

func NewStore(users Users, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, users: users}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	return err == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies the credentials and returns the user id.
func (s *Store) Login(ctx context.Context, email, password string) (string, error) {
	return s.users.Authenticate(ctx, normalizeEmail(email), password)
}

type Session struct {
	UserID string
}

const cookieName = "tablehold_session"

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, userID string) error {
	val := map[string]string{"uid": userID, "v": "1"}
	encoded, err := s.sc.Encode(cookieName, val)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	val := map[string]string{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return Session{}, false
	}
	uid := val["uid"]
	if uid == "" {
		return Session{}, false
	}
	return Session{UserID: uid}, true
}

// Identify attaches the session's user id to the request context when a valid
// session cookie is present. Requests without one pass through unchanged.
func (s *Store) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := s.GetSession(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, sess.UserID))
		}
		next.ServeHTTP(w, r)
	})
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}

// PGUsers keeps accounts in the users table.
type PGUsers struct{ db *db.DB }

func NewPGUsers(d *db.DB) *PGUsers { return &PGUsers{db: d} }

func (u *PGUsers) CreateUser(ctx context.Context, email, password string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	n, err := u.db.ExecCount(ctx, `INSERT INTO users(id, email, password_hash) VALUES ($1,$2,$3) ON CONFLICT (email) DO NOTHING`,
		id, normalizeEmail(email), hash)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrUserExists
	}
	return id, nil
}

func (u *PGUsers) Authenticate(ctx context.Context, email, password string) (string, error) {
	var id, hash string
	err := u.db.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, normalizeEmail(email)).Scan(&id, &hash)
	if err != nil {
		if db.IsNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", db.WrapNotFound(err)
	}
	if !CheckPassword(hash, password) {
		return "", ErrInvalidCredentials
	}
	return id, nil
}

// MemoryUsers keeps accounts for the life of the process.
type MemoryUsers struct {
	mu    sync.Mutex
	users map[string]memoryUser
}

type memoryUser struct {
	id   string
	hash string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]memoryUser)}
}

func (u *MemoryUsers) CreateUser(_ context.Context, email, password string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	email = normalizeEmail(email)
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[email]; ok {
		return "", ErrUserExists
	}
	id := uuid.NewString()
	u.users[email] = memoryUser{id: id, hash: hash}
	return id, nil
}

func (u *MemoryUsers) Authenticate(_ context.Context, email, password string) (string, error) {
	u.mu.Lock()
	rec, ok := u.users[normalizeEmail(email)]
	u.mu.Unlock()
	if !ok || !CheckPassword(rec.hash, password) {
		return "", ErrInvalidCredentials
	}
	return rec.id, nil
}
