package middleware

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/config"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func signToken(t *testing.T, secret string, sub uuid.UUID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// probeApp exposes the claims the middleware extracted so tests can see
// what a downstream handler would.
func probeApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/probe", JWTProtected(cfg), func(c *fiber.Ctx) error {
		id, ok := UserID(c)
		return c.JSON(fiber.Map{
			"user_id": id.String(),
			"has_id":  ok,
			"email":   Email(c),
		})
	})
	return app
}

func TestJWTProtectedRejectsMissingToken(t *testing.T) {
	app := probeApp(&config.Config{JWTSecret: testSecret})

	req := httptest.NewRequest("GET", "/probe", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestJWTProtectedRejectsWrongKey(t *testing.T) {
	app := probeApp(&config.Config{JWTSecret: testSecret})
	tok := signToken(t, "other-secret", uuid.New(), "x@example.com")

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestJWTProtectedExtractsClaims(t *testing.T) {
	app := probeApp(&config.Config{JWTSecret: testSecret})
	userID := uuid.New()
	tok := signToken(t, testSecret, userID, "amira@example.com")

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"user_id"`
		HasID  bool   `json:"has_id"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.HasID || body.UserID != userID.String() {
		t.Fatalf("user id = %q (has=%v), want %q", body.UserID, body.HasID, userID)
	}
	if body.Email != "amira@example.com" {
		t.Fatalf("email = %q", body.Email)
	}
}

// Websocket handshakes cannot set headers, so the token may also ride a
// query parameter.
func TestJWTProtectedQueryToken(t *testing.T) {
	app := probeApp(&config.Config{JWTSecret: testSecret})
	tok := signToken(t, testSecret, uuid.New(), "")

	req := httptest.NewRequest("GET", "/probe?token="+tok, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func adminApp(st *store.Store, cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/admin", JWTProtected(cfg), AdminRequired(st, cfg), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminRequiredPassesListedEmail(t *testing.T) {
	st := newTestStore(t)
	cfg := &config.Config{JWTSecret: testSecret, AdminEmails: "ops@example.com, oncall@example.com"}
	app := adminApp(st, cfg)

	// Listed operators pass without an account row.
	tok := signToken(t, testSecret, uuid.New(), "oncall@example.com")
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminRequiredPassesAdminRole(t *testing.T) {
	st := newTestStore(t)
	cfg := &config.Config{JWTSecret: testSecret}
	app := adminApp(st, cfg)

	admin := &models.User{Email: "root@example.com", Role: models.RoleAdmin}
	if err := st.CreateUser(context.Background(), admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	tok := signToken(t, testSecret, admin.ID, "root@example.com")
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminRequiredDeniesRegularUser(t *testing.T) {
	st := newTestStore(t)
	cfg := &config.Config{JWTSecret: testSecret, AdminEmails: "ops@example.com"}
	app := adminApp(st, cfg)

	user := &models.User{Email: "client@example.com", Role: models.RoleClient}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	tok := signToken(t, testSecret, user.ID, "client@example.com")
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestParseCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a@x.com", []string{"a@x.com"}},
		{" a@x.com , b@x.com ,", []string{"a@x.com", "b@x.com"}},
	}
	for _, tc := range cases {
		got := parseCSV(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("parseCSV(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parseCSV(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}
