package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/storage"
	"github.com/hazardwatch/apiserver/internal/store"
	"github.com/hazardwatch/apiserver/internal/urgency"
	"github.com/hazardwatch/apiserver/types"
)

const testSecret = "test-secret"

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
	roles *memRoles
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user types.User, roles ...types.Role) (types.User, error) {
	m.mu.Lock()
	for _, u := range m.users {
		if u.Email == user.Email {
			m.mu.Unlock()
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	m.mu.Unlock()
	return user, m.roles.Grant(ctx, user.ID, roles...)
}

type memRoles struct {
	mu    sync.Mutex
	roles map[uuid.UUID][]types.Role
	err   error
	calls int
	// onList runs after each lookup with mu held.
	onList func(userID uuid.UUID)
}

func (m *memRoles) ListByUser(ctx context.Context, userID uuid.UUID) ([]types.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	roles := append([]types.Role(nil), m.roles[userID]...)
	if m.onList != nil {
		m.onList(userID)
	}
	return roles, nil
}

func (m *memRoles) Grant(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[userID] = append(m.roles[userID], roles...)
	return nil
}

func (m *memRoles) Revoke(ctx context.Context, userID uuid.UUID, roles ...types.Role) error {
	return nil
}

type memComplaints struct {
	mu         sync.Mutex
	complaints map[uuid.UUID]types.Complaint
}

func (m *memComplaints) List(ctx context.Context, filter store.ComplaintFilter) ([]types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Complaint{}
	for _, c := range m.complaints {
		if filter.OwnerID != nil && c.UserID != *filter.OwnerID {
			continue
		}
		if filter.Category != nil && c.Category != *filter.Category {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memComplaints) Get(ctx context.Context, id uuid.UUID) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memComplaints) Create(ctx context.Context, c types.Complaint) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.UpdatedAt = c.CreatedAt
	m.complaints[c.ID] = c
	return c, nil
}

func (m *memComplaints) Update(ctx context.Context, c types.Complaint) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complaints[c.ID] = c
	return c, nil
}

type fakeUploader struct {
	keys []string
}

func (f *fakeUploader) PutPhoto(ctx context.Context, owner uuid.UUID, filename string, r io.Reader, size int64, contentType string) (storage.Photo, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return storage.Photo{}, storage.ErrUnsupportedMediaType
	}
	key := owner.String() + "/" + filename
	f.keys = append(f.keys, key)
	return storage.Photo{Key: key, URL: "https://cdn.test/" + key, ContentType: contentType, Size: size}, nil
}

type testEnv struct {
	router     http.Handler
	users      *memUsers
	roles      *memRoles
	complaints *memComplaints
	uploader   *fakeUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := &memRoles{roles: make(map[uuid.UUID][]types.Role)}
	users := &memUsers{users: make(map[uuid.UUID]types.User), roles: roles}
	complaints := &memComplaints{complaints: make(map[uuid.UUID]types.Complaint)}
	uploader := &fakeUploader{}

	userService := services.NewUserService(users)
	roleService := services.NewRoleService(roles)
	complaintService := services.NewComplaintService(complaints, nil, nil, urgency.NewClassifier(0), logger)

	passthrough := func(next http.Handler) http.Handler { return next }

	router := chi.NewRouter()
	router.Use(Identify(testSecret, roleService, logger))
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(userService, testSecret, time.Hour), passthrough)
	})
	router.Route("/complaints", func(r chi.Router) {
		ComplaintRouter(r, NewComplaintHandler(complaintService, uploader, 1<<20))
	})
	router.Route("/admin", func(r chi.Router) {
		AdminRouter(r, NewAdminHandler(complaintService))
	})

	return &testEnv{router: router, users: users, roles: roles, complaints: complaints, uploader: uploader}
}

func (e *testEnv) seedUser(t *testing.T, roles ...types.Role) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	e.users.mu.Lock()
	e.users.users[id] = types.User{ID: id, Email: id.String() + "@example.com", FullName: "Test"}
	e.users.mu.Unlock()
	e.roles.mu.Lock()
	e.roles.roles[id] = roles
	e.roles.mu.Unlock()
	token, _, err := issueToken(id, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return id, token
}

func (e *testEnv) seedComplaint(category types.Category, owner uuid.UUID, age time.Duration) types.Complaint {
	c := types.Complaint{
		ID:          uuid.New(),
		UserID:      owner,
		Category:    category,
		Description: "hazard",
		ImageURL:    "https://cdn.test/x.jpg",
		Status:      types.StatusPending,
		CreatedAt:   time.Now().Add(-age),
	}
	e.complaints.mu.Lock()
	e.complaints.complaints[c.ID] = c
	e.complaints.mu.Unlock()
	return c
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "resident@example.com", Password: "secret123", FullName: "Resident",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "resident@example.com", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	auth := decode[AuthResponse](t, rec)
	if auth.Token == "" {
		t.Fatal("expected token")
	}

	rec = env.do(t, http.MethodGet, "/auth/me", auth.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d: %s", rec.Code, rec.Body.String())
	}
	var me struct {
		Roles   []types.Role `json:"roles"`
		Scope   types.Scope  `json:"scope"`
		IsAdmin bool         `json:"is_admin"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Scope != types.ScopeNone || me.IsAdmin {
		t.Fatalf("new user must not be admin: %+v", me)
	}
	if len(me.Roles) != 1 || me.Roles[0] != types.RoleUser {
		t.Fatalf("expected user role, got %v", me.Roles)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "resident@example.com", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status %d", rec.Code)
	}
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/complaints/mine", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/complaints/mine", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAuth_RoleFetchFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, types.RoleSuperAdmin)
	env.roles.err = errors.New("connection refused")

	rec := env.do(t, http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d", rec.Code)
	}
	me := decode[map[string]any](t, rec)
	if me["is_admin"] != false || me["scope"] != "none" {
		t.Fatalf("expected least privilege on role failure, got %v", me)
	}

	rec = env.do(t, http.MethodGet, "/admin/super", token, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to landing, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAuth_RefreshReloadsRoles(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.seedUser(t, types.RoleUser)

	// Grant roads admin right after the sign-in lookup, as if an operator
	// granted it while the session was open.
	env.roles.onList = func(id uuid.UUID) {
		if id == userID {
			env.roles.roles[id] = append(env.roles.roles[id], types.RoleRoadsAdmin)
			env.roles.onList = nil
		}
	}

	rec := env.do(t, http.MethodPost, "/auth/refresh", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token   string      `json:"token"`
		Scope   types.Scope `json:"scope"`
		IsAdmin bool        `json:"is_admin"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a new token")
	}
	if resp.Scope != types.ScopeRoads || !resp.IsAdmin {
		t.Fatalf("refresh should pick up the new grant, got %+v", resp)
	}
	if env.roles.calls != 2 {
		t.Fatalf("expected roles loaded at sign-in and on refresh, got %d lookups", env.roles.calls)
	}
}

func TestAdmin_DashboardUsesOwnScope(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.seedUser(t, types.RoleUser)
	env.seedComplaint(types.CategoryWaste, owner, time.Hour)
	env.seedComplaint(types.CategoryRoads, owner, time.Hour)
	_, wasteToken := env.seedUser(t, types.RoleWasteAdmin)

	rec := env.do(t, http.MethodGet, "/admin/", wasteToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[DepartmentResponse](t, rec)
	if page.Title != types.CategoryWaste.Label() {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if len(page.Complaints) != 1 || page.Complaints[0].Category != types.CategoryWaste {
		t.Fatalf("dashboard should list only waste complaints, got %+v", page.Complaints)
	}
}

func TestComplaints_CreateAndListMine(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.seedUser(t, types.RoleUser)
	lat, lng := 12.97, 77.59

	rec := env.do(t, http.MethodPost, "/complaints", token, CreateComplaintRequest{
		Category:    "waste",
		Description: "Overflowing bin",
		ImageURL:    "https://cdn.test/bin.jpg",
		Latitude:    &lat,
		Longitude:   &lng,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[types.ComplaintView](t, rec)
	if created.Status != types.StatusPending || created.UserID != userID {
		t.Fatalf("unexpected complaint %+v", created.Complaint)
	}
	if created.CategoryLabel != "Waste & Garbage" || created.MapURL != "https://maps.google.com/?q=12.97,77.59" {
		t.Fatalf("unexpected display fields %+v", created)
	}

	env.seedComplaint(types.CategoryRoads, uuid.New(), time.Hour)

	rec = env.do(t, http.MethodGet, "/complaints/mine", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	mine := decode[[]types.ComplaintView](t, rec)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Fatalf("expected only own complaint, got %d", len(mine))
	}
}

func TestComplaints_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t)

	rec := env.do(t, http.MethodPost, "/complaints", token, CreateComplaintRequest{Category: "roads"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if len(resp.Fields) != 4 {
		t.Fatalf("expected 4 field errors, got %+v", resp.Fields)
	}
}

func TestComplaints_UpdateScope(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedComplaint(types.CategoryRoads, uuid.New(), time.Hour)
	_, wasteToken := env.seedUser(t, types.RoleWasteAdmin)
	_, roadsToken := env.seedUser(t, types.RoleRoadsAdmin)

	resolved := "resolved"
	rec := env.do(t, http.MethodPatch, "/complaints/"+c.ID.String(), wasteToken, UpdateComplaintRequest{Status: &resolved})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("waste admin on roads complaint: expected 403, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/complaints/"+c.ID.String(), roadsToken, UpdateComplaintRequest{Status: &resolved})
	if rec.Code != http.StatusOK {
		t.Fatalf("roads admin: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decode[types.ComplaintView](t, rec)
	if view.Status != types.StatusResolved || view.ResolvedAt == nil {
		t.Fatalf("expected resolved with stamp, got %+v", view.Complaint)
	}

	bogus := "archived"
	rec = env.do(t, http.MethodPatch, "/complaints/"+c.ID.String(), roadsToken, UpdateComplaintRequest{Status: &bogus})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/complaints/"+uuid.NewString(), roadsToken, UpdateComplaintRequest{Status: &resolved})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing complaint: expected 404, got %d", rec.Code)
	}
}

func TestAdmin_PageGuards(t *testing.T) {
	env := newTestEnv(t)
	_, wasteToken := env.seedUser(t, types.RoleWasteAdmin)
	_, superToken := env.seedUser(t, types.RoleSuperAdmin)
	_, userToken := env.seedUser(t, types.RoleUser)

	tests := []struct {
		name     string
		path     string
		token    string
		status   int
		location string
	}{
		{"anonymous to sign-in", "/admin/roads", "", http.StatusSeeOther, "/auth"},
		{"waste admin on roads", "/admin/roads", wasteToken, http.StatusSeeOther, "/"},
		{"waste admin on waste", "/admin/waste", wasteToken, http.StatusOK, ""},
		{"waste admin on super", "/admin/super", wasteToken, http.StatusSeeOther, "/"},
		{"plain user on electricity", "/admin/electricity", userToken, http.StatusSeeOther, "/"},
		{"super admin on electricity", "/admin/electricity", superToken, http.StatusOK, ""},
		{"super admin on super", "/admin/super", superToken, http.StatusOK, ""},
		{"waste admin on dashboard", "/admin/", wasteToken, http.StatusOK, ""},
		{"plain user on dashboard", "/admin/", userToken, http.StatusSeeOther, "/"},
		{"anonymous on dashboard", "/admin/", "", http.StatusSeeOther, "/auth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Fatalf("location = %q, want %q", rec.Header().Get("Location"), tt.location)
			}
		})
	}
}

func TestAdmin_ListNarrowsScopedAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedComplaint(types.CategoryRoads, uuid.New(), 72*time.Hour)
	waste := env.seedComplaint(types.CategoryWaste, uuid.New(), 50*time.Hour)
	_, wasteToken := env.seedUser(t, types.RoleWasteAdmin)
	_, superToken := env.seedUser(t, types.RoleSuperAdmin)
	_, userToken := env.seedUser(t)

	rec := env.do(t, http.MethodGet, "/admin/complaints", wasteToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	listing := decode[services.AdminListing](t, rec)
	if len(listing.Complaints) != 1 || listing.Complaints[0].ID != waste.ID {
		t.Fatalf("expected waste only, got %d complaints", len(listing.Complaints))
	}
	if listing.Complaints[0].Urgency != types.UrgencyCritical || listing.Summary.Overdue != 1 {
		t.Fatalf("expected the 50h complaint to be critical")
	}

	rec = env.do(t, http.MethodGet, "/admin/complaints?category=roads", wasteToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("waste admin filtering roads: expected 403, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/admin/complaints?category=all", superToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("super admin status %d", rec.Code)
	}
	if got := decode[services.AdminListing](t, rec); len(got.Complaints) != 2 {
		t.Fatalf("super admin should see both, got %d", len(got.Complaints))
	}

	rec = env.do(t, http.MethodGet, "/admin/complaints", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("plain user: expected 403, got %d", rec.Code)
	}
}

func TestComplaints_UploadPhoto(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.seedUser(t)

	upload := func(contentType string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="photo"; filename="pothole.jpg"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("jpegbytes"))
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/complaints/photos", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("image/jpeg")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}
	photo := decode[storage.Photo](t, rec)
	if photo.Key != userID.String()+"/pothole.jpg" || photo.URL == "" {
		t.Fatalf("unexpected photo %+v", photo)
	}

	rec = upload("application/pdf")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}
