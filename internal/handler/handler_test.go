package handler_test

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"

    "github.com/esummit/pass-registry/internal/config"
    "github.com/esummit/pass-registry/internal/handler"
    "github.com/esummit/pass-registry/internal/identity"
    "github.com/esummit/pass-registry/internal/model"
    "github.com/esummit/pass-registry/internal/repository"
    "github.com/esummit/pass-registry/internal/router"
    "github.com/esummit/pass-registry/internal/service"
    "github.com/esummit/pass-registry/internal/service/memstore"
    "github.com/esummit/pass-registry/internal/ticketing"
    "github.com/esummit/pass-registry/internal/utils"
)

const (
    secret    = "hook-secret"
    jwtSecret = "jwt-secret"
)

type app struct {
    e      *echo.Echo
    gw     *memstore.Gateway
    store  *memstore.Store
    admins *fakeAdmins
    tokens *fakeTokens
}

func newApp(t *testing.T, clerkSecret string) *app {
    t.Helper()
    a := &app{
        e:      echo.New(),
        gw:     memstore.NewGateway(secret),
        store:  memstore.New(),
        admins: &fakeAdmins{},
        tokens: &fakeTokens{rows: map[string]fakeToken{}},
    }
    profiles := memstore.NewProfiles(identity.Profile{ID: "user_1", Email: "asha@example.com", FirstName: "Asha"})
    dir := service.NewDirectory(a.store.Users(), profiles, nil)
    engine := service.NewEngine(service.EngineDeps{
        Directory:    dir,
        Users:        a.store.Users(),
        Transactions: a.store.Transactions(),
        Passes:       a.store.Passes(),
        Tx:           a.store,
        Gateway:      a.gw,
    })
    claims := service.NewClaims(service.ClaimsDeps{
        Directory: dir, Users: a.store.Users(), Claims: a.store.Claims(),
        Passes: a.store.Passes(), Tx: a.store, AutoApprove: false,
    })
    verifier, err := identity.NewWebhookVerifier(clerkSecret)
    require.NoError(t, err)

    cfg := config.Config{JWTSecret: jwtSecret, AccessTTLMin: 15, RefreshTTLDays: 7}
    router.RegisterRoutes(a.e, nil, nil)
    router.RegisterPayment(a.e, handler.NewPaymentHandler(engine, nil), nil)
    router.RegisterUsers(a.e, handler.NewUserHandler(dir, verifier, nil))
    router.RegisterPasses(a.e, handler.NewPassHandler(engine, claims, nil), nil)
    router.RegisterAdmin(a.e, handler.NewAuthHandler(cfg, a.admins, a.tokens), handler.NewAdminHandler(engine, claims, nil), jwtSecret)
    return a
}

type reply struct {
    Success bool            `json:"success"`
    Message string          `json:"message"`
    Error   string          `json:"error"`
    Data    json.RawMessage `json:"data"`
}

func (a *app) do(t *testing.T, method, path, body string, hdr map[string]string) (int, reply) {
    t.Helper()
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    for k, v := range hdr {
        req.Header.Set(k, v)
    }
    rec := httptest.NewRecorder()
    a.e.ServeHTTP(rec, req)
    var r reply
    if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
        require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
    }
    return rec.Code, r
}

func TestHealth(t *testing.T) {
    a := newApp(t, "")
    req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
    rec := httptest.NewRecorder()
    a.e.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    require.Equal(t, "ok", rec.Body.String())
}

func TestPaymentFlow(t *testing.T) {
    a := newApp(t, "")

    code, r := a.do(t, http.MethodPost, "/v1/payment/create-order",
        `{"clerkUserId":"user_1","passType":"Quantum Pass","price":999}`, nil)
    require.Equal(t, http.StatusCreated, code)
    require.True(t, r.Success)
    var order service.OrderResult
    require.NoError(t, json.Unmarshal(r.Data, &order))
    require.NotEmpty(t, order.OrderID)
    require.NotEmpty(t, order.TransactionID)

    // not yet paid
    code, r = a.do(t, http.MethodPost, "/v1/payment/verify-and-create-pass", `{"orderId":"`+order.OrderID+`"}`, nil)
    require.Equal(t, http.StatusBadRequest, code)
    require.False(t, r.Success)
    require.Equal(t, service.ErrPaymentNotCompleted.Message, r.Message)

    // second order, paid
    code, r = a.do(t, http.MethodPost, "/v1/payment/create-order",
        `{"clerkUserId":"user_1","passType":"Quantum Pass","price":"999"}`, nil)
    require.Equal(t, http.StatusCreated, code)
    require.NoError(t, json.Unmarshal(r.Data, &order))
    a.gw.SetStatus(order.OrderID, ticketing.OrderCompleted, "tkt_9", order.Amount)

    code, r = a.do(t, http.MethodPost, "/v1/payment/verify-and-create-pass", `{"orderId":"`+order.OrderID+`"}`, nil)
    require.Equal(t, http.StatusCreated, code)
    var res service.PassResult
    require.NoError(t, json.Unmarshal(r.Data, &res))
    require.Equal(t, model.PassQuantum, res.Pass.PassType)
    require.Equal(t, model.TxCompleted, res.Transaction.Status)

    code, r = a.do(t, http.MethodPost, "/v1/payment/verify-and-create-pass", `{"orderId":"`+order.OrderID+`"}`, nil)
    require.Equal(t, http.StatusBadRequest, code)
    require.Equal(t, service.ErrAlreadyProcessed.Message, r.Message)

    code, r = a.do(t, http.MethodGet, "/v1/payment/transaction/"+order.TransactionID, "", nil)
    require.Equal(t, http.StatusOK, code)
    require.Contains(t, string(r.Data), `"passId"`)

    code, r = a.do(t, http.MethodGet, "/v1/payment/user/user_1/transactions", "", nil)
    require.Equal(t, http.StatusOK, code)
    var list struct {
        Transactions []model.TransactionDetail `json:"transactions"`
    }
    require.NoError(t, json.Unmarshal(r.Data, &list))
    require.Len(t, list.Transactions, 2)
    require.Equal(t, model.TxCompleted, list.Transactions[0].Status)
    require.Equal(t, model.TxFailed, list.Transactions[1].Status)

    code, _ = a.do(t, http.MethodGet, "/v1/passes/user/user_1", "", nil)
    require.Equal(t, http.StatusOK, code)
}

func TestPaymentErrorsMapToStatus(t *testing.T) {
    a := newApp(t, "")

    code, r := a.do(t, http.MethodPost, "/v1/payment/create-order", `{"clerkUserId":"user_1","passType":"Quantum Pass"}`, nil)
    require.Equal(t, http.StatusBadRequest, code)
    require.Equal(t, "Invalid price amount", r.Message)

    code, _ = a.do(t, http.MethodPost, "/v1/payment/create-order", `{"clerkUserId":"nobody","passType":"Pixel Pass","price":10}`, nil)
    require.Equal(t, http.StatusNotFound, code)

    a.gw.Down = true
    code, r = a.do(t, http.MethodPost, "/v1/payment/create-order", `{"clerkUserId":"user_1","passType":"Pixel Pass","price":10}`, nil)
    require.Equal(t, http.StatusInternalServerError, code)
    require.Equal(t, memstore.ErrGatewayDown.Error(), r.Error)
    a.gw.Down = false

    code, _ = a.do(t, http.MethodPost, "/v1/payment/payment-failed", `{"orderId":"missing"}`, nil)
    require.Equal(t, http.StatusNotFound, code)
    code, _ = a.do(t, http.MethodPost, "/v1/payment/payment-failed", `{}`, nil)
    require.Equal(t, http.StatusBadRequest, code)
    code, _ = a.do(t, http.MethodPost, "/v1/payment/cancel", `{"transactionId":"missing"}`, nil)
    require.Equal(t, http.StatusNotFound, code)
    code, _ = a.do(t, http.MethodGet, "/v1/payment/transaction/missing", "", nil)
    require.Equal(t, http.StatusNotFound, code)
    code, _ = a.do(t, http.MethodPost, "/v1/payment/create-order", `{not json`, nil)
    require.Equal(t, http.StatusBadRequest, code)
}

func TestPaymentFailedAndCancel(t *testing.T) {
    a := newApp(t, "")
    _, r := a.do(t, http.MethodPost, "/v1/payment/create-order", `{"clerkUserId":"user_1","passType":"Pixel Pass","price":10}`, nil)
    var order service.OrderResult
    require.NoError(t, json.Unmarshal(r.Data, &order))

    code, r := a.do(t, http.MethodPost, "/v1/payment/cancel", `{"transactionId":"`+order.TransactionID+`"}`, nil)
    require.Equal(t, http.StatusOK, code)
    require.True(t, r.Success)

    code, r = a.do(t, http.MethodPost, "/v1/payment/payment-failed", `{"orderId":"`+order.OrderID+`","error":"x"}`, nil)
    require.Equal(t, http.StatusOK, code)
    require.JSONEq(t, `{"transactionId":"`+order.TransactionID+`"}`, string(r.Data))
}

func TestPaymentWebhook(t *testing.T) {
    a := newApp(t, "")
    _, r := a.do(t, http.MethodPost, "/v1/payment/create-order", `{"clerkUserId":"user_1","passType":"Pixel Pass","price":10}`, nil)
    var order service.OrderResult
    require.NoError(t, json.Unmarshal(r.Data, &order))
    a.gw.SetStatus(order.OrderID, ticketing.OrderCompleted, "", order.Amount)

    body := `{"event":"order.completed","orderId":"` + order.OrderID + `"}`
    code, r := a.do(t, http.MethodPost, "/v1/payment/webhook", body, map[string]string{ticketing.SignatureHeader: "bad"})
    require.Equal(t, http.StatusUnauthorized, code)
    require.False(t, r.Success)

    sig := ticketing.Sign([]byte(secret), []byte(body))
    for i := 0; i < 2; i++ {
        req := httptest.NewRequest(http.MethodPost, "/v1/payment/webhook", strings.NewReader(body))
        req.Header.Set(ticketing.SignatureHeader, sig)
        rec := httptest.NewRecorder()
        a.e.ServeHTTP(rec, req)
        require.Equal(t, http.StatusOK, rec.Code)
        require.JSONEq(t, `{}`, rec.Body.String())
    }
    tx, err := a.store.Transactions().GetByOrderID(context.Background(), order.OrderID)
    require.NoError(t, err)
    require.Equal(t, model.TxCompleted, tx.Status)
}

func TestUserRoutes(t *testing.T) {
    a := newApp(t, "")
    body := `{"clerkUserId":"user_7","email":"seven@example.com","fullName":"Seven"}`
    code, r := a.do(t, http.MethodPost, "/v1/users/sync", body, nil)
    require.Equal(t, http.StatusCreated, code)
    require.Contains(t, string(r.Data), `"seven@example.com"`)

    code, _ = a.do(t, http.MethodPost, "/v1/users/sync", body, nil)
    require.Equal(t, http.StatusOK, code)

    code, r = a.do(t, http.MethodGet, "/v1/users/check-profile/user_7", "", nil)
    require.Equal(t, http.StatusOK, code)
    require.JSONEq(t, `{"exists":true,"isComplete":false}`, string(r.Data))

    code, _ = a.do(t, http.MethodPost, "/v1/users/complete-profile",
        `{"clerkUserId":"user_7","email":"seven@example.com","phone":"1","college":"`+model.HostCollege+`","yearOfStudy":"SE"}`, nil)
    require.Equal(t, http.StatusBadRequest, code)

    code, _ = a.do(t, http.MethodPost, "/v1/users/complete-profile",
        `{"clerkUserId":"user_7","email":"seven@example.com","phone":"1","college":"`+model.HostCollege+`","yearOfStudy":"SE","branch":"IT","rollNumber":"7"}`, nil)
    require.Equal(t, http.StatusOK, code)

    code, r = a.do(t, http.MethodGet, "/v1/users/check-profile/user_7", "", nil)
    require.Equal(t, http.StatusOK, code)
    require.JSONEq(t, `{"exists":true,"isComplete":true}`, string(r.Data))

    code, _ = a.do(t, http.MethodGet, "/v1/users/profile/user_1", "", nil)
    require.Equal(t, http.StatusOK, code)
    code, _ = a.do(t, http.MethodGet, "/v1/users/profile/ghost", "", nil)
    require.Equal(t, http.StatusNotFound, code)
}

func TestClerkWebhook(t *testing.T) {
    a := newApp(t, "")
    code, _ := a.do(t, http.MethodPost, "/v1/webhooks/clerk", `{"type":"user.created"}`, nil)
    require.Equal(t, http.StatusInternalServerError, code)

    a = newApp(t, "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
    code, _ = a.do(t, http.MethodPost, "/v1/webhooks/clerk", `{"type":"user.created"}`, map[string]string{
        "svix-id": "msg_1", "svix-timestamp": "1", "svix-signature": "v1,bogus",
    })
    require.Equal(t, http.StatusBadRequest, code)
}

func TestPassTypesAndClaims(t *testing.T) {
    a := newApp(t, "")
    code, r := a.do(t, http.MethodGet, "/v1/passes/types", "", nil)
    require.Equal(t, http.StatusOK, code)
    require.Contains(t, string(r.Data), "Thakur Student Pass")

    code, r = a.do(t, http.MethodPost, "/v1/pass-claims",
        `{"clerkUserId":"user_1","passType":"Pixel Pass","bookingId":"BK1"}`, nil)
    require.Equal(t, http.StatusCreated, code)
    var res service.ClaimResult
    require.NoError(t, json.Unmarshal(r.Data, &res))
    require.Equal(t, model.ClaimPending, res.Claim.Status)

    code, r = a.do(t, http.MethodGet, "/v1/pass-claims/user/user_1", "", nil)
    require.Equal(t, http.StatusOK, code)
    require.Contains(t, string(r.Data), res.Claim.ID)

    code, _ = a.do(t, http.MethodDelete, "/v1/pass-claims/"+res.Claim.ID, `{"clerkUserId":"someone"}`, nil)
    require.Equal(t, http.StatusNotFound, code)
    code, _ = a.do(t, http.MethodDelete, "/v1/pass-claims/"+res.Claim.ID, "", map[string]string{"X-Clerk-User-Id": "user_1"})
    require.Equal(t, http.StatusOK, code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
    a := newApp(t, "")
    code, _ := a.do(t, http.MethodGet, "/v1/admin/transactions", "", nil)
    require.Equal(t, http.StatusUnauthorized, code)

    tok, err := utils.NewAccessToken(jwtSecret, 1, "ops@example.com", "VIEWER", 5)
    require.NoError(t, err)
    code, _ = a.do(t, http.MethodGet, "/v1/admin/transactions", "", map[string]string{"Authorization": "Bearer " + tok.Token})
    require.Equal(t, http.StatusForbidden, code)
}

func TestAdminLoginAndQueue(t *testing.T) {
    a := newApp(t, "")
    hash, err := utils.HashPassword("s3cret!", 4)
    require.NoError(t, err)
    a.admins.admin = model.Admin{ID: 1, Email: "ops@example.com", PasswordHash: hash, Role: model.RoleAdmin, IsActive: true}

    code, _ := a.do(t, http.MethodPost, "/v1/admin/auth/login", `{"email":"ops@example.com","password":"nope"}`, nil)
    require.Equal(t, http.StatusUnauthorized, code)

    code, r := a.do(t, http.MethodPost, "/v1/admin/auth/login", `{"email":" OPS@example.com ","password":"s3cret!"}`, nil)
    require.Equal(t, http.StatusOK, code)
    var sess struct {
        Access  struct{ Token string } `json:"access"`
        Refresh struct{ Token string } `json:"refresh"`
    }
    require.NoError(t, json.Unmarshal(r.Data, &sess))
    bearer := map[string]string{"Authorization": "Bearer " + sess.Access.Token}

    code, r = a.do(t, http.MethodGet, "/v1/admin/transactions?status=refund_pending", "", bearer)
    require.Equal(t, http.StatusOK, code)
    require.JSONEq(t, `{"transactions":[]}`, string(r.Data))

    code, _ = a.do(t, http.MethodGet, "/v1/admin/transactions?status=bogus", "", bearer)
    require.Equal(t, http.StatusBadRequest, code)

    code, _ = a.do(t, http.MethodPatch, "/v1/admin/passes/missing/status", `{"status":"Cancelled"}`, bearer)
    require.Equal(t, http.StatusNotFound, code)

    code, _ = a.do(t, http.MethodPost, "/v1/admin/pass-claims/missing/approve", "", bearer)
    require.Equal(t, http.StatusNotFound, code)

    // refresh rotates: the old token stops working
    code, r = a.do(t, http.MethodPost, "/v1/admin/auth/refresh", `{"refresh_token":"`+sess.Refresh.Token+`"}`, nil)
    require.Equal(t, http.StatusOK, code)
    code, _ = a.do(t, http.MethodPost, "/v1/admin/auth/refresh", `{"refresh_token":"`+sess.Refresh.Token+`"}`, nil)
    require.Equal(t, http.StatusUnauthorized, code)

    code, _ = a.do(t, http.MethodPost, "/v1/admin/auth/logout", "", bearer)
    require.Equal(t, http.StatusNoContent, code)
    require.True(t, a.tokens.allRevoked(1))

    code, _ = a.do(t, http.MethodPost, "/v1/admin/auth/logout", "", nil)
    require.Equal(t, http.StatusBadRequest, code)
}

func TestAdminClaimApproval(t *testing.T) {
    a := newApp(t, "")
    tok, err := utils.NewAccessToken(jwtSecret, 1, "ops@example.com", model.RoleAdmin, 5)
    require.NoError(t, err)
    bearer := map[string]string{"Authorization": "Bearer " + tok.Token}

    _, r := a.do(t, http.MethodPost, "/v1/pass-claims", `{"clerkUserId":"user_1","passType":"Pixel Pass","ticketNumber":"T9"}`, nil)
    var res service.ClaimResult
    require.NoError(t, json.Unmarshal(r.Data, &res))

    code, r := a.do(t, http.MethodPost, "/v1/admin/pass-claims/"+res.Claim.ID+"/approve", "", bearer)
    require.Equal(t, http.StatusOK, code)
    require.NoError(t, json.Unmarshal(r.Data, &res))
    require.NotNil(t, res.Pass)

    code, _ = a.do(t, http.MethodPost, "/v1/admin/pass-claims/"+res.Claim.ID+"/reject", "", bearer)
    require.Equal(t, http.StatusBadRequest, code)

    code, r = a.do(t, http.MethodPatch, "/v1/admin/passes/"+res.Pass.ID+"/status", `{"status":"Refunded"}`, bearer)
    require.Equal(t, http.StatusOK, code)
    require.Contains(t, string(r.Data), `"Refunded"`)
}

// ----- fakes -----

type fakeAdmins struct{ admin model.Admin }

func (f *fakeAdmins) GetByEmail(_ context.Context, email string) (model.Admin, error) {
    if f.admin.ID == 0 || f.admin.Email != email {
        return model.Admin{}, repository.ErrNotFound
    }
    return f.admin, nil
}

func (f *fakeAdmins) GetByID(_ context.Context, id uint64) (model.Admin, error) {
    if f.admin.ID != id {
        return model.Admin{}, repository.ErrNotFound
    }
    return f.admin, nil
}

type fakeToken struct {
    adminID uint64
    exp     time.Time
    revoked bool
}

type fakeTokens struct{ rows map[string]fakeToken }

func (f *fakeTokens) StoreRefresh(_ context.Context, adminID uint64, hash string, exp time.Time) error {
    f.rows[hash] = fakeToken{adminID: adminID, exp: exp}
    return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
    r, ok := f.rows[hash]
    if !ok || r.revoked || time.Now().After(r.exp) {
        return 0, repository.ErrNotFound
    }
    return r.adminID, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
    if r, ok := f.rows[hash]; ok {
        r.revoked = true
        f.rows[hash] = r
    }
    return nil
}

func (f *fakeTokens) RevokeAllForAdmin(_ context.Context, adminID uint64) error {
    for k, r := range f.rows {
        if r.adminID == adminID {
            r.revoked = true
            f.rows[k] = r
        }
    }
    return nil
}

func (f *fakeTokens) allRevoked(adminID uint64) bool {
    for _, r := range f.rows {
        if r.adminID == adminID && !r.revoked {
            return false
        }
    }
    return len(f.rows) > 0
}
