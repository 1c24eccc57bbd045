package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"charitypay/internal/bank"
	"charitypay/internal/httpx"
	"charitypay/internal/service"
	"charitypay/internal/store"
)

const testSecret = "test-secret"

type fakeBank struct {
	mu       sync.Mutex
	next     int
	byINN    map[string]string
	failWith error
}

func (f *fakeBank) newID(prefix string) string {
	f.next++
	return fmt.Sprintf("%s-%d", prefix, f.next)
}

func (f *fakeBank) CreateBeneficiaryUL(_ context.Context, req bank.CreateBeneficiaryULRequest) (*bank.CreatedBeneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.byINN[req.INN]; ok {
		return nil, &bank.Error{Code: 4409, Message: "beneficiary already exists"}
	}
	id := f.newID("ben")
	f.byINN[req.INN] = id
	return &bank.CreatedBeneficiary{ID: id, INN: req.INN}, nil
}

func (f *fakeBank) GetBeneficiary(context.Context, string) (*bank.GetBeneficiaryResponse, error) {
	return nil, bank.ErrTransport
}

func (f *fakeBank) ListBeneficiary(context.Context, bank.ListBeneficiaryFilters) ([]bank.BeneficiarySummary, error) {
	return nil, nil
}

func (f *fakeBank) UploadBeneficiaryDocument(context.Context, bank.UploadDocumentParams) (*bank.UploadDocumentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &bank.UploadDocumentResult{DocumentID: f.newID("doc")}, nil
}

func (f *fakeBank) CreateVirtualAccount(context.Context, bank.CreateVirtualAccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newID("va"), nil
}

func (f *fakeBank) GetVirtualAccount(context.Context, string) (*bank.VirtualAccount, error) {
	return nil, &bank.Error{Code: 4404, Message: "not found"}
}

func (f *fakeBank) GenerateSBPQRCode(_ context.Context, req bank.GenerateSBPQRCodeRequest) (*bank.QRCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID("QR")
	return &bank.QRCode{ID: id, URL: "https://qr.nspk.ru/" + id}, nil
}

type nopScheduler struct{}

func (nopScheduler) ReconcileDonation(string) bool { return true }

func (nopScheduler) WatchSettlement(string) bool { return true }

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	bank  *fakeBank
	store *store.MemoryStore
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	b := &fakeBank{byINN: map[string]string{}}
	s := store.NewMemoryStore()
	nominal := service.NominalAccount{Code: "40702810000000000001", BIC: "044525104"}
	router := NewRouter(Services{
		Auth:          service.NewAuthService("operator", string(hash)),
		Beneficiaries: service.NewBeneficiaryService(b, s, nopScheduler{}, nominal),
		Projects:      service.NewProjectService(b, s),
		Donations:     service.NewDonationService(b, s, nopScheduler{}, nominal),
	}, testSecret)

	ts := &testServer{t: t, srv: httptest.NewServer(router), bank: b, store: s}
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(method, path, contentType string, body []byte) (int, []byte) {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		ts.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

func (ts *testServer) postJSON(path string, v any) (int, []byte) {
	ts.t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ts.t.Fatalf("marshal: %v", err)
	}
	return ts.do(http.MethodPost, path, "application/json", body)
}

func (ts *testServer) login() {
	ts.t.Helper()
	status, body := ts.postJSON("/api/auth/login", map[string]string{"login": "operator", "password": "s3cret"})
	if status != http.StatusOK {
		ts.t.Fatalf("unexpected login status: %d %s", status, body)
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		ts.t.Fatalf("unexpected login body: %s", body)
	}
	ts.token = resp.Token
}

func decodeError(t *testing.T, body []byte) httpx.ErrorResponse {
	t.Helper()
	var resp httpx.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unexpected error body %s: %v", body, err)
	}
	if resp.RequestID == "" {
		t.Fatalf("error payload without request id: %s", body)
	}
	return resp
}

func testBeneficiaryBody() map[string]any {
	return map[string]any{
		"inn": "7707083893",
		"beneficiary_data": map[string]any{
			"name": "Test Org",
			"kpp":  "770701001",
		},
	}
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	if status != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", status)
	}
	if resp := decodeError(t, body); resp.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	status, _ = ts.postJSON("/api/auth/login", map[string]string{"login": "operator", "password": "nope"})
	if status != http.StatusUnauthorized {
		t.Fatalf("unexpected login status: %d", status)
	}
}

func TestBeneficiaryRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.login()

	status, body := ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	if status != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
	var created struct {
		ID   string `json:"id"`
		Data struct {
			Name string `json:"name"`
			KPP  string `json:"kpp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		t.Fatalf("unexpected body: %s", body)
	}

	status, body = ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	if status != http.StatusBadGateway {
		t.Fatalf("unexpected duplicate status: %d %s", status, body)
	}
	resp := decodeError(t, body)
	if resp.Error.Code != "bank_error" || resp.Error.BankCode == nil || *resp.Error.BankCode != 4409 {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Error.Message != "beneficiary already exists" {
		t.Fatalf("unexpected message: %s", resp.Error.Message)
	}

	status, body = ts.do(http.MethodGet, "/api/beneficiaries/"+created.ID, "", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
	var got struct {
		Data struct {
			Name string `json:"name"`
			KPP  string `json:"kpp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unexpected body: %s", body)
	}
	if got.Data.Name != "Test Org" || got.Data.KPP != "770701001" {
		t.Fatalf("unexpected beneficiary: %s", body)
	}

	status, body = ts.do(http.MethodGet, "/api/beneficiaries/missing", "", nil)
	if status != http.StatusNotFound || decodeError(t, body).Error.Code != "not_found" {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
}

func TestCreateBeneficiaryValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.login()

	cases := []struct {
		name  string
		body  map[string]any
		field string
		tag   string
	}{
		{
			name:  "short inn",
			body:  map[string]any{"inn": "12345", "beneficiary_data": map[string]any{"name": "Org", "kpp": "770701001"}},
			field: "inn",
			tag:   "len",
		},
		{
			name:  "letters in kpp",
			body:  map[string]any{"inn": "7707083893", "beneficiary_data": map[string]any{"name": "Org", "kpp": "77070100X"}},
			field: "kpp",
			tag:   "number",
		},
		{
			name:  "missing name",
			body:  map[string]any{"inn": "7707083893", "beneficiary_data": map[string]any{"kpp": "770701001"}},
			field: "name",
			tag:   "required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ts.postJSON("/api/beneficiaries", tc.body)
			if status != http.StatusBadRequest {
				t.Fatalf("unexpected status: %d %s", status, body)
			}
			resp := decodeError(t, body)
			details, ok := resp.Error.Details.(map[string]any)
			if !ok || details[tc.field] != tc.tag {
				t.Fatalf("unexpected details: %s", body)
			}
		})
	}

	status, _ := ts.do(http.MethodPost, "/api/beneficiaries", "application/json", []byte(`{"inn":`))
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status for broken json: %d", status)
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.login()
	ts.bank.failWith = fmt.Errorf("%w: dial tcp 10.0.0.1:443: connection refused", bank.ErrTransport)

	status, body := ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	if status != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", status)
	}
	resp := decodeError(t, body)
	if resp.Error.Message != "internal error" || strings.Contains(string(body), "10.0.0.1") {
		t.Fatalf("internal detail leaked: %s", body)
	}
}

func TestProjectAndDonationRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.login()

	_, body := ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	var ben struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ben); err != nil {
		t.Fatalf("unexpected body: %s", body)
	}

	project := map[string]any{"beneficiary_id": ben.ID, "name": "Food", "description": "Meals", "cap": 100000}
	status, body := ts.postJSON("/api/projects", project)
	if status != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &p); err != nil || p.ID == "" {
		t.Fatalf("unexpected body: %s", body)
	}

	status, body = ts.postJSON("/api/projects", project)
	if status != http.StatusConflict || decodeError(t, body).Error.Code != "name_taken" {
		t.Fatalf("unexpected duplicate status: %d %s", status, body)
	}

	status, body = ts.postJSON("/api/projects/"+p.ID+"/donations", map[string]any{"amount": 0})
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status for zero amount: %d %s", status, body)
	}

	for _, amount := range []uint64{math.MaxUint32 + 1, math.MaxUint64} {
		status, body = ts.postJSON("/api/projects/"+p.ID+"/donations", map[string]any{"amount": amount})
		if status != http.StatusBadRequest || decodeError(t, body).Error.Code != "invalid_request" {
			t.Fatalf("unexpected status for amount %d: %d %s", amount, status, body)
		}
	}

	status, body = ts.postJSON("/api/projects/"+p.ID+"/donations", map[string]any{"amount": 200000})
	if status != http.StatusConflict || decodeError(t, body).Error.Code != "cap_exceeded" {
		t.Fatalf("unexpected status over cap: %d %s", status, body)
	}

	status, body = ts.postJSON("/api/projects/"+p.ID+"/donations", map[string]any{"amount": 1000})
	if status != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
	var qr service.DonationQR
	if err := json.Unmarshal(body, &qr); err != nil || qr.QRCodeID == "" {
		t.Fatalf("unexpected body: %s", body)
	}

	status, body = ts.do(http.MethodGet, "/api/donations/"+qr.QRCodeID, "", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", status, body)
	}
	var d struct {
		ProjectID string `json:"project_id"`
		Amount    uint64 `json:"amount"`
		State     string `json:"state"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("unexpected body: %s", body)
	}
	if d.ProjectID != p.ID || d.Amount != 1000 || d.State != "awaiting_payment" {
		t.Fatalf("unexpected donation: %+v", d)
	}

	status, body = ts.do(http.MethodGet, "/api/projects/va-unknown", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unexpected status: %d %s", status, body)
	}

	status, body = ts.do(http.MethodGet, "/api/beneficiaries/"+ben.ID+"/projects", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"name":"Food"`) {
		t.Fatalf("unexpected projects: %d %s", status, body)
	}
}

func TestUploadDocumentRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.login()

	_, body := ts.postJSON("/api/beneficiaries", testBeneficiaryBody())
	var ben struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ben); err != nil {
		t.Fatalf("unexpected body: %s", body)
	}
	path := "/api/beneficiaries/" + ben.ID + "/documents?document_number=42&document_date=2024-05-01"

	status, body := ts.do(http.MethodPost, path, "application/pdf", []byte("%PDF-1.4"))
	if status != http.StatusConflict || decodeError(t, body).Error.Code != "not_settled" {
		t.Fatalf("unexpected status before settlement: %d %s", status, body)
	}

	if err := ts.store.MarkAddedToSettlement(context.Background(), ben.ID); err != nil {
		t.Fatalf("MarkAddedToSettlement: %v", err)
	}

	status, body = ts.do(http.MethodPost, "/api/beneficiaries/"+ben.ID+"/documents?document_number=42&document_date=May", "application/pdf", []byte("%PDF-1.4"))
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad date: %d %s", status, body)
	}

	status, body = ts.do(http.MethodPost, path, "application/pdf", []byte("%PDF-1.4"))
	if status != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", status, body)
	}

	status, body = ts.do(http.MethodGet, "/api/beneficiaries/"+ben.ID+"/documents", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"number":"42"`) {
		t.Fatalf("unexpected documents: %d %s", status, body)
	}
}
