package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/gradesheet/internal/eval"
	"github.com/pavelanni/gradesheet/internal/extract"
	"github.com/pavelanni/gradesheet/internal/keystore"
	"github.com/pavelanni/gradesheet/internal/model"
)

func newTestServer(t *testing.T, extractor extract.Extractor) (*httptest.Server, int64) {
	t.Helper()
	store, err := keystore.New(":memory:")
	if err != nil {
		t.Fatalf("keystore.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	specs := []model.QuestionSpec{
		{Index: 1, MaxMarks: 10, Type: model.QuestionShortAnswer},
		{Index: 2, MaxMarks: 10, Type: model.QuestionShortAnswer},
	}
	refs := []model.ReferenceAnswer{
		{QuestionIndex: 1, Keywords: []string{"speed", "distance", "time"}},
		{QuestionIndex: 2, Keywords: []string{"force", "mass"}},
	}
	testID, err := store.CreateTest(model.Test{Title: "Physics Quiz", Subject: "Physics"}, specs, refs)
	if err != nil {
		t.Fatalf("CreateTest() error = %v", err)
	}

	h := New(store, eval.New(extractor, store))
	r := chi.NewRouter()
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, testID
}

func uploadDocument(t *testing.T, url string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "sheet.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("fake image bytes")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEvaluateUpload(t *testing.T) {
	extractor := extract.Static{
		{QuestionIndex: 1, Text: "Speed is distance over time", Confidence: 0.9, Handwriting: model.HandwritingClear},
	}
	srv, testID := newTestServer(t, extractor)

	resp := uploadDocument(t, fmt.Sprintf("%s/tests/%d/evaluations", srv.URL, testID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var rep model.EvaluationReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rep.ID == "" || rep.TestID != testID {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.QuestionResults) != 2 {
		t.Errorf("len(QuestionResults) = %d, want 2", len(rep.QuestionResults))
	}

	// The completed report is retrievable afterwards.
	getResp, err := http.Get(srv.URL + "/evaluations/" + rep.ID)
	if err != nil {
		t.Fatalf("GET evaluation: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("GET status = %d, want %d", getResp.StatusCode, http.StatusOK)
	}
}

func TestEvaluateNonMultipartBody(t *testing.T) {
	srv, testID := newTestServer(t, extract.Static{})

	resp, err := http.Post(fmt.Sprintf("%s/tests/%d/evaluations", srv.URL, testID), "application/json", bytes.NewBufferString("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d for non-multipart body", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestInvalidTestID(t *testing.T) {
	srv, _ := newTestServer(t, extract.Static{})

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"list zero", http.MethodGet, "/tests/0/evaluations"},
		{"list negative", http.MethodGet, "/tests/-3/evaluations"},
		{"evaluate zero", http.MethodPost, "/tests/0/evaluations"},
		{"list non-numeric", http.MethodGet, "/tests/abc/evaluations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestGetEvaluationMissing(t *testing.T) {
	srv, _ := newTestServer(t, extract.Static{})

	resp, err := http.Get(srv.URL + "/evaluations/no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestListEvaluations(t *testing.T) {
	extractor := extract.Static{
		{QuestionIndex: 1, Text: "speed distance time", Confidence: 0.9},
	}
	srv, testID := newTestServer(t, extractor)

	uploadDocument(t, fmt.Sprintf("%s/tests/%d/evaluations", srv.URL, testID))
	uploadDocument(t, fmt.Sprintf("%s/tests/%d/evaluations", srv.URL, testID))

	resp, err := http.Get(fmt.Sprintf("%s/tests/%d/evaluations", srv.URL, testID))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var reports []model.EvaluationReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("len(reports) = %d, want 2", len(reports))
	}
}
