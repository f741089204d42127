package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/kringleapp/kringle/internal/errors"
	"github.com/kringleapp/kringle/internal/services/exchange/domain"
)

var testSecret = []byte("test-secret")

type fakeService struct {
	startDraw func(ctx context.Context, input domain.StartDrawInput) (domain.StartDrawResult, error)
	pull      func(ctx context.Context, input domain.PullAssignmentInput) (string, error)
	reveal    func(ctx context.Context, input domain.RevealInput) (string, error)
}

func (f *fakeService) StartDraw(ctx context.Context, input domain.StartDrawInput) (domain.StartDrawResult, error) {
	return f.startDraw(ctx, input)
}

func (f *fakeService) PullAssignment(ctx context.Context, input domain.PullAssignmentInput) (string, error) {
	return f.pull(ctx, input)
}

func (f *fakeService) Reveal(ctx context.Context, input domain.RevealInput) (string, error) {
	return f.reveal(ctx, input)
}

func authedRequest(t *testing.T, method, target, subject, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	token, err := IssueToken(testSecret, subject, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	t.Parallel()

	api := New(&fakeService{}, testSecret)
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/g1:start", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var body errorResponse
	decodeBody(t, rec, &body)
	if body.Code != "Unauthenticated" {
		t.Fatalf("error code = %q, want %q", body.Code, "Unauthenticated")
	}
}

func TestAPIRejectsForgedToken(t *testing.T) {
	t.Parallel()

	api := New(&fakeService{}, testSecret)
	forged, err := IssueToken([]byte("other-secret"), "mallory", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/g1:start", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAPIStartDraw(t *testing.T) {
	t.Parallel()

	var got domain.StartDrawInput
	api := New(&fakeService{
		startDraw: func(_ context.Context, input domain.StartDrawInput) (domain.StartDrawResult, error) {
			got = input
			return domain.StartDrawResult{
				MemberCount: 3,
				Edges: []domain.Edge{
					{GiverID: "alice", RecipientID: "bob"},
					{GiverID: "bob", RecipientID: "carol"},
					{GiverID: "carol", RecipientID: "alice"},
				},
			}, nil
		},
	}, testSecret)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, authedRequest(t, http.MethodPost, "/v1/groups/g1:start", "alice", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got.GroupID != "g1" || got.CallerID != "alice" {
		t.Fatalf("service input = %+v, want group g1 caller alice", got)
	}
	var body startDrawResponse
	decodeBody(t, rec, &body)
	if body.MemberCount != 3 || len(body.Edges) != 3 {
		t.Fatalf("response = %+v, want 3 members and 3 edges", body)
	}
}

func TestAPIPullAssignment(t *testing.T) {
	t.Parallel()

	var got domain.PullAssignmentInput
	api := New(&fakeService{
		pull: func(_ context.Context, input domain.PullAssignmentInput) (string, error) {
			got = input
			return "bob", nil
		},
	}, testSecret)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, authedRequest(t, http.MethodPost,
		"/v1/groups/g1:pull", "alice", `{"participantId":"alice"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got.GroupID != "g1" || got.ParticipantID != "alice" || got.CallerID != "alice" {
		t.Fatalf("service input = %+v", got)
	}
	var body assignmentResponse
	decodeBody(t, rec, &body)
	if body.AssignedToUserID != "bob" {
		t.Fatalf("assigned to = %q, want %q", body.AssignedToUserID, "bob")
	}
}

func TestAPIRevealMapsDomainErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "permission denied",
			err:        apperrors.New(apperrors.CodeNotGroupMember, "caller is not a member"),
			wantStatus: http.StatusForbidden,
			wantCode:   "PermissionDenied",
		},
		{
			name:       "not found",
			err:        apperrors.New(apperrors.CodeGroupNotFound, "group not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "NotFound",
		},
		{
			name:       "precondition",
			err:        apperrors.New(apperrors.CodeDrawNotStarted, "draw has not started"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FailedPrecondition",
		},
		{
			name:       "internal masked",
			err:        apperrors.New(apperrors.CodeSelfAssignmentDetected, "stored assignment points at giver"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "Internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := New(&fakeService{
				reveal: func(context.Context, domain.RevealInput) (string, error) {
					return "", tc.err
				},
			}, testSecret)

			rec := httptest.NewRecorder()
			api.Handler().ServeHTTP(rec, authedRequest(t, http.MethodPost,
				"/v1/groups/g1:reveal", "alice", `{"participantId":"alice"}`))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body errorResponse
			decodeBody(t, rec, &body)
			if body.Code != tc.wantCode {
				t.Fatalf("error code = %q, want %q", body.Code, tc.wantCode)
			}
			if tc.wantCode == "Internal" && strings.Contains(body.Message, "giver") {
				t.Fatalf("internal detail leaked to client: %q", body.Message)
			}
		})
	}
}

func TestAPIPullRequiresBody(t *testing.T) {
	t.Parallel()

	api := New(&fakeService{}, testSecret)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, authedRequest(t, http.MethodPost, "/v1/groups/g1:pull", "alice", "{not json"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body errorResponse
	decodeBody(t, rec, &body)
	if body.Code != "InvalidArgument" {
		t.Fatalf("error code = %q, want %q", body.Code, "InvalidArgument")
	}
}

func TestDecodeJSONReportsBodyCode(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var target participantRequest
	err := decodeJSON(req, &target)
	if !apperrors.IsCode(err, apperrors.CodeRequestBodyInvalid) {
		t.Fatalf("decodeJSON() error = %v, want code %s", err, apperrors.CodeRequestBodyInvalid)
	}
}
