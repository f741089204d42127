// Package http exposes the exchange service as a callable JSON API.
//
// Routes follow resource-name verbs: POST /v1/groups/{group}:start,
// :pull and :reveal. Callers authenticate with a bearer token; the
// subject claim is the caller identity passed to the domain layer.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.einride.tech/aip/resourcename"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/kringleapp/kringle/internal/errors"
	"github.com/kringleapp/kringle/internal/services/exchange/domain"
)

// ExchangeService is the domain surface the transport depends on.
type ExchangeService interface {
	StartDraw(ctx context.Context, input domain.StartDrawInput) (domain.StartDrawResult, error)
	PullAssignment(ctx context.Context, input domain.PullAssignmentInput) (string, error)
	Reveal(ctx context.Context, input domain.RevealInput) (string, error)
}

// API routes callable exchange operations over HTTP.
type API struct {
	router    *mux.Router
	service   ExchangeService
	jwtSecret []byte
}

// New builds the exchange HTTP API around service, verifying bearer
// tokens against jwtSecret.
func New(service ExchangeService, jwtSecret []byte) *API {
	api := &API{
		router:    mux.NewRouter(),
		service:   service,
		jwtSecret: jwtSecret,
	}
	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	protected := a.router.PathPrefix("/v1").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/groups/{group:[^/:]+}:start", a.handleStartDraw).Methods(http.MethodPost)
	protected.HandleFunc("/groups/{group:[^/:]+}:pull", a.handlePullAssignment).Methods(http.MethodPost)
	protected.HandleFunc("/groups/{group:[^/:]+}:reveal", a.handleReveal).Methods(http.MethodPost)
}

// Handler returns the routed handler with CORS applied.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) groupName(r *http.Request) (string, error) {
	name := "groups/" + mux.Vars(r)["group"]
	var groupID string
	if err := resourcename.Sscan(name, "groups/{group}", &groupID); err != nil {
		return "", apperrors.Wrap(apperrors.CodeGroupIDRequired, "invalid group resource name", err)
	}
	return groupID, nil
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
}

type startDrawResponse struct {
	MemberCount int            `json:"memberCount"`
	Edges       []edgeResponse `json:"edges"`
}

type edgeResponse struct {
	GiverID     string `json:"giverId"`
	RecipientID string `json:"recipientId"`
}

type assignmentResponse struct {
	AssignedToUserID string `json:"assignedToUserId"`
}

func (a *API) handleStartDraw(w http.ResponseWriter, r *http.Request) {
	groupID, err := a.groupName(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.service.StartDraw(r.Context(), domain.StartDrawInput{
		GroupID:  groupID,
		CallerID: callerID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	edges := make([]edgeResponse, 0, len(result.Edges))
	for _, edge := range result.Edges {
		edges = append(edges, edgeResponse{GiverID: edge.GiverID, RecipientID: edge.RecipientID})
	}
	writeJSON(w, http.StatusOK, startDrawResponse{
		MemberCount: result.MemberCount,
		Edges:       edges,
	})
}

func (a *API) handlePullAssignment(w http.ResponseWriter, r *http.Request) {
	groupID, err := a.groupName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	recipientID, err := a.service.PullAssignment(r.Context(), domain.PullAssignmentInput{
		GroupID:       groupID,
		ParticipantID: req.ParticipantID,
		CallerID:      callerID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{AssignedToUserID: recipientID})
}

func (a *API) handleReveal(w http.ResponseWriter, r *http.Request) {
	groupID, err := a.groupName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	recipientID, err := a.service.Reveal(r.Context(), domain.RevealInput{
		GroupID:       groupID,
		ParticipantID: req.ParticipantID,
		CallerID:      callerID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{AssignedToUserID: recipientID})
}

func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.CodeRequestBodyInvalid, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(apperrors.HandleError(err))
	if st.Code() == codes.Internal {
		log.Printf("exchange request failed error=%v", err)
	}
	writeJSON(w, httpStatusFromCode(st.Code()), errorResponse{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Aborted:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response error=%v", err)
	}
}
