package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/scrypster/mlkg/internal/query"
	"github.com/scrypster/mlkg/internal/sparql"
)

// maxBodyBytes bounds request bodies on every POST route.
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// EntityResponse is the body of GET /api/entities/{name}.
type EntityResponse struct {
	Name       string      `json:"name"`
	Properties []query.Row `json:"properties"`
	Relations  []query.Row `json:"relations"`
}

// RelatedResponse is the body of GET /api/entities/{name}/related.
type RelatedResponse struct {
	Name     string      `json:"name"`
	Relation string      `json:"relation,omitempty"`
	Related  []query.Row `json:"related"`
}

type apiHandlers struct {
	svc *query.Service
}

// Ask answers one natural-language question. GET takes it from ?q=.
func (h *apiHandlers) Ask(w http.ResponseWriter, r *http.Request) {
	var question string
	switch r.Method {
	case http.MethodGet:
		question = r.URL.Query().Get("q")
	case http.MethodPost:
		var req AskRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		question = req.Question
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	if strings.TrimSpace(question) == "" {
		respondError(w, http.StatusBadRequest, "question is required", nil)
		return
	}
	respondJSON(w, http.StatusOK, h.svc.Ask(r.Context(), question))
}

// SPARQL implements the query operation of the SPARQL 1.1 protocol: GET with
// ?query=, POST form-encoded, or POST with an application/sparql-query body.
func (h *apiHandlers) SPARQL(w http.ResponseWriter, r *http.Request) {
	q, err := sparqlQuery(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query request", err)
		return
	}
	if q == "" {
		respondError(w, http.StatusBadRequest, "query is required", nil)
		return
	}

	res, err := h.svc.SPARQL(r.Context(), q)
	if err != nil {
		if errors.Is(err, sparql.ErrSyntax) {
			respondError(w, http.StatusBadRequest, "malformed query", err)
			return
		}
		log.Printf("server: sparql query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "query failed", err)
		return
	}

	w.Header().Set("Content-Type", sparql.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if err := sparql.WriteJSON(w, res); err != nil {
		log.Printf("server: failed to encode sparql results: %v", err)
	}
}

func sparqlQuery(w http.ResponseWriter, r *http.Request) (string, error) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), nil
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/sparql-query" {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(body)), nil
		}
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.PostForm.Get("query"), nil
	default:
		return "", errors.New("method must be GET or POST")
	}
}

// Stats reports triple, entity and relation counts.
func (h *apiHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		log.Printf("server: failed to compute stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Entity serves /api/entities/{name} and /api/entities/{name}/related.
func (h *apiHandlers) Entity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/entities/"), "/")
	name, sub, _ := strings.Cut(rest, "/")
	if name == "" {
		respondError(w, http.StatusBadRequest, "entity name is required", nil)
		return
	}

	explorer := h.svc.Explorer()
	switch sub {
	case "":
		props, err := explorer.EntityInfo(r.Context(), name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "entity lookup failed", err)
			return
		}
		if len(props) == 0 {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		rels, err := explorer.EntityRelations(r.Context(), name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "entity lookup failed", err)
			return
		}
		respondJSON(w, http.StatusOK, EntityResponse{Name: name, Properties: props, Relations: nonNil(rels)})
	case "related":
		relation := r.URL.Query().Get("relation")
		related, err := explorer.RelatedEntities(r.Context(), name, relation)
		if errors.Is(err, query.ErrUnknownRelation) {
			respondError(w, http.StatusBadRequest, "unknown relation", err)
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "entity lookup failed", err)
			return
		}
		respondJSON(w, http.StatusOK, RelatedResponse{Name: name, Relation: relation, Related: nonNil(related)})
	default:
		http.NotFound(w, r)
	}
}

func nonNil(rows []query.Row) []query.Row {
	if rows == nil {
		return []query.Row{}
	}
	return rows
}

// respondJSON writes data as JSON with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("server: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
