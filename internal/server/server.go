package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"oppline/internal/domain"
	"oppline/internal/engine"
	"oppline/internal/engine/auth"
	"oppline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// BaseContext, when set, stops the webhook dispatcher on cancellation.
	BaseContext context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"change status to submitted: timeline is required for submission"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"errors\":[\"timeline is required for submission\"]}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Oppline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request problems are 400 bad_request; 422 is
			// reserved for business rule failures.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Oppline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerOpportunities(group, cfg.Engine)
	registerLifecycle(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerAttachments(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	startWebhookDispatcher(baseCtx, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"errors": ve.Errors})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "version_conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{}
	for _, p := range []string{path.Join(basePath, "health"), path.Join(basePath, "auth/dev/login")} {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		openPaths[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Oppline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status-counts",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Opportunity counts by status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusCountsResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		counts, err := e.Repo.CountByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusCountsResponse `json:"body"`
		}{Body: StatusCountsResponse{Counts: counts}}, nil
	})
}

func registerOpportunities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-opportunity",
		Method:        http.MethodPost,
		Path:          "/opportunities",
		Summary:       "Create opportunity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOpportunityRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		salesManagerID := input.Body.SalesManagerID
		if salesManagerID == "" {
			salesManagerID = actor.ID
		}
		o, err := e.Create(ctx, engine.CreateOptions{
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			CustomerID:     input.Body.CustomerID,
			SalesManagerID: salesManagerID,
			ARRCents:       input.Body.ARRCents,
			Priority:       input.Body.Priority,
			Actor:          actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-opportunities",
		Method:      http.MethodGet,
		Path:        "/opportunities",
		Summary:     "List opportunities",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status         string `query:"status" enum:"draft,submitted,matching_in_progress,matches_found,architect_selected,completed,cancelled"`
		Priority       string `query:"priority" enum:"low,medium,high,critical"`
		CustomerID     string `query:"customer_id"`
		SalesManagerID string `query:"sales_manager_id"`
		Query          string `query:"q"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body paginatedOpportunities `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListOpportunities(ctx, repo.OpportunityFilters{
			Status:          input.Status,
			Priority:        input.Priority,
			CustomerID:      input.CustomerID,
			SalesManagerID:  input.SalesManagerID,
			Query:           input.Query,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedOpportunities{Items: []OpportunityResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = mapOpportunities(items)
		return &struct {
			Body paginatedOpportunities `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-opportunity",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}",
		Summary:     "Get opportunity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.GetOpportunity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-opportunity",
		Method:      http.MethodPatch,
		Path:        "/opportunities/{id}",
		Summary:     "Update opportunity fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body UpdateOpportunityRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateBasicInfo(ctx, engine.UpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ARRCents:    input.Body.ARRCents,
			Priority:    input.Body.Priority,
			Notes:       input.Body.Notes,
			Reason:      input.Body.Reason,
			Actor:       actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-problem-statement",
		Method:      http.MethodPut,
		Path:        "/opportunities/{id}/problem-statement",
		Summary:     "Set problem statement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body ProblemStatementRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SetProblemStatement(ctx, input.ID, domain.ProblemStatement{
			Title:                 input.Body.Title,
			Description:           input.Body.Description,
			BusinessImpact:        input.Body.BusinessImpact,
			TechnicalRequirements: input.Body.TechnicalRequirements,
			SuccessCriteria:       input.Body.SuccessCriteria,
			Constraints:           input.Body.Constraints,
		}, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-timeline",
		Method:      http.MethodPut,
		Path:        "/opportunities/{id}/timeline",
		Summary:     "Set timeline",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body TimelineRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tl, err := domain.NewTimelineSpecification(input.Body.StartDate, input.Body.EndDate, input.Body.DurationDays, input.Body.Flexibility, input.Body.SpecificDays)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.SetTimeline(ctx, input.ID, tl, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-skill",
		Method:        http.MethodPost,
		Path:          "/opportunities/{id}/skills",
		Summary:       "Add skill requirement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SkillRequirementRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		skill, err := domain.NewSkillRequirement(input.Body.Name, input.Body.Category, input.Body.Importance, input.Body.Proficiency)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.AddSkill(ctx, input.ID, skill, actor, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-skill",
		Method:      http.MethodDelete,
		Path:        "/opportunities/{id}/skills/{category}/{name}",
		Summary:     "Remove skill requirement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Category string `path:"category" enum:"technical,soft,industry"`
		Name     string `path:"name"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RemoveSkill(ctx, input.ID, input.Name, input.Category, actor, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clone-opportunity",
		Method:        http.MethodPost,
		Path:          "/opportunities/{id}/clone",
		Summary:       "Clone opportunity into a new draft",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body CloneRequest `json:"body"`
	}) (*struct {
		Body OpportunityResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Clone(ctx, input.ID, input.Body.Title, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OpportunityResponse `json:"body"`
		}{Body: opportunityResponse(o)}, nil
	})
}

func registerLifecycle(api huma.API, e engine.Engine) {
	type idPath struct {
		ID string `path:"id"`
	}
	type opportunityOut struct {
		Body OpportunityResponse `json:"body"`
	}
	lifecycleErrors := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
	}

	huma.Register(api, huma.Operation{
		OperationID: "submit-opportunity",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/submit",
		Summary:     "Submit for matching",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *idPath) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Submit(ctx, input.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-status",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/status",
		Summary:     "Change status (matching pipeline)",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ChangeStatusRequest `json:"body"`
	}) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target, err := domain.ParseStatus(input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.ChangeStatus(ctx, input.ID, target, actor, input.Body.Reason, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-opportunity",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/cancel",
		Summary:     "Cancel opportunity",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body CancelRequest `json:"body"`
	}) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Cancel(ctx, input.ID, input.Body.Reason, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-opportunity",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/reactivate",
		Summary:     "Reactivate cancelled opportunity",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body ReactivateRequest `json:"body"`
	}) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Reactivate(ctx, input.ID, input.Body.Reason, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "select-architect",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/select-architect",
		Summary:     "Select architect",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body SelectArchitectRequest `json:"body"`
	}) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SelectArchitect(ctx, input.ID, input.Body.ArchitectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-opportunity",
		Method:      http.MethodPost,
		Path:        "/opportunities/{id}/complete",
		Summary:     "Complete opportunity",
		Errors:      lifecycleErrors,
	}, func(ctx context.Context, input *idPath) (*opportunityOut, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Complete(ctx, input.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &opportunityOut{Body: opportunityResponse(o)}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-status-history",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/history",
		Summary:     "Status transition history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []StatusHistoryResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetOpportunity(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStatusHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]StatusHistoryResponse, 0, len(items))
		for _, h := range items {
			out = append(out, historyResponse(h))
		}
		return &struct {
			Body []StatusHistoryResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-change-records",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/changes",
		Summary:     "Field change audit",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Field  string `query:"field"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedChangeRecords `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetOpportunity(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.ListChangeRecords(ctx, repo.ChangeRecordFilters{
			OpportunityID: input.ID,
			Field:         input.Field,
			Limit:         limit + 1,
			CursorID:      cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedChangeRecords{Items: []ChangeRecordResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, c := range items {
			resp.Items = append(resp.Items, changeRecordResponse(c))
		}
		return &struct {
			Body paginatedChangeRecords `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAttachments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/opportunities/{id}/attachments",
		Summary:       "Add attachment metadata",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AddAttachmentRequest `json:"body"`
	}) (*struct {
		Body AttachmentResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAttachment(ctx, engine.AttachmentOptions{
			OpportunityID: input.ID,
			FileName:      input.Body.FileName,
			FileType:      input.Body.FileType,
			FileSize:      input.Body.FileSize,
			URL:           input.Body.URL,
			Actor:         actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttachmentResponse `json:"body"`
		}{Body: attachmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attachments",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}/attachments",
		Summary:     "List attachments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID             string `path:"id"`
		IncludeRemoved bool   `query:"include_removed"`
	}) (*struct {
		Body []AttachmentResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetOpportunity(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAttachments(ctx, input.ID, input.IncludeRemoved)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]AttachmentResponse, 0, len(items))
		for _, a := range items {
			out = append(out, attachmentResponse(a))
		}
		return &struct {
			Body []AttachmentResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-attachment",
		Method:      http.MethodDelete,
		Path:        "/opportunities/{id}/attachments/{attachment_id}",
		Summary:     "Remove attachment",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID           string `path:"id"`
		AttachmentID string `path:"attachment_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveAttachment(ctx, input.ID, input.AttachmentID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type          string `query:"type"`
		OpportunityID string `query:"opportunity_id"`
		Limit         int    `query:"limit" default:"50"`
		Cursor        string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.OpportunityID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Roles:   nonNilSlice(principal.Roles),
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
