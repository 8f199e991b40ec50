package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openmorph/metamorph/internal/app"
	"github.com/openmorph/metamorph/internal/domain"
)

// ReadingPusher feeds readings into a manual oracle source. Nil when
// an external oracle is configured instead.
type ReadingPusher interface {
	Push(reading domain.WeatherReading) (string, error)
}

// TokenResponse is the API representation of a token.
type TokenResponse struct {
	ID        int64  `json:"id" doc:"Unique token identifier"`
	Owner     string `json:"owner" doc:"Current holder"`
	Stage     string `json:"stage" doc:"Current growth stage"`
	CreatedAt string `json:"created_at" doc:"Mint timestamp (ISO 8601)"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTokenResponse(t domain.Token) TokenResponse {
	return TokenResponse{
		ID:        t.ID,
		Owner:     t.Owner,
		Stage:     t.Stage.Name(),
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// CollectionResponse is the API representation of the collection-wide
// clock and budget.
type CollectionResponse struct {
	LastTriggerAt   string `json:"last_trigger_at" doc:"Timestamp of the last committed advance (ISO 8601)"`
	IntervalSeconds int64  `json:"interval_seconds" doc:"Minimum seconds between advances"`
	UpdateCount     int    `json:"update_count" doc:"Data-driven advances committed since the last reset"`
	MaxUpdates      int    `json:"max_updates" doc:"Update budget cap (0 = unlimited)"`
	LatestRequestID string `json:"latest_request_id,omitempty" doc:"Last consumed oracle request id"`
}

func toCollectionResponse(st domain.CollectionState) CollectionResponse {
	return CollectionResponse{
		LastTriggerAt:   st.LastTriggerAt.Format("2006-01-02T15:04:05Z"),
		IntervalSeconds: int64(st.Interval.Seconds()),
		UpdateCount:     st.UpdateCount,
		MaxUpdates:      st.MaxUpdates,
		LatestRequestID: st.LatestRequestID,
	}
}

// --- Mint ---

type MintTokenInput struct {
	AdminKey string `header:"X-Admin-Key" doc:"Administrator key"`
	Body     struct {
		Owner string `json:"owner" minLength:"1" maxLength:"255" doc:"Initial holder"`
	}
}

type MintTokenOutput struct {
	Body TokenResponse
}

// --- Get / List ---

type GetTokenInput struct {
	ID int64 `path:"id" doc:"Token ID"`
}

type GetTokenOutput struct {
	Body TokenResponse
}

type ListTokensInput struct {
	Stage  string `query:"stage" required:"false" doc:"Filter by stage name"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTokensOutput struct {
	Body []TokenResponse
}

// --- Metadata ---

type TokenMetadataInput struct {
	ID int64 `path:"id" doc:"Token ID"`
}

type TokenMetadataOutput struct {
	Body struct {
		Descriptor string `json:"descriptor" doc:"Base64 JSON data URI"`
	}
}

// --- Collection state ---

type CollectionStateOutput struct {
	Body CollectionResponse
}

// --- Upkeep ---

type CheckUpkeepInput struct {
	Body struct {
		TokenID int64 `json:"token_id" minimum:"1" doc:"Token to evaluate"`
	}
}

type CheckUpkeepOutput struct {
	Body struct {
		Eligible bool            `json:"eligible" doc:"Whether the token may advance now"`
		Payload  json.RawMessage `json:"payload,omitempty" doc:"Opaque trigger payload; submit verbatim to perform"`
	}
}

type PerformUpkeepInput struct {
	Body struct {
		Payload json.RawMessage `json:"payload" doc:"Opaque trigger payload from a prior check"`
	}
}

type PerformUpkeepOutput struct {
	Body struct {
		Committed bool `json:"committed" doc:"Whether the advance was committed; false means the payload was stale"`
	}
}

// --- Budget reset ---

type ResetBudgetInput struct {
	AdminKey string `header:"X-Admin-Key" doc:"Administrator key"`
}

type ResetBudgetOutput struct {
	Body CollectionResponse
}

// --- Oracle reading push ---

// ReadingRequest is the push-route body. Only the timestamp is
// mandatory; everything else defaults to zero.
type ReadingRequest struct {
	Timestamp         int64   `json:"timestamp" minimum:"1" doc:"Observation time (unix seconds)"`
	PrecipitationType string  `json:"precipitation_type,omitempty" doc:"rain, snow, sleet, drizzle, hail, or empty"`
	Precipitation1H   float64 `json:"precipitation_1h,omitempty" doc:"Precipitation over the last hour (mm)"`
	Precipitation24H  float64 `json:"precipitation_24h,omitempty" doc:"Precipitation over the last day (mm)"`
	PressureHPa       int     `json:"pressure_hpa,omitempty" doc:"Barometric pressure (hPa)"`
	TemperatureC      int     `json:"temperature_c,omitempty" doc:"Temperature (Celsius)"`
	WindKPH           float64 `json:"wind_kph,omitempty" doc:"Wind speed (km/h)"`
	HumidityPct       int     `json:"humidity_pct,omitempty" doc:"Relative humidity (percent)"`
	UVIndex           int     `json:"uv_index,omitempty" doc:"UV index"`
	Icon              string  `json:"icon,omitempty" doc:"Icon hint for the renderer"`
}

func (r ReadingRequest) toDomain() domain.WeatherReading {
	return domain.WeatherReading{
		Timestamp:         r.Timestamp,
		PrecipitationType: r.PrecipitationType,
		Precipitation1H:   r.Precipitation1H,
		Precipitation24H:  r.Precipitation24H,
		PressureHPa:       r.PressureHPa,
		TemperatureC:      r.TemperatureC,
		WindKPH:           r.WindKPH,
		HumidityPct:       r.HumidityPct,
		UVIndex:           r.UVIndex,
		Icon:              r.Icon,
	}
}

type PushReadingInput struct {
	AdminKey string `header:"X-Admin-Key" doc:"Administrator key"`
	Body     ReadingRequest
}

type PushReadingOutput struct {
	Body struct {
		RequestID string `json:"request_id" doc:"Request id assigned to the stored reading"`
	}
}

// Register adds all API routes to the Huma API. pusher may be nil when
// readings come from an external oracle.
func Register(api huma.API, svc *app.TokenService, auth domain.Authorizer, pusher ReadingPusher) {
	huma.Register(api, huma.Operation{
		OperationID: "mint-token",
		Method:      http.MethodPost,
		Path:        "/api/v1/tokens",
		Summary:     "Mint a new token",
		Tags:        []string{"Tokens"},
	}, func(ctx context.Context, input *MintTokenInput) (*MintTokenOutput, error) {
		token, err := svc.Mint(ctx, input.AdminKey, input.Body.Owner)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MintTokenOutput{Body: toTokenResponse(token)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-token",
		Method:      http.MethodGet,
		Path:        "/api/v1/tokens/{id}",
		Summary:     "Get a token by ID",
		Tags:        []string{"Tokens"},
	}, func(ctx context.Context, input *GetTokenInput) (*GetTokenOutput, error) {
		token, err := svc.GetToken(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTokenOutput{Body: toTokenResponse(token)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tokens",
		Method:      http.MethodGet,
		Path:        "/api/v1/tokens",
		Summary:     "List tokens",
		Tags:        []string{"Tokens"},
	}, func(ctx context.Context, input *ListTokensInput) (*ListTokensOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Stage != "" {
			stage, ok := domain.StageFromName(input.Stage)
			if !ok {
				return nil, huma.Error422UnprocessableEntity("unknown stage " + input.Stage)
			}
			filter.Stage = &stage
		}

		tokens, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TokenResponse, len(tokens))
		for i, t := range tokens {
			resp[i] = toTokenResponse(t)
		}
		return &ListTokensOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-token-metadata",
		Method:      http.MethodGet,
		Path:        "/api/v1/tokens/{id}/metadata",
		Summary:     "Get a token's synthesized metadata descriptor",
		Tags:        []string{"Tokens"},
	}, func(ctx context.Context, input *TokenMetadataInput) (*TokenMetadataOutput, error) {
		descriptor, err := svc.TokenMetadata(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &TokenMetadataOutput{}
		out.Body.Descriptor = descriptor
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-collection-state",
		Method:      http.MethodGet,
		Path:        "/api/v1/collection",
		Summary:     "Get collection-wide clock and budget state",
		Tags:        []string{"Collection"},
	}, func(ctx context.Context, _ *struct{}) (*CollectionStateOutput, error) {
		st, err := svc.CollectionState(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CollectionStateOutput{Body: toCollectionResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-upkeep",
		Method:      http.MethodPost,
		Path:        "/api/v1/upkeep/check",
		Summary:     "Evaluate a token's advance eligibility",
		Tags:        []string{"Upkeep"},
	}, func(ctx context.Context, input *CheckUpkeepInput) (*CheckUpkeepOutput, error) {
		eligible, payload, err := svc.CheckUpkeep(ctx, input.Body.TokenID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CheckUpkeepOutput{}
		out.Body.Eligible = eligible
		out.Body.Payload = payload
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "perform-upkeep",
		Method:      http.MethodPost,
		Path:        "/api/v1/upkeep/perform",
		Summary:     "Submit a trigger payload for execution",
		Tags:        []string{"Upkeep"},
	}, func(ctx context.Context, input *PerformUpkeepInput) (*PerformUpkeepOutput, error) {
		committed, err := svc.PerformUpkeep(ctx, input.Body.Payload)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &PerformUpkeepOutput{}
		out.Body.Committed = committed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-update-budget",
		Method:      http.MethodPost,
		Path:        "/api/v1/collection/budget/reset",
		Summary:     "Reset the data-driven update budget",
		Tags:        []string{"Collection"},
	}, func(ctx context.Context, input *ResetBudgetInput) (*ResetBudgetOutput, error) {
		if err := svc.ResetBudget(ctx, input.AdminKey); err != nil {
			return nil, toHumaError(err)
		}
		st, err := svc.CollectionState(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ResetBudgetOutput{Body: toCollectionResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "push-oracle-reading",
		Method:      http.MethodPost,
		Path:        "/api/v1/oracle/readings",
		Summary:     "Push a weather reading into the manual oracle source",
		Tags:        []string{"Oracle"},
	}, func(ctx context.Context, input *PushReadingInput) (*PushReadingOutput, error) {
		if err := auth.Authorize(ctx, input.AdminKey, "oracle.push"); err != nil {
			return nil, toHumaError(err)
		}
		if pusher == nil {
			return nil, huma.Error409Conflict("no manual oracle source configured")
		}

		requestID, err := pusher.Push(input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &PushReadingOutput{}
		out.Body.RequestID = requestID
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTokenNotFound) {
		return huma.Error404NotFound("token not found")
	}

	var authErr *domain.UnauthorizedError
	if errors.As(err, &authErr) {
		return huma.Error401Unauthorized(authErr.Error())
	}

	var trErr *domain.InvalidTransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var decErr *domain.DecodeError
	if errors.As(err, &decErr) {
		return huma.Error422UnprocessableEntity(decErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
