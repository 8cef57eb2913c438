package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/api"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/query"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
)

// IdempotencyKeyHeader 建立交易時的去重 header
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyBytes 請求 body 上限
const maxBodyBytes = 1 << 20

// errBadRequest 請求格式錯誤 (JSON / query string)，對應 400
var errBadRequest = errors.New("bad request")

type Handler struct {
	core   *usecase.CoreUseCase
	logger *logging.Logger
}

func NewHandler(core *usecase.CoreUseCase, logger *logging.Logger) *Handler {
	return &Handler{
		core:   core,
		logger: logger,
	}
}

// NewRouter 建立路由；metrics 為 nil 時不掛 /metrics
func NewRouter(core *usecase.CoreUseCase, logger *logging.Logger, metrics http.Handler) *mux.Router {
	h := NewHandler(core, logger)

	r := mux.NewRouter()
	r.Use(AccessLogMiddleware(logger))

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", h.EditTransaction).Methods(http.MethodPut)
	r.HandleFunc("/transactions/{id}", h.DeleteTransaction).Methods(http.MethodDelete)
	r.HandleFunc("/accounts", h.ListAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods(http.MethodGet)
	r.HandleFunc("/journal", h.Journal).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	fields, err := h.decodeFields(w, r, h.core.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	tx, err := h.core.CreateTransaction(r.Context(), fields, key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/transactions/"+tx.ID.String())
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	fields, err := h.decodeFields(w, r, time.Time{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	tx, err := h.core.EditTransaction(r.Context(), id, fields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tx, err := h.core.DeleteTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tx, err := h.core.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.core.ListTransactions(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.core.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ListAccountsResponse{Accounts: accounts})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.core.GetAccount(r.Context(), domain.AccountID(mux.Vars(r)["id"]))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.core.Journal(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// decodeFields 未帶日期時使用 now，now 為零值則交由 Ledger 沿用原日期
func (h *Handler) decodeFields(w http.ResponseWriter, r *http.Request, now time.Time) (domain.TransactionFields, error) {
	var req api.TransactionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return domain.TransactionFields{}, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return req.ToFields(now, h.core.Location())
}

func transactionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid transaction id", errBadRequest)
	}
	return id, nil
}

// parseParams 解析 GET /transactions 的 query string
func (h *Handler) parseParams(r *http.Request) (query.Params, error) {
	q := r.URL.Query()
	p := query.Params{
		Search:    q.Get("search"),
		AccountID: domain.AccountID(q.Get("account")),
		Category:  q.Get("category"),
	}

	if raw := q.Get("type"); raw != "" {
		t, err := domain.ParseTransactionType(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		p.Type = t
	}

	sort, err := query.ParseSortOrder(q.Get("sort"))
	if err != nil {
		return p, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	p.Sort = sort

	loc := h.core.Location()
	if p.Start, err = dateParam(q.Get("start"), "start", loc); err != nil {
		return p, err
	}
	if p.End, err = dateParam(q.Get("end"), "end", loc); err != nil {
		return p, err
	}

	for name, dst := range map[string]*int{"page": &p.Page, "pageSize": &p.PageSize} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
		}
		*dst = n
	}
	return p, nil
}

// dateParam 空字串回傳零值 (不過濾)
func dateParam(raw, name string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := api.ParseDate(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s date %q", errBadRequest, name, raw)
	}
	return d, nil
}

// writeError 依錯誤類型決定狀態碼
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := api.ErrorResponse{Error: err.Error()}
	var status int
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		resp.Field = verr.Field
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrLockContention), errors.Is(err, domain.ErrTransactionAlreadyProcessed):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
