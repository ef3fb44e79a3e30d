package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/logger"
	"apotekpos/backend/internal/metrics"
	"apotekpos/backend/internal/service"
	"apotekpos/backend/internal/store"
)

// msgBatchExpired is the body returned when an update touches an expired
// batch. The batch is already gone by the time this reaches the client.
const msgBatchExpired = "Batch expired. Batch deleted and product quantity updated"

type API struct {
	service        *service.Service
	allowedOrigins []string
	alertDays      int
}

func New(svc *service.Service, allowedOrigins []string, alertDays int) *API {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if alertDays < 1 {
		alertDays = 30
	}
	return &API{
		service:        svc,
		allowedOrigins: allowedOrigins,
		alertDays:      alertDays,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(observe)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/product", func(r chi.Router) {
		r.Get("/", a.handleProductList)
		r.Post("/add", a.handleProductCreate)
		r.Put("/update/{productId}", a.handleProductUpdate)
		r.Delete("/delete/{productId}", a.handleProductDelete)

		r.Get("/batch", a.handleBatchList)
		r.Get("/batchById/{batchId}", a.handleBatchGet)
		r.Post("/batch/add/{productId}", a.handleBatchAdd)
		r.Put("/batch/update/{batchId}", a.handleBatchUpdate)
		r.Delete("/batch/delete/{batchId}", a.handleBatchDelete)

		r.Get("/stock/{productId}", a.handleProductStock)
		r.Get("/expiryAlerts", a.handleExpiryAlerts)

		r.Get("/{productId}", a.handleProductGet)
	})

	r.Post("/processOrder", a.handleProcessOrder)
	r.Get("/allSales", a.handleAllSales)
	r.Get("/sales/{saleId}/items", a.handleSaleItems)

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		next.ServeHTTP(w, r)
	})
}

// observe records request metrics against the chi route pattern so that path
// parameters do not blow up label cardinality.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		status := strconv.Itoa(ww.Status())
		elapsed := time.Since(startedAt)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern, status).Observe(elapsed.Seconds())
		logger.Get().Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", elapsed.String(),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleProductList(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductGet(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "productId"), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "productId")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Product deleted"})
}

func (a *API) handleBatchList(w http.ResponseWriter, r *http.Request) {
	batches, err := a.service.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.GetBatch(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (a *API) handleBatchAdd(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batch, err := a.service.AddBatch(r.Context(), chi.URLParam(r, "productId"), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
}

func (a *API) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batch, err := a.service.UpdateBatch(r.Context(), chi.URLParam(r, "batchId"), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrBatchExpired):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": msgBatchExpired})
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusBadRequest, errors.New("batch not found"))
		case errors.Is(err, store.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (a *API) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteBatch(r.Context(), chi.URLParam(r, "batchId")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, errors.New("batch not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Batch deleted and product quantity updated"})
}

func (a *API) handleProductStock(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.GetProductStock(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	days := a.alertDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("days must be a positive integer"))
			return
		}
		days = parsed
	}

	report, err := a.service.ExpiryAlerts(r.Context(), days)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProcessOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.service.ProcessOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInsufficientStock):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleAllSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(sales) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"sales": []domain.Sale{}, "message": "No sales found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSaleItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListSaleItems(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the detail goes to the log instead of the
	// client.
	msg := err.Error()
	if status >= 500 {
		logger.Get().Errorw("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
