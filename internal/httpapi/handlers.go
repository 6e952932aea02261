package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"automatpos/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"), nil)
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err, nil)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, product)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListLowStock(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) handleCheckBarcode(w http.ResponseWriter, r *http.Request) {
	check, err := a.service.CheckBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, check)
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req domain.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := a.service.ProcessScan(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.CreateSession(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, session)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.GetSession(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleSessionActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	activity, err := a.service.ListSessionActivity(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, activity)
}

func (a *API) handleAddSessionItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req domain.AddSessionItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.AddSessionItem(r.Context(), id, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleRemoveSessionItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.RemoveSessionItem(r.Context(), id, itemID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.TouchSession(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.InterruptSession(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleRecover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recovered, err := a.service.RecoverSession(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, recovered)
}

func (a *API) handleMerge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req domain.MergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.MergeSessions(r.Context(), id, req.SourceSessionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleSplit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req domain.SplitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := a.service.SplitSession(r.Context(), id, req.ItemIDs)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (a *API) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	session, err := a.service.TransferSession(r.Context(), id, req.FromUserID, req.ToUserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (a *API) handleFinalizeSale(w http.ResponseWriter, r *http.Request) {
	var req domain.FinalizeSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.FinalizeSale(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, resp)
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	analytics, err := a.service.GetSalesAnalytics(r.Context(), domain.AnalyticsQuery{
		Period: q.Get("period"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, analytics)
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.CleanupExpiredSessions(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
