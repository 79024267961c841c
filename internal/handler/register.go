package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

// registerContext tags the request logger with the register and returns
// the authenticated operator.
func registerContext(r *http.Request) (context.Context, string, *staff.Member) {
	id := chi.URLParam(r, "registerID")
	m, _ := MemberFromContext(r.Context())
	ctx := zctx.Base(r.Context(), zctx.From(r.Context()).With(zap.String("register", id)))
	return ctx, id, m
}

// withSession runs fn against the operator's open session on the register
// and answers with the resulting session view.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, o *checkout.Orchestrator) error) {
	ctx, id, m := registerContext(r)
	o, err := h.registers.Get(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := fn(ctx, o); err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(o.View()))
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req flagsRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	ctx, id, m := registerContext(r)
	o, err := h.registers.Open(ctx, id, m)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	if err := applyFlags(o, req); err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(o.View()))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(context.Context, *checkout.Orchestrator) error { return nil })
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	ctx, id, m := registerContext(r)
	if err := h.registers.Close(ctx, id, m); err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setFlags(w http.ResponseWriter, r *http.Request) {
	var req flagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return applyFlags(o, req)
	})
}

func applyFlags(o *checkout.Orchestrator, req flagsRequest) error {
	if req.ScanningMode != nil {
		o.SetScanningMode(*req.ScanningMode)
	}
	if req.Remote != nil {
		return o.SetRemote(*req.Remote)
	}
	return nil
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SKU == "" {
		writeError(w, r, badRequest("sku is required"))
		return
	}

	ctx, id, m := registerContext(r)
	o, err := h.registers.Get(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Lookup(ctx, req.SKU)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := o.AddProductQuantity(*p, max(req.Quantity, 1))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		Outcome:  out.Kind.String(),
		Quantity: out.Quantity,
		Session:  toSessionResponse(o.View()),
	})
}

func (h *Handler) editItem(w http.ResponseWriter, r *http.Request) {
	var req editItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if (req.Delta == nil) == (req.Quantity == nil) {
		writeError(w, r, badRequest("set exactly one of delta or quantity"))
		return
	}

	_, id, m := registerContext(r)
	o, err := h.registers.Get(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sku := chi.URLParam(r, "sku")
	var out checkout.Outcome
	if req.Delta != nil {
		out, err = o.ChangeQuantity(sku, *req.Delta)
	} else {
		out, err = o.SetQuantity(sku, *req.Quantity)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		Outcome:  out.Kind.String(),
		Quantity: out.Quantity,
		Session:  toSessionResponse(o.View()),
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.RemoveItem(chi.URLParam(r, "sku"))
	})
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	_, id, m := registerContext(r)
	o, err := h.registers.Get(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	changed, err := o.SetDiscount(req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, discountChangeResponse{
		Changed: changed,
		Session: toSessionResponse(o.View()),
	})
}

func (h *Handler) clearDiscount(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.ClearDiscount()
	})
}

func (h *Handler) setTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		rate := o.View().Cart.TaxRate
		if req.Rate != nil {
			rate = *req.Rate
		}
		return o.SetTax(req.Enabled, rate)
	})
}

func (h *Handler) setSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.SetSegment(req.Segment)
	})
}

func (h *Handler) selectCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CustomerID == "" {
		writeError(w, r, badRequest("customer_id is required"))
		return
	}
	h.withSession(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		c, err := h.customers.Get(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		return o.SelectCustomer(c)
	})
}

func (h *Handler) clearCustomer(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.SelectCustomer(nil)
	})
}

func (h *Handler) saveBuyerDraft(w http.ResponseWriter, r *http.Request) {
	var req buyerBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.SetBuyerDetails(req.details())
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		_, err := o.Complete(ctx)
		return err
	})
}

func (h *Handler) submitBuyer(w http.ResponseWriter, r *http.Request) {
	var req buyerBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		_, err := o.SubmitBuyerDetails(ctx, req.details())
		return err
	})
}

func (h *Handler) selectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		_, err := o.SelectPaymentMethod(ctx, req.Method)
		return err
	})
}

func (h *Handler) dispatchReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, id, m := registerContext(r)
	o, err := h.registers.Get(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	done, err := o.DispatchReceipt(ctx, checkout.ReceiptRequest{Choice: req.Choice, Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}

	warnings := make([]warningResponse, 0, len(done.Warnings))
	for _, werr := range done.Warnings {
		warn := warningResponse{Message: werr.Error()}
		if n, ok := werr.(*checkout.NotificationError); ok {
			warn.Channel = n.Channel
		}
		warnings = append(warnings, warn)
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Sale:          toSaleResponse(done.Sale),
		Warnings:      warnings,
		NextQuotation: done.NextQuotation,
		Session:       toSessionResponse(o.View()),
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.Cancel(ctx)
	})
}
