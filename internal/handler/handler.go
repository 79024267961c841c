// Package handler exposes the register checkout API over HTTP.
package handler

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

// Handler serves the catalog, customer, report and register endpoints.
type Handler struct {
	catalog   product.Catalog
	customers customer.Directory
	reports   checkout.SalesReporter
	registers *Registers
	security  *Security
	now       func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	catalog product.Catalog,
	customers customer.Directory,
	reports checkout.SalesReporter,
	registers *Registers,
	security *Security,
) *Handler {
	return &Handler{
		catalog:   catalog,
		customers: customers,
		reports:   reports,
		registers: registers,
		security:  security,
		now:       time.Now,
	}
}

// Routes returns the API router mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(h.security.Middleware)

		r.Get("/products", h.searchProducts)
		r.Get("/products/{sku}", h.lookupProduct)
		r.Get("/customers", h.searchCustomers)
		r.Get("/countries", h.listCountries)
		r.With(Require(staff.CapViewReports)).Get("/reports/daily", h.dailyReport)

		r.Route("/registers/{registerID}", func(r chi.Router) {
			r.Use(Require(staff.CapCheckout))

			r.Post("/session", h.openSession)
			r.Get("/session", h.getSession)
			r.Patch("/session", h.setFlags)
			r.Delete("/session", h.closeSession)

			r.Post("/items", h.addItem)
			r.Patch("/items/{sku}", h.editItem)
			r.Delete("/items/{sku}", h.removeItem)

			r.Put("/discount", h.setDiscount)
			r.Delete("/discount", h.clearDiscount)
			r.Put("/tax", h.setTax)
			r.Put("/segment", h.setSegment)
			r.Put("/customer", h.selectCustomer)
			r.Delete("/customer", h.clearCustomer)
			r.Put("/buyer", h.saveBuyerDraft)

			r.Post("/complete", h.complete)
			r.Post("/buyer", h.submitBuyer)
			r.Post("/payment-method", h.selectPaymentMethod)
			r.Post("/receipt", h.dispatchReceipt)
			r.Post("/cancel", h.cancel)
		})
	})
	return r
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookupProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Lookup(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) searchCustomers(w http.ResponseWriter, r *http.Request) {
	found, err := h.customers.Search(r.Context(), r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]customerResponse, len(found))
	for i, c := range found {
		resp[i] = toCustomerResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// listCountries returns the region codes accepted for buyer phone numbers.
func (h *Handler) listCountries(w http.ResponseWriter, _ *http.Request) {
	codes := checkout.Countries()
	slices.Sort(codes)
	writeJSON(w, http.StatusOK, codes)
}

func (h *Handler) dailyReport(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, r, badRequest("date must be YYYY-MM-DD"))
			return
		}
		day = d
	}

	sum, err := h.reports.DailySummary(r.Context(), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Date:    day.Format(time.DateOnly),
		Sales:   sum.Sales,
		Revenue: money(sum.Revenue),
		Paid:    money(sum.Paid),
		Pending: money(sum.Pending),
	})
}

// queryLimit parses ?limit=; the repositories clamp and default it.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
