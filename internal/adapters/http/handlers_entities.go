package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := decodeBody(r, &order); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	created, err := h.service.CreateOrder(r.Context(), actorFromRequest(r), order)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusCreated, created)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "order_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, order)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "order_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid order id")
		return
	}

	var order domain.Order
	if err := decodeBody(r, &order); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	order.ID = id

	updated, err := h.service.UpdateOrder(r.Context(), actorFromRequest(r), order)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "order_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid order id")
		return
	}

	if err := h.service.DeleteOrder(r.Context(), actorFromRequest(r), id); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "order deleted")
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if err := decodeBody(r, &customer); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	created, err := h.service.CreateCustomer(r.Context(), actorFromRequest(r), customer)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusCreated, created)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "customer_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid customer id")
		return
	}

	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "customer_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid customer id")
		return
	}

	var customer domain.Customer
	if err := decodeBody(r, &customer); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	customer.ID = id

	updated, err := h.service.UpdateCustomer(r.Context(), actorFromRequest(r), customer)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "customer_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid customer id")
		return
	}

	if err := h.service.DeleteCustomer(r.Context(), actorFromRequest(r), id); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "customer deleted")
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if err := decodeBody(r, &product); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	created, err := h.service.CreateProduct(r.Context(), actorFromRequest(r), product)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusCreated, created)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid product id")
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid product id")
		return
	}

	var product domain.Product
	if err := decodeBody(r, &product); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	product.ID = id

	updated, err := h.service.UpdateProduct(r.Context(), actorFromRequest(r), product)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid product id")
		return
	}

	if err := h.service.DeleteProduct(r.Context(), actorFromRequest(r), id); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "product deleted")
}
