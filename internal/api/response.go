package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

// Envelope — единый конверт ответа.
// Success=true несёт Data, success=false — Message.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// JSON отправляет JSON-ответ.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Fail отправляет ответ об ошибке.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, message)
}

// Unauthorized отправляет ошибку 401.
func Unauthorized(w http.ResponseWriter) {
	Fail(w, http.StatusUnauthorized, "unauthorized")
}

// Conflict отправляет ошибку 409.
func Conflict(w http.ResponseWriter, message string) {
	Fail(w, http.StatusConflict, message)
}

// InternalError логирует ошибку и отправляет 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Fail(w, http.StatusInternalServerError, "internal server error")
}

// HandleRepoError преобразует ошибку репозитория в HTTP-ответ.
// Возвращает true, если ошибка была и ответ отправлен.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, repo.ErrNotFound) {
		NotFound(w, notFoundMsg)
		return true
	}

	if errors.Is(err, repo.ErrInvalidState) {
		Fail(w, http.StatusUnprocessableEntity, err.Error())
		return true
	}

	InternalError(w, logger, err)
	return true
}
