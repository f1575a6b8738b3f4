// pkg/server/errors.go
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func abortError(c *gin.Context, status int, title, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: title, Message: message})
}

func abortInternal(c *gin.Context) {
	abortError(c, http.StatusInternalServerError, "Error interno del servidor", "Ocurrió un problema inesperado.")
}

func badRequest(c *gin.Context, message string) {
	abortError(c, http.StatusBadRequest, "Solicitud incorrecta", message)
}

func notFound(c *gin.Context) {
	abortError(c, http.StatusNotFound, "Recurso no encontrado", "La URL solicitada no existe.")
}

func methodNotAllowed(c *gin.Context) {
	abortError(c, http.StatusMethodNotAllowed, "Método no permitido",
		"El método de la solicitud no está permitido para esta URL.")
}
