// pkg/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/David-Botos/retail-bi/pkg/dashboard"
)

// DefaultLimit is the ranking size when the request gives none
const DefaultLimit = 10

// intQuery reads an integer parameter; missing or malformed values fall back
// to def
func intQuery(c *gin.Context, name string, def int) int {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Status())
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.store.Reload(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Fallo al recargar.",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Datos recargados.",
		"info":    s.store.Status(),
	})
}

func (s *Server) handleCategorias(c *gin.Context) {
	cats, err := s.store.Categories()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Datos no disponibles."})
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleTopProductos(c *gin.Context) {
	categoria := c.Query("categoria")
	if categoria == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Parámetro 'categoria' es requerido."})
		return
	}
	limite := intQuery(c, "limite", DefaultLimit)

	top, err := s.store.TopProducts(categoria, limite)
	switch {
	case errors.Is(err, dashboard.ErrNotLoaded):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Datos no disponibles."})
	case errors.Is(err, dashboard.ErrCategoryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("Categoría '%s' no encontrada.", categoria)})
	case err != nil:
		_ = c.Error(err)
		abortInternal(c)
	default:
		c.JSON(http.StatusOK, top)
	}
}

func (s *Server) handleSalesAnalysis(c *gin.Context) {
	data, err := s.warehouse.SalesAnalysis(c.Request.Context(), c.Query("category"), intQuery(c, "top_n", DefaultLimit))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "No se pudieron obtener los datos"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleCategories(c *gin.Context) {
	cats, err := s.warehouse.Categories(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		abortInternal(c)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleInventoryAnalysis(c *gin.Context) {
	items, err := s.warehouse.InventoryAnalysis(c.Request.Context(), c.Query("category"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "No se pudieron obtener los datos de inventario"})
		return
	}
	if items == nil {
		items = []dashboard.InventoryItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleInventoryHealth(c *gin.Context) {
	report, err := s.warehouse.InventoryHealth(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "No se pudo generar el informe"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSalesDateRange(c *gin.Context) {
	rng, err := s.warehouse.SalesDateRange(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "No se pudo obtener el rango de fechas"})
		return
	}
	if rng == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No hay ventas registradas."})
		return
	}
	c.JSON(http.StatusOK, rng)
}

func (s *Server) handleSalesTrend(c *gin.Context) {
	start, errStart := time.Parse(dashboard.DateLayout, c.Query("start"))
	end, errEnd := time.Parse(dashboard.DateLayout, c.Query("end"))
	if errStart != nil || errEnd != nil {
		badRequest(c, "Los parámetros 'start' y 'end' deben tener el formato AAAA-MM-DD.")
		return
	}

	points, err := s.warehouse.SalesTrend(c.Request.Context(), start, end)
	switch {
	case errors.Is(err, dashboard.ErrInvalidRange):
		badRequest(c, "La fecha 'end' no puede ser anterior a 'start'.")
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "No se pudo obtener la tendencia de ventas"})
	default:
		c.JSON(http.StatusOK, points)
	}
}
