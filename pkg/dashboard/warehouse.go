// pkg/dashboard/warehouse.go
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the format of dates exchanged with the dashboard
const DateLayout = "2006-01-02"

// Inventory statuses, from empty shelves to slow movers
const (
	StatusOutOfStock = "Sin Stock"
	StatusStagnant   = "Inventario Estancado"
	StatusAtRisk     = "Riesgo de Quiebre"
	StatusFast       = "Alta Rotación"
	StatusSlow       = "Lenta Rotación"
	StatusHealthy    = "Rotación Saludable"
)

// AllCategories selects every category in warehouse queries
const AllCategories = "all"

// ErrInvalidRange is returned when a trend range ends before it starts
var ErrInvalidRange = errors.New("end date is before start date")

// SaleLine is one row of the sales fact table
type SaleLine struct {
	ProductCode string  `db:"codigo_producto"`
	Quantity    float64 `db:"cantidad"`
}

// Product is one row of the product dimension
type Product struct {
	ProductCode string  `db:"codigo_producto"`
	Name        *string `db:"nombre_del_producto"`
	Category    *string `db:"categoria"`
}

// StockLine is the latest stock of a product with its units sold over the
// 30 days up to its last sale
type StockLine struct {
	ProductCode string  `db:"codigo_producto"`
	Name        string  `db:"nombre_del_producto"`
	Category    string  `db:"categoria"`
	Stock       float64 `db:"stock_actual"`
	Units30d    float64 `db:"unidades_vendidas_30d"`
}

// DailyUnits is the number of units sold on one day
type DailyUnits struct {
	Day   time.Time `db:"fecha_venta"`
	Units float64   `db:"total_unidades"`
}

// Warehouse runs the dashboard queries against the sales warehouse
type Warehouse interface {
	Sales(ctx context.Context) ([]SaleLine, error)
	Products(ctx context.Context) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	// Inventory filters by category unless it is empty
	Inventory(ctx context.Context, category string) ([]StockLine, error)
	// SalesDateRange reports ok=false when there are no sales
	SalesDateRange(ctx context.Context) (first, last time.Time, ok bool, err error)
	DailySales(ctx context.Context, start, end time.Time) ([]DailyUnits, error)
}

// TopProduct is a product ranked by units sold
type TopProduct struct {
	ProductCode string  `json:"codigo_producto"`
	Name        string  `json:"nombre_del_producto"`
	TotalUnits  float64 `json:"total_unidades"`
}

// SalesAnalysis is the product ranking of the sales panel
type SalesAnalysis struct {
	TopProducts []TopProduct `json:"top_products_by_quantity"`
}

// InventoryItem is a product with its days-of-inventory status
type InventoryItem struct {
	Name     string  `json:"nombre_del_producto"`
	Stock    float64 `json:"stock_actual"`
	Units30d float64 `json:"unidades_vendidas_30d"`
	Status   string  `json:"estado"`
	Category string  `json:"categoria"`
	// DaysOfInventory is +Inf without sales
	DaysOfInventory float64 `json:"-"`
}

// HealthKPIs are the headline figures of the inventory health report
type HealthKPIs struct {
	RiskProducts      int     `json:"risk_products_count"`
	StagnantProducts  int     `json:"stagnant_products_count"`
	HealthyPercentage float64 `json:"healthy_percentage"`
}

// InventoryHealth is the consolidated inventory report
type InventoryHealth struct {
	KPIs         HealthKPIs      `json:"kpis"`
	Distribution map[string]int  `json:"distribution"`
	Inventory    []InventoryItem `json:"inventory_data"`
}

// DateRange is the span of recorded sales
type DateRange struct {
	Min string `json:"min_date"`
	Max string `json:"max_date"`
}

// TrendPoint is the units sold on one day
type TrendPoint struct {
	Date  string  `json:"fecha"`
	Units float64 `json:"unidades"`
}

// WarehouseService computes the dashboard panels from warehouse queries
type WarehouseService struct {
	wh     Warehouse
	logger *zap.Logger
}

// NewWarehouseService creates a service over wh
func NewWarehouseService(wh Warehouse, logger *zap.Logger) *WarehouseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarehouseService{wh: wh, logger: logger.Named("warehouse")}
}

// SalesAnalysis ranks products by units sold. Sales and products are joined
// in memory on the product code; sales without a named product are dropped.
func (s *WarehouseService) SalesAnalysis(ctx context.Context, category string, topN int) (*SalesAnalysis, error) {
	sales, err := s.wh.Sales(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	products, err := s.wh.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	result := &SalesAnalysis{TopProducts: []TopProduct{}}
	if len(sales) == 0 || len(products) == 0 {
		s.logger.Warn("Sales or product table is empty",
			zap.Int("sales", len(sales)),
			zap.Int("products", len(products)))
		return result, nil
	}

	catalog := make(map[string]Product, len(products))
	for _, p := range products {
		code := strings.TrimSpace(p.ProductCode)
		if _, dup := catalog[code]; !dup {
			catalog[code] = p
		}
	}

	filter := category != "" && !strings.EqualFold(category, AllCategories)

	type key struct{ code, name string }
	totals := make(map[key]float64)
	for _, line := range sales {
		p, ok := catalog[strings.TrimSpace(line.ProductCode)]
		if !ok || p.Name == nil {
			continue
		}
		if filter && (p.Category == nil || *p.Category != category) {
			continue
		}
		q := line.Quantity
		if math.IsNaN(q) {
			q = 0
		}
		totals[key{code: strings.TrimSpace(line.ProductCode), name: *p.Name}] += q
	}

	for k, units := range totals {
		result.TopProducts = append(result.TopProducts, TopProduct{
			ProductCode: k.code,
			Name:        k.name,
			TotalUnits:  units,
		})
	}
	sort.Slice(result.TopProducts, func(i, j int) bool {
		a, b := result.TopProducts[i], result.TopProducts[j]
		if a.TotalUnits != b.TotalUnits {
			return a.TotalUnits > b.TotalUnits
		}
		return a.ProductCode < b.ProductCode
	})
	if topN >= 0 && topN < len(result.TopProducts) {
		result.TopProducts = result.TopProducts[:topN]
	}
	return result, nil
}

// Categories returns the product categories
func (s *WarehouseService) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.wh.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

// InventoryAnalysis classifies every product by its days of inventory
func (s *WarehouseService) InventoryAnalysis(ctx context.Context, category string) ([]InventoryItem, error) {
	if strings.EqualFold(category, AllCategories) {
		category = ""
	}
	lines, err := s.wh.Inventory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}

	items := make([]InventoryItem, len(lines))
	for i, l := range lines {
		doi := DaysOfInventory(l.Stock, l.Units30d)
		items[i] = InventoryItem{
			Name:            l.Name,
			Stock:           l.Stock,
			Units30d:        l.Units30d,
			Status:          InventoryStatus(l.Stock, l.Units30d, doi),
			Category:        l.Category,
			DaysOfInventory: doi,
		}
	}
	return items, nil
}

// InventoryHealth summarizes the inventory of every category
func (s *WarehouseService) InventoryHealth(ctx context.Context) (*InventoryHealth, error) {
	items, err := s.InventoryAnalysis(ctx, "")
	if err != nil {
		return nil, err
	}

	report := &InventoryHealth{
		Distribution: make(map[string]int),
		Inventory:    items,
	}
	if len(items) == 0 {
		return report, nil
	}

	healthy := 0
	for _, item := range items {
		report.Distribution[item.Status]++
		switch item.Status {
		case StatusAtRisk:
			report.KPIs.RiskProducts++
		case StatusStagnant:
			report.KPIs.StagnantProducts++
		case StatusHealthy, StatusFast:
			healthy++
		}
	}
	report.KPIs.HealthyPercentage = float64(healthy) / float64(len(items)) * 100
	return report, nil
}

// SalesDateRange returns the first and last sale dates, or nil without sales
func (s *WarehouseService) SalesDateRange(ctx context.Context) (*DateRange, error) {
	first, last, ok, err := s.wh.SalesDateRange(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales date range: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &DateRange{Min: first.Format(DateLayout), Max: last.Format(DateLayout)}, nil
}

// SalesTrend returns the units sold per day over [start, end]. Days without
// sales are reported with zero units.
func (s *WarehouseService) SalesTrend(ctx context.Context, start, end time.Time) ([]TrendPoint, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	daily, err := s.wh.DailySales(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales trend: %w", err)
	}

	units := make(map[string]float64, len(daily))
	for _, d := range daily {
		units[d.Day.Format(DateLayout)] += d.Units
	}

	var points []TrendPoint
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		label := day.Format(DateLayout)
		points = append(points, TrendPoint{Date: label, Units: units[label]})
	}
	return points, nil
}

// DaysOfInventory is the stock divided by the average daily sales of the
// last 30 days, +Inf without sales
func DaysOfInventory(stock, units30d float64) float64 {
	daily := units30d / 30
	if daily > 0 {
		return stock / daily
	}
	return math.Inf(1)
}

// InventoryStatus classifies a product by stock, recent sales and days of
// inventory
func InventoryStatus(stock, units30d, doi float64) string {
	switch {
	case stock <= 0:
		return StatusOutOfStock
	case units30d == 0:
		return StatusStagnant
	case doi <= 7:
		return StatusAtRisk
	case doi <= 30:
		return StatusFast
	case doi > 90:
		return StatusSlow
	default:
		return StatusHealthy
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
