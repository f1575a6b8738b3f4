// pkg/dashboard/filestore.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/David-Botos/retail-bi/pkg/loader"
	"github.com/David-Botos/retail-bi/pkg/model"
)

var (
	// ErrNotLoaded is returned by queries while no dataset is loaded
	ErrNotLoaded = errors.New("no data loaded")
	// ErrCategoryNotFound is returned for a category with no products
	ErrCategoryNotFound = errors.New("category not found")
)

const (
	colCategory = "Categoría"
	colProduct  = "Nombre del Producto"
)

var (
	productColumns  = []string{"Nombre del Producto", "Producto", "Item"}
	quantityColumns = []string{"Cantidad", "Ventas", "Total", "Qty", "Units", "Volume"}
	dataExtensions  = map[string]struct{}{".csv": {}, ".xlsx": {}, ".xls": {}, ".json": {}}
)

// Status describes the currently loaded dataset
type Status struct {
	Loaded     bool
	Error      string
	Products   int
	Categories int
	TotalUnits int64
	SourceFile string
}

// MarshalJSON keeps the response shape the dashboard frontend expects: only
// the flag and the error while nothing is loaded.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Loaded {
		return json.Marshal(struct {
			Loaded bool   `json:"datos_cargados"`
			Error  string `json:"error_carga"`
		}{false, s.Error})
	}
	return json.Marshal(struct {
		Loaded     bool    `json:"datos_cargados"`
		Error      *string `json:"error_carga"`
		Products   int     `json:"total_productos"`
		Categories int     `json:"total_categorias"`
		TotalUnits int64   `json:"total_unidades"`
		SourceFile string  `json:"archivo_origen"`
	}{true, nil, s.Products, s.Categories, s.TotalUnits, s.SourceFile})
}

// ProductTotal is the summed quantity of one product within a category
type ProductTotal struct {
	Category string
	Product  string
	Quantity float64
}

// TopProducts is the ranking of one category
type TopProducts struct {
	Products         []string  `json:"productos"`
	Quantities       []float64 `json:"cantidades"`
	Category         string    `json:"categoria"`
	CategoryProducts int       `json:"total_productos_categoria"`
	CategoryUnits    int64     `json:"total_unidades_categoria"`
}

// Snapshot is an immutable view of one load
type Snapshot struct {
	status     Status
	byCategory map[string][]ProductTotal
	categories []string
}

func failedSnapshot(msg string) *Snapshot {
	return &Snapshot{status: Status{Error: msg}}
}

// FileStore serves aggregated sales from the first usable file of a folder.
// Reloads build a new snapshot and swap it in; readers never block.
type FileStore struct {
	dir    string
	loader *loader.Loader
	logger *zap.Logger

	reloadMu sync.Mutex
	current  atomic.Pointer[Snapshot]
}

// NewFileStore creates a store over dir. Nothing is loaded until Reload.
func NewFileStore(dir string, ld *loader.Loader, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ld == nil {
		ld = loader.NewLoader(loader.DefaultOptions(), logger)
	}
	s := &FileStore{
		dir:    dir,
		loader: ld,
		logger: logger.Named("filestore"),
	}
	s.current.Store(failedSnapshot("No se han cargado datos."))
	return s
}

// Reload scans the data folder and replaces the loaded dataset. On failure
// the store reports the error and serves no data.
func (s *FileStore) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("Reload failed", zap.String("dir", s.dir), zap.Error(err))
		s.current.Store(failedSnapshot(err.Error()))
		return err
	}

	s.current.Store(snap)
	s.logger.Info("Data loaded",
		zap.String("file", snap.status.SourceFile),
		zap.Int("products", snap.status.Products),
		zap.Int("categories", snap.status.Categories),
		zap.Int64("units", snap.status.TotalUnits))
	return nil
}

// Status returns the state of the last load
func (s *FileStore) Status() Status {
	return s.current.Load().status
}

// Categories returns the title-cased category names in order
func (s *FileStore) Categories() ([]string, error) {
	snap := s.current.Load()
	if !snap.status.Loaded {
		return nil, ErrNotLoaded
	}
	return append([]string(nil), snap.categories...), nil
}

// TopProducts ranks the products of a category by quantity. A limit of zero
// or less returns every product.
func (s *FileStore) TopProducts(category string, limit int) (*TopProducts, error) {
	snap := s.current.Load()
	if !snap.status.Loaded {
		return nil, ErrNotLoaded
	}

	products, ok := snap.byCategory[strings.ToLower(category)]
	if !ok || len(products) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}

	top := &TopProducts{
		Category:         titleCase(category),
		CategoryProducts: len(products),
	}
	var units float64
	for _, p := range products {
		units += p.Quantity
	}
	top.CategoryUnits = int64(units)

	n := len(products)
	if limit > 0 && limit < n {
		n = limit
	}
	top.Products = make([]string, n)
	top.Quantities = make([]float64, n)
	for i := 0; i < n; i++ {
		top.Products[i] = products[i].Product
		top.Quantities[i] = products[i].Quantity
	}
	return top, nil
}

func (s *FileStore) load(ctx context.Context) (*Snapshot, error) {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("La carpeta de datos '%s' no existe.", s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := dataExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("No se encontraron archivos de datos válidos en '%s'.", s.dir)
	}

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ds, err := s.readFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("Skipping unreadable data file", zap.String("file", name), zap.Error(err))
			continue
		}

		category, product, quantity, ok := salesColumns(ds)
		if !ok {
			s.logger.Debug("File lacks the sales structure", zap.String("file", name))
			continue
		}
		return buildSnapshot(ds, name, category, product, quantity), nil
	}

	return nil, errors.New("No se encontró un archivo con la estructura requerida (Categoría, Producto, Cantidad).")
}

// readFile loads a data file with its first row as header
func (s *FileStore) readFile(path string) (*model.Dataset, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return readJSONRecords(path)
	}
	src, err := s.loader.Read(path)
	if err != nil {
		return nil, err
	}
	return src.Frame(0)
}

// salesColumns finds the category, product and quantity columns
func salesColumns(ds *model.Dataset) (category, product, quantity string, ok bool) {
	trimmed := make(map[string]string, ds.NumCols())
	var order []string
	for _, col := range ds.Columns() {
		name := strings.TrimSpace(col)
		if _, dup := trimmed[name]; dup {
			continue
		}
		trimmed[name] = col
		order = append(order, name)
	}

	switch {
	case trimmed[colCategory] != "":
		category = trimmed[colCategory]
	case trimmed["Categoria"] != "":
		category = trimmed["Categoria"]
	default:
		return "", "", "", false
	}

	for _, name := range productColumns {
		if col, found := trimmed[name]; found {
			product = col
			break
		}
	}
	if product == "" {
		return "", "", "", false
	}

	for _, base := range quantityColumns {
		for _, variant := range []string{base, strings.ToLower(base), strings.ToUpper(base)} {
			if col, found := trimmed[variant]; found {
				return category, product, col, true
			}
		}
	}
	for _, name := range order {
		col := trimmed[name]
		if col == category || col == product {
			continue
		}
		values, _ := ds.Column(col)
		if isNumericColumn(values) {
			return category, product, col, true
		}
	}
	return "", "", "", false
}

func buildSnapshot(ds *model.Dataset, file, categoryCol, productCol, quantityCol string) *Snapshot {
	categories, _ := ds.Column(categoryCol)
	products, _ := ds.Column(productCol)
	quantities, _ := ds.Column(quantityCol)

	type key struct{ category, product string }
	totals := make(map[key]float64)
	for i := range categories {
		if model.IsNull(categories[i]) || model.IsNull(products[i]) {
			continue
		}
		q := quantityValue(quantities[i])
		if q <= 0 {
			continue
		}
		k := key{
			category: strings.ToLower(strings.TrimSpace(model.Stringify(categories[i]))),
			product:  strings.TrimSpace(model.Stringify(products[i])),
		}
		totals[k] += q
	}

	snap := &Snapshot{byCategory: make(map[string][]ProductTotal)}
	var units float64
	for k, q := range totals {
		snap.byCategory[k.category] = append(snap.byCategory[k.category], ProductTotal{
			Category: k.category,
			Product:  k.product,
			Quantity: q,
		})
		units += q
	}

	titled := make(map[string]struct{}, len(snap.byCategory))
	for cat, list := range snap.byCategory {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Quantity != list[j].Quantity {
				return list[i].Quantity > list[j].Quantity
			}
			return list[i].Product < list[j].Product
		})
		titled[titleCase(cat)] = struct{}{}
	}
	for name := range titled {
		snap.categories = append(snap.categories, name)
	}
	sort.Strings(snap.categories)

	snap.status = Status{
		Loaded:     true,
		Products:   len(totals),
		Categories: len(snap.byCategory),
		TotalUnits: int64(units),
		SourceFile: file,
	}
	return snap
}

// quantityValue coerces a cell to a number; anything unparsable counts as 0
func quantityValue(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0
		}
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

func isNumericColumn(values []interface{}) bool {
	seen := false
	for _, v := range values {
		if model.IsNull(v) {
			continue
		}
		switch val := v.(type) {
		case float64, int64, int:
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
				return false
			}
		default:
			return false
		}
		seen = true
	}
	return seen
}

func titleCase(s string) string {
	return cases.Title(language.Spanish).String(strings.ToLower(s))
}
