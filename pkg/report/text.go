// pkg/report/text.go
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/David-Botos/retail-bi/pkg/model"
)

const maxReportIndices = 20

// WriteText renders the human-readable defect report
func WriteText(w io.Writer, ps *model.ProblemSet) error {
	var b strings.Builder

	b.WriteString("REPORTE DE ANÁLISIS DE COLUMNAS PROBLEMÁTICAS\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Fecha de generación: %s\n", ps.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total columnas problemáticas: %d\n", len(ps.Defects))
	fmt.Fprintf(&b, "Total filas problemáticas: %d\n\n", len(ps.Rows))

	if m := ps.Load; m != nil {
		b.WriteString("INFORMACIÓN DE CARGA DEL ARCHIVO:\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		fmt.Fprintf(&b, "Archivo: %s\n", m.FileName)
		fmt.Fprintf(&b, "Tipo: %s\n", m.FileType)
		fmt.Fprintf(&b, "Método de carga: %s\n", m.Method)
		if m.FileType == model.FileTypeExcel {
			fmt.Fprintf(&b, "Fila de encabezados detectada: %d\n", m.DetectedHeaderRow)
			fmt.Fprintf(&b, "Fila de encabezados final: %d\n", m.FinalHeaderRow)
		}
		fmt.Fprintf(&b, "Dimensiones: %s\n", m.Shape)
		if len(m.Anomalies) > 0 {
			b.WriteString("Problemas detectados en carga:\n")
			for _, a := range m.Anomalies {
				fmt.Fprintf(&b, "  - %s\n", a)
			}
		}
		b.WriteString("\n")
	}

	for _, d := range ps.Defects {
		fmt.Fprintf(&b, "\nCOLUMNA: %s\n", d.Column)
		b.WriteString(strings.Repeat("-", 40) + "\n")
		fmt.Fprintf(&b, "Tipo: %s\n", d.Type.Label())
		fmt.Fprintf(&b, "Valores problemáticos: %d\n", d.Count)
		fmt.Fprintf(&b, "Porcentaje: %.2f%%\n", d.Percentage)

		b.WriteString("\nEstadísticas:\n")
		fmt.Fprintf(&b, "  total_registros: %d\n", d.Stats.TotalRows)
		fmt.Fprintf(&b, "  valores_nulos: %d\n", d.Stats.NullCount)
		fmt.Fprintf(&b, "  valores_vacios: %d\n", d.Stats.BlankCount)
		fmt.Fprintf(&b, "  valores_unicos_totales: %d\n", d.Stats.DistinctCount)

		b.WriteString("\nValores problemáticos únicos:\n")
		for _, f := range d.Frequencies {
			fmt.Fprintf(&b, "  '%s': %d\n", f.Value, f.Count)
		}

		fmt.Fprintf(&b, "\nÍndices problemáticos (primeros %d):\n", maxReportIndices)
		fmt.Fprintf(&b, "  %s\n", formatIndices(d.Indices, maxReportIndices))
		b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatIndices(indices []int, limit int) string {
	if len(indices) > limit {
		indices = indices[:limit]
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprint(idx)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
