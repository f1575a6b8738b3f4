// pkg/model/metadata.go
package model

import "strings"

// FileType is the detected source format
type FileType string

const (
	FileTypeCSV   FileType = "CSV"
	FileTypeExcel FileType = "Excel"
)

// FileTypeForExtension maps a file extension to its source format
func FileTypeForExtension(ext string) (FileType, bool) {
	switch strings.ToLower(ext) {
	case ".csv":
		return FileTypeCSV, true
	case ".xlsx", ".xls":
		return FileTypeExcel, true
	default:
		return "", false
	}
}

// HeaderCandidate is a scored row considered during header detection
type HeaderCandidate struct {
	Row         int
	Score       float64
	Values      []string
	IsCandidate bool
}

// LoadMetadata describes how a source file was read
type LoadMetadata struct {
	FileName          string
	FileType          FileType
	Method            string
	Encoding          string
	Delimiter         string
	DetectedHeaderRow int
	FinalHeaderRow    int
	BestScore         float64
	Anomalies         []string
	Columns           []string
	Shape             Shape
}

// AddAnomaly appends load-time findings
func (m *LoadMetadata) AddAnomaly(msgs ...string) {
	m.Anomalies = append(m.Anomalies, msgs...)
}
