package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"practicelog/internal/importer"
)

// maxImportSize caps uploaded dataset files at 32 MiB.
const maxImportSize = 32 << 20

func (s *Server) handleExportJSON(
	w http.ResponseWriter, r *http.Request,
) {
	ds, err := importer.Export(r.Context(), s.db)
	if err != nil {
		log.Printf("export error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		`attachment; filename="practicelog.json"`)
	if err := json.NewEncoder(w).Encode(ds); err != nil {
		log.Printf("encoding export: %v", err)
	}
}

func (s *Server) handleExportCSV(
	w http.ResponseWriter, r *http.Request,
) {
	ds, err := importer.Export(r.Context(), s.db)
	if err != nil {
		log.Printf("export error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="practicelog.csv"`)
	if err := importer.WriteCSV(w, ds); err != nil {
		log.Printf("writing csv export: %v", err)
	}
}

func (s *Server) handleImport(
	w http.ResponseWriter, r *http.Request,
) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		writeError(w, http.StatusBadRequest, "file must be .json")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	stats, err := importer.Import(s.db, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
