package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ha1tch/socnet/pkg/models"
	"github.com/ha1tch/socnet/pkg/validation"
)

// multipartMemory is how much of a form is held in memory before spilling
// file parts to disk
const multipartMemory = 32 << 20

// handleListDatasets lists all datasets, newest first
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.datasets.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	s.writeJSON(w, http.StatusOK, datasets)
}

// handleDatasetExists answers whether a dataset name is taken
func (s *Server) handleDatasetExists(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}

	exists, err := s.datasets.NameExists(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, models.ExistsResponse{Name: name, Exists: exists})
}

// handleCreateDataset ingests an uploaded edge list as a new dataset
func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload too large (max: %d bytes)", s.config.MaxUploadSize))
			return
		}
		s.writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := validation.UploadRequest{Name: r.FormValue("name")}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Reported by the validator as an empty file
	case err != nil:
		s.writeError(w, http.StatusBadRequest, "Invalid file upload")
		return
	default:
		defer file.Close()
		req.FileName = header.Filename
		req.Size = header.Size
	}

	req, err = s.validator.ValidateUpload(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read upload")
		s.writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	created, err := s.datasets.Create(r.Context(), req.Name, content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, created)
}

// handleStatistics returns the statistics of one dataset
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}

	stats, err := s.datasets.Statistics(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// handleDeleteDataset removes a dataset with its users and friendships
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}

	if err := s.datasets.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, models.SuccessResponse{
		Message: fmt.Sprintf("Dataset with id %d deleted successfully", id),
	})
}

// datasetID parses the {id} URL parameter, writing a 400 when invalid
func (s *Server) datasetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid dataset ID")
		return 0, false
	}
	return id, true
}
