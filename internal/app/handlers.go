package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// validationError writes the per-field failures of a rejected edit
func validationError(w http.ResponseWriter, verr *invoice.ValidationError) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]any{
		"error":  verr.Error(),
		"fields": verr.Fields,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeAttachment sends binary artifact data as a file download
func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(data)
}

// handleListInvoices returns all entries in upload order
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	entries := s.service.List()
	if entries == nil {
		entries = []invoice.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleUpload accepts one invoice file and enqueues it for extraction
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// 50MB to handle high-resolution phone photos
	const maxFormSize = int64(50 << 20)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	// The uploader sends the file's last-modified timestamp (unix
	// milliseconds); it is half of the duplicate-detection identity.
	lastModified, err := strconv.ParseInt(r.FormValue("last_modified"), 10, 64)
	if err != nil {
		jsonError(w, "last_modified must be a unix-millisecond timestamp", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	entry, err := s.service.Upload(header.Filename, lastModified, data, contentType)
	if err != nil {
		slog.Error("Error accepting upload", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// handleGetInvoice returns a single entry
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.service.Get(id)
	if !ok {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleUpdateRecord replaces the extracted record of a succeeded entry
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var rec invoice.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := s.service.UpdateRecord(id, rec)
	if err != nil {
		var verr *invoice.ValidationError
		if errors.As(err, &verr) {
			validationError(w, verr)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleReenqueue retries a settled entry as a new one
func (s *Server) handleReenqueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.service.Reenqueue(id)
	if err != nil {
		if errors.Is(err, invoice.ErrNoOriginalBytes) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleClear removes every entry
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.service.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleReportsPDF downloads the summary plus per-invoice report bundle
func (s *Server) handleReportsPDF(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.service.CombinedReportPDF(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/pdf", data)
}

// handleOriginalsPDF downloads the merged source documents
func (s *Server) handleOriginalsPDF(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.service.MergedOriginalsPDF(r.Context())
	if err != nil {
		if errors.Is(err, invoice.ErrNoOriginalBytes) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/pdf", data)
}

// handleCompletePDF downloads the full filing bundle
func (s *Server) handleCompletePDF(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.service.CombineAllPDF(r.Context())
	if err != nil {
		if errors.Is(err, invoice.ErrNoOriginalBytes) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/pdf", data)
}

// handleListPeriods returns the declaration groups
func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Periods())
}

// handlePDVXML downloads the PDV declaration for one period
func (s *Server) handlePDVXML(w http.ResponseWriter, r *http.Request) {
	periodKey := r.PathValue("period")
	filename, data, err := s.service.PDVXML(periodKey, r.URL.Query().Get("vat"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/xml", data)
}

// handlePDVSXML downloads the PDV-S declaration for one period
func (s *Server) handlePDVSXML(w http.ResponseWriter, r *http.Request) {
	periodKey := r.PathValue("period")
	filename, data, err := s.service.PDVSXML(periodKey, r.URL.Query().Get("vat"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/xml", data)
}

// handlePaymentSlip downloads the VAT payment slip for one period
func (s *Server) handlePaymentSlip(w http.ResponseWriter, r *http.Request) {
	periodKey := r.PathValue("period")
	filename, data, err := s.service.PaymentSlipPDF(periodKey, r.URL.Query().Get("vat"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeAttachment(w, filename, "application/pdf", data)
}

// handlePaymentPayload returns the raw fixed-field payment payload as text
func (s *Server) handlePaymentPayload(w http.ResponseWriter, r *http.Request) {
	periodKey := r.PathValue("period")
	payload, err := s.service.PaymentPayload(periodKey, r.URL.Query().Get("vat"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(payload))
}
