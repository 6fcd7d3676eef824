package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/parsers"
	"github.com/username/taxfolio/portfolio/src/security/validation"
	"github.com/username/taxfolio/portfolio/src/services"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// TransactionHandler serves the import, listing and deletion endpoints.
type TransactionHandler struct {
	portfolioService services.PortfolioService
	maxImportSize    int64
}

func NewTransactionHandler(service services.PortfolioService, maxImportSize int64) *TransactionHandler {
	return &TransactionHandler{
		portfolioService: service,
		maxImportSize:    maxImportSize,
	}
}

func (h *TransactionHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var txs []models.Transaction
	if !h.decodeImport(w, r, userID, &txs) {
		return
	}

	log := logger.FromContext(r.Context())
	log.Info("Processing transaction import", "rows", len(txs))
	result, err := h.portfolioService.ImportTransactions(userID, txs)
	if err != nil {
		sendServiceError(w, r, "importing transactions", err)
		return
	}
	log.Info("Transaction import finished", "importID", result.ImportID, "inserted", result.Inserted, "duplicates", result.Duplicates)
	sendJSON(w, http.StatusCreated, result)
}

// HandleUploadStatement imports a broker statement sent as multipart form
// field "file". The broker is named by the "source" form value.
func (h *TransactionHandler) HandleUploadStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if h.maxImportSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxImportSize)
	}
	if err := r.ParseMultipartForm(h.maxImportSize); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", h.maxImportSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d bytes)", h.maxImportSize), http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	if source == "" {
		utils.SendJSONError(w, fmt.Sprintf("Missing 'source' field. Supported sources: %s", strings.Join(parsers.SupportedSources(), ", ")), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateStatementContentType(fileHeader.Header.Get("Content-Type")); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detected, err := validation.ValidateStatementContent(file)
	if err != nil {
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.FromContext(r.Context()).Info("Processing statement upload", "source", source, "filename", fileHeader.Filename, "detectedType", detected)
	result, err := h.portfolioService.ImportStatement(userID, source, file)
	if err != nil {
		sendServiceError(w, r, "processing the statement", err)
		return
	}
	sendJSON(w, http.StatusCreated, result)
}

func (h *TransactionHandler) HandleImportSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var snapshots []models.PortfolioSnapshot
	if !h.decodeImport(w, r, userID, &snapshots) {
		return
	}

	logger.FromContext(r.Context()).Info("Processing snapshot import", "rows", len(snapshots))
	result, err := h.portfolioService.ImportSnapshots(userID, snapshots)
	if err != nil {
		sendServiceError(w, r, "importing snapshots", err)
		return
	}
	sendJSON(w, http.StatusCreated, result)
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetTransactions")

	txs, err := h.portfolioService.GetTransactions(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving transactions", err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	utils.SendJSONWithETag(w, r, txs)
}

func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Deleting all user data")

	if err := h.portfolioService.DeleteAllUserData(userID); err != nil {
		sendServiceError(w, r, "deleting user data", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeImport checks the declared content type and decodes a size-capped
// JSON array into dst. It writes the error response and returns false on failure.
func (h *TransactionHandler) decodeImport(w http.ResponseWriter, r *http.Request, userID int64, dst interface{}) bool {
	contentType := r.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(contentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return false
	}

	if h.maxImportSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxImportSize)
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.L.Warn("Import body too large", "userID", userID, "limit", maxErr.Limit)
			utils.SendJSONError(w, fmt.Sprintf("Import too large (max %d bytes)", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		logger.L.Warn("Failed to decode import body", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Invalid JSON body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}
