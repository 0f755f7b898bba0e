package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/layoutsvc"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/reclassify"
	"github.com/jackzampolin/relayout/internal/types"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reclassify.ErrInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, pagestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, layoutsvc.ErrPrecondition),
		errors.Is(err, layoutsvc.ErrDetectionFailed),
		errors.Is(err, types.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.Is(err, detector.ErrBadResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status it maps to.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// pageKeyFromPath reads {document_id} and {page_num} path values.
func pageKeyFromPath(r *http.Request) (types.PageKey, error) {
	return parsePageKey(r.PathValue("document_id"), r.PathValue("page_num"))
}

func parsePageKey(docID, page string) (types.PageKey, error) {
	if docID == "" {
		return types.PageKey{}, errors.New("document_id is required")
	}
	n, err := strconv.Atoi(page)
	if err != nil || n < 1 {
		return types.PageKey{}, errors.New("page number must be a positive integer")
	}
	return types.PageKey{DocumentID: docID, Page: n}, nil
}

func validatePageKey(key types.PageKey) error {
	if key.DocumentID == "" {
		return errors.New("document_id is required")
	}
	if key.Page < 1 {
		return errors.New("page_number must be a positive integer")
	}
	return nil
}
