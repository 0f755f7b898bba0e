package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/ingest"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/svcctx"
)

// maxUploadMemory bounds the in-memory part of multipart parsing; larger
// parts spill to temp files.
const maxUploadMemory = 64 << 20

// UploadDocumentEndpoint handles POST /api/documents with a multipart PDF.
type UploadDocumentEndpoint struct{}

var _ api.Endpoint = (*UploadDocumentEndpoint)(nil)

func (e *UploadDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents", e.handler
}

func (e *UploadDocumentEndpoint) RequiresInit() bool { return true }

func (e *UploadDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Upload a PDF
//	@Description	Store a PDF, extract its text per page and render page images
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"PDF to ingest"
//	@Success		201		{object}	ingest.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents [post]
func (e *UploadDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename))
		return
	}

	layout := svcctx.LayoutFrom(r.Context())
	result, err := layout.Ingest(r.Context(), fh.Filename, file)
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("ingest failed", "filename", fh.Filename, "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (e *UploadDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload and ingest a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(getServerURL())
			var resp ingest.Result
			part := api.FilePart{Field: "file", Filename: filepath.Base(args[0]), Content: f}
			if err := client.PostMultipart(cmd.Context(), "/api/documents", nil, part, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetDocumentEndpoint handles GET /api/documents/{document_id}.
type GetDocumentEndpoint struct{}

var _ api.Endpoint = (*GetDocumentEndpoint)(nil)

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{document_id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

func (e *GetDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Get document
//	@Tags			documents
//	@Produce		json
//	@Param			document_id	path		string	true	"Document ID"
//	@Success		200			{object}	pagestore.Document
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/documents/{document_id} [get]
func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("document_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	doc, err := svcctx.LayoutFrom(r.Context()).Document(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Get a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var doc pagestore.Document
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0], &doc); err != nil {
				return err
			}
			return api.Output(doc)
		},
	}
}
