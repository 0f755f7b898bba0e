package endpoints

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/layoutsvc"
	"github.com/jackzampolin/relayout/internal/svcctx"
	"github.com/jackzampolin/relayout/internal/types"
)

func pagePath(docID, page string) string {
	return fmt.Sprintf("/api/documents/%s/pages/%s", docID, page)
}

// GetPageEndpoint handles GET /api/documents/{document_id}/pages/{page_num}.
type GetPageEndpoint struct{}

var _ api.Endpoint = (*GetPageEndpoint)(nil)

func (e *GetPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{document_id}/pages/{page_num}", e.handler
}

func (e *GetPageEndpoint) RequiresInit() bool { return true }

func (e *GetPageEndpoint) Group() string { return "pages" }

// handler godoc
//
//	@Summary		Get page state
//	@Description	Text, detected regions, comparison and reclassified regions recorded for a page
//	@Tags			pages
//	@Produce		json
//	@Param			document_id	path		string	true	"Document ID"
//	@Param			page_num	path		int		true	"Page number (1-indexed)"
//	@Success		200			{object}	layoutsvc.PageState
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/documents/{document_id}/pages/{page_num} [get]
func (e *GetPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := pageKeyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := svcctx.LayoutFrom(r.Context()).Page(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (e *GetPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id> <page>",
		Short: "Get the recorded state of a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var state layoutsvc.PageState
			if err := client.Get(cmd.Context(), pagePath(args[0], args[1]), &state); err != nil {
				return err
			}
			return api.Output(state)
		},
	}
}

// PageImageEndpoint handles GET /api/documents/{document_id}/pages/{page_num}/image.
type PageImageEndpoint struct{}

var _ api.Endpoint = (*PageImageEndpoint)(nil)

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{document_id}/pages/{page_num}/image", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }

func (e *PageImageEndpoint) Group() string { return "pages" }

// handler godoc
//
//	@Summary		Get page image
//	@Description	The image last used for detection on a page, or the rendered page
//	@Tags			pages
//	@Produce		image/png
//	@Param			document_id	path		string	true	"Document ID"
//	@Param			page_num	path		int		true	"Page number (1-indexed)"
//	@Success		200			{file}		binary
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/documents/{document_id}/pages/{page_num}/image [get]
func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := pageKeyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := svcctx.LayoutFrom(r.Context()).PageImage(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), file)
}

func (e *PageImageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "image <document-id> <page> <output-file>",
		Short: "Download a page image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := os.Create(args[2])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			if err := client.Download(cmd.Context(), pagePath(args[0], args[1])+"/image", out); err != nil {
				out.Close()
				os.Remove(args[2])
				return err
			}
			return out.Close()
		},
	}
}

// RegionsRequest is the body of a regions update.
type RegionsRequest struct {
	Regions []types.Region `json:"regions"`
}

// RegionsResponse reports the stored regions of a page.
type RegionsResponse struct {
	Page    types.PageKey  `json:"page"`
	Regions []types.Region `json:"regions"`
}

// SetRegionsEndpoint handles PUT /api/documents/{document_id}/pages/{page_num}/regions.
type SetRegionsEndpoint struct{}

var _ api.Endpoint = (*SetRegionsEndpoint)(nil)

func (e *SetRegionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/documents/{document_id}/pages/{page_num}/regions", e.handler
}

func (e *SetRegionsEndpoint) RequiresInit() bool { return true }

func (e *SetRegionsEndpoint) Group() string { return "regions" }

// handler godoc
//
//	@Summary		Register detected regions
//	@Description	Store regions produced by an external detector for a page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			document_id	path		string			true	"Document ID"
//	@Param			page_num	path		int				true	"Page number (1-indexed)"
//	@Param			request		body		RegionsRequest	true	"Regions in image pixel coordinates"
//	@Success		200			{object}	RegionsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/documents/{document_id}/pages/{page_num}/regions [put]
func (e *SetRegionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := pageKeyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RegionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := svcctx.LayoutFrom(r.Context()).RegisterRegions(r.Context(), key, req.Regions); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegionsResponse{Page: key, Regions: req.Regions})
}

func (e *SetRegionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <document-id> <page> <regions.json>",
		Short: "Register regions from a JSON file (array of {label, box})",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			var regions []types.Region
			if err := json.Unmarshal(data, &regions); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[2], err)
			}

			client := api.NewClient(getServerURL())
			var resp RegionsResponse
			if err := client.Put(cmd.Context(), pagePath(args[0], args[1])+"/regions", RegionsRequest{Regions: regions}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
