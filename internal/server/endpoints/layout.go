package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/svcctx"
	"github.com/jackzampolin/relayout/internal/types"
)

// maxImageSize bounds page images accepted for detection.
const maxImageSize = 64 << 20

// DetectResponse is the result of layout detection on a page.
type DetectResponse struct {
	Page    types.PageKey  `json:"page"`
	Regions []types.Region `json:"regions"`
}

// DetectEndpoint handles POST /api/detect.
type DetectEndpoint struct{}

var _ api.Endpoint = (*DetectEndpoint)(nil)

func (e *DetectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/detect", e.handler
}

func (e *DetectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Detect layout regions
//	@Description	Run the layout detector on a page image and store the regions
//	@Tags			layout
//	@Accept			mpfd
//	@Produce		json
//	@Param			image		formData	file	true	"Page image"
//	@Param			document_id	formData	string	true	"Document ID"
//	@Param			page_number	formData	int		true	"Page number (1-indexed)"
//	@Success		200			{object}	DetectResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/api/detect [post]
func (e *DetectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	key, err := parsePageKey(r.FormValue("document_id"), r.FormValue("page_number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image uploaded")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read image: %v", err))
		return
	}

	regions, err := svcctx.LayoutFrom(r.Context()).Detect(r.Context(), key, image)
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Warn("detection failed",
			"document_id", key.DocumentID, "page", key.Page, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DetectResponse{Page: key, Regions: regions})
}

func (e *DetectEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <document-id> <page> <image>",
		Short: "Detect layout regions on a page image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			fields := map[string]string{"document_id": args[0], "page_number": args[1]}
			part := api.FilePart{Field: "image", Filename: filepath.Base(args[2]), Content: bytes.NewReader(data)}

			client := api.NewClient(getServerURL())
			var resp DetectResponse
			if err := client.PostMultipart(cmd.Context(), "/api/detect", fields, part, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CompareResponse is the inside/outside split of a page's text.
type CompareResponse struct {
	Page         types.PageKey    `json:"page"`
	InsideCount  int              `json:"inside_count"`
	OutsideCount int              `json:"outside_count"`
	Inside       []types.Fragment `json:"inside"`
	Outside      []types.Fragment `json:"outside"`
}

// CompareEndpoint handles POST /api/compare.
type CompareEndpoint struct{}

var _ api.Endpoint = (*CompareEndpoint)(nil)

func (e *CompareEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/compare", e.handler
}

func (e *CompareEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Compare text with detected regions
//	@Description	Split a page's text fragments into those inside and outside detected regions
//	@Tags			layout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		types.PageKey	true	"Page to compare"
//	@Success		200		{object}	CompareResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/compare [post]
func (e *CompareEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, ok := decodePageKey(w, r)
	if !ok {
		return
	}

	cmp, err := svcctx.LayoutFrom(r.Context()).CompareLayout(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompareResponse{
		Page:         key,
		InsideCount:  len(cmp.Inside),
		OutsideCount: len(cmp.Outside),
		Inside:       cmp.Inside,
		Outside:      cmp.Outside,
	})
}

func (e *CompareEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <document-id> <page>",
		Short: "Compare a page's text with its detected regions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := pageKeyArgs(args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp CompareResponse
			if err := client.Post(cmd.Context(), "/api/compare", key, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReclassifyResponse holds the reconciled regions of a page.
type ReclassifyResponse struct {
	Page    types.PageKey  `json:"page"`
	Regions []types.Region `json:"regions"`
}

// ReclassifyEndpoint handles POST /api/reclassify.
type ReclassifyEndpoint struct{}

var _ api.Endpoint = (*ReclassifyEndpoint)(nil)

func (e *ReclassifyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/reclassify", e.handler
}

func (e *ReclassifyEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reclassify layout
//	@Description	Reconcile a page's detected regions with its text geometry and fonts
//	@Tags			layout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		types.PageKey	true	"Page to reclassify"
//	@Success		200		{object}	ReclassifyResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/reclassify [post]
func (e *ReclassifyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, ok := decodePageKey(w, r)
	if !ok {
		return
	}

	regions, err := svcctx.LayoutFrom(r.Context()).ReclassifyLayout(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReclassifyResponse{Page: key, Regions: regions})
}

func (e *ReclassifyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify <document-id> <page>",
		Short: "Reconcile a page's regions with its text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := pageKeyArgs(args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp ReclassifyResponse
			if err := client.Post(cmd.Context(), "/api/reclassify", key, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func decodePageKey(w http.ResponseWriter, r *http.Request) (types.PageKey, bool) {
	var key types.PageKey
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return key, false
	}
	if err := validatePageKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return key, false
	}
	return key, true
}

func pageKeyArgs(args []string) (types.PageKey, error) {
	page, err := strconv.Atoi(args[1])
	if err != nil {
		return types.PageKey{}, fmt.Errorf("invalid page number %q", args[1])
	}
	return types.PageKey{DocumentID: args[0], Page: page}, nil
}
