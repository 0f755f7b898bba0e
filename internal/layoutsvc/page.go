package layoutsvc

import (
	"context"
	"errors"

	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/types"
)

// PageState is everything recorded for one page. Steps that have not run
// yet leave their field nil.
type PageState struct {
	Key          types.PageKey         `json:"page"`
	Text         *pagestore.PageText   `json:"text,omitempty"`
	Regions      []types.Region        `json:"regions,omitempty"`
	Comparison   *pagestore.Comparison `json:"comparison,omitempty"`
	Reclassified []types.Region        `json:"reclassified,omitempty"`
	HasImage     bool                  `json:"has_image"`
}

// Page returns the recorded state for a page of an existing document.
func (s *Service) Page(ctx context.Context, key types.PageKey) (*PageState, error) {
	if err := s.checkPage(ctx, key); err != nil {
		return nil, err
	}

	state := &PageState{Key: key}
	var err error

	if state.Text, err = s.store.PageText(ctx, key); err != nil && !errors.Is(err, pagestore.ErrNotFound) {
		return nil, err
	}
	if state.Regions, err = s.store.Regions(ctx, key); err != nil && !errors.Is(err, pagestore.ErrNotFound) {
		return nil, err
	}
	if state.Comparison, err = s.store.Comparison(ctx, key); err != nil && !errors.Is(err, pagestore.ErrNotFound) {
		return nil, err
	}
	if state.Reclassified, err = s.store.Reclassified(ctx, key); err != nil && !errors.Is(err, pagestore.ErrNotFound) {
		return nil, err
	}
	_, imgErr := s.home.FindPageImage(key.DocumentID, key.Page)
	state.HasImage = imgErr == nil
	return state, nil
}

// PageImage returns the path of the image last used for detection on a page.
func (s *Service) PageImage(ctx context.Context, key types.PageKey) (string, error) {
	if err := s.checkPage(ctx, key); err != nil {
		return "", err
	}
	path, err := s.home.FindPageImage(key.DocumentID, key.Page)
	if err != nil {
		return "", pagestore.ErrNotFound
	}
	return path, nil
}
