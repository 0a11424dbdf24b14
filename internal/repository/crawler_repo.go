package repository

import (
	"context"

	"github.com/user/sitemirror/internal/entity"
)

// Renderer defines the contract for loading a page in a headless browser.
type Renderer interface {
	// Render navigates to url, waits for the page to settle and returns the final markup.
	// Navigation failures wrap ErrNavigationFailed, ErrNavigationTimeout or ErrBadStatus.
	Render(ctx context.Context, url string) (*entity.RenderedPage, error)
	// Close releases the browser.
	Close()
}
