package browser

import (
	"context"
	"fmt"

	"chatpilot/internal/domain"

	"github.com/chromedp/chromedp"
)

// FilePicker satisfies the file-selection step by setting the files of the
// page's file input directly over CDP, which is how a headless session
// replaces the native dialog.
type FilePicker struct {
	driver   *Driver
	selector string
}

func NewFilePicker(driver *Driver, fileInputSelector string) *FilePicker {
	return &FilePicker{driver: driver, selector: fileInputSelector}
}

func (p *FilePicker) Choose(ctx context.Context, path string) error {
	if p.selector == "" {
		return fmt.Errorf("file input selector is not configured")
	}
	if err := p.driver.run(ctx, chromedp.SetUploadFiles(p.selector, []string{path}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("set upload file %s: %w", path, err)
	}
	return nil
}

var _ domain.FilePicker = (*FilePicker)(nil)
