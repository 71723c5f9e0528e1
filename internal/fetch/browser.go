package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the visible text length below which a page is assumed
// to need JavaScript to render.
const MinContentLength = 200

// ShouldUseBrowser reports whether extracted text is too short to be useful.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// BrowserRenderer returns a Renderer backed by headless Chrome. Chrome or
// Chromium must be installed.
func BrowserRenderer(timeout time.Duration) Renderer {
	return func(ctx context.Context, url string) (string, error) {
		allocCtx, cancel := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
			)...,
		)
		defer cancel()

		browserCtx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
		defer cancel()

		var html string
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body"),
			chromedp.Sleep(2*time.Second),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return "", fmt.Errorf("browser rendering failed: %w", err)
		}
		return html, nil
	}
}
