package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// BrowserFetcher renders pages in headless Chromium, for listings that build
// their event cards client-side.
type BrowserFetcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout time.Duration
}

func NewBrowserFetcher(timeout time.Duration) (*BrowserFetcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     []string{"--disable-gpu", "--disable-dev-shm-usage", "--no-sandbox"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &BrowserFetcher{pw: pw, browser: browser, timeout: timeout}, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := f.browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(f.timeout.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("failed to load %s: %w", pageURL, err)
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	return html, nil
}

func (f *BrowserFetcher) Close() error {
	if err := f.browser.Close(); err != nil {
		_ = f.pw.Stop()
		return err
	}
	return f.pw.Stop()
}
