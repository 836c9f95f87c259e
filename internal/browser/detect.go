package browser

import (
	"strings"

	"github.com/go-rod/rod"
)

// Block describes why a page did not show the expected content.
type Block string

const (
	BlockNone        Block = "none"
	BlockLoginWall   Block = "login_wall"
	BlockRateLimited Block = "rate_limited"
	BlockSuspended   Block = "suspended"
	BlockNotFound    Block = "not_found"
	BlockError       Block = "error"
)

// ClassifyPage inspects a page's URL and visible text.
func ClassifyPage(pageURL, text string) Block {
	if strings.Contains(pageURL, "/i/flow/login") || strings.HasSuffix(strings.TrimSuffix(pageURL, "/"), "/login") {
		return BlockLoginWall
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rate limit exceeded"):
		return BlockRateLimited
	case strings.Contains(lower, "account suspended"), strings.Contains(lower, "account is suspended"):
		return BlockSuspended
	case strings.Contains(lower, "this account doesn"), strings.Contains(lower, "hmm...this page doesn"):
		return BlockNotFound
	case strings.Contains(lower, "something went wrong. try reloading"):
		return BlockError
	}
	return BlockNone
}

// detectBlock reads the current page state. Failures read as BlockNone.
func detectBlock(page *rod.Page) Block {
	info, err := page.Info()
	if err != nil {
		return BlockNone
	}
	res, err := page.Eval(`() => document.body ? document.body.innerText.slice(0, 4000) : ''`)
	if err != nil {
		return ClassifyPage(info.URL, "")
	}
	return ClassifyPage(info.URL, res.Value.Str())
}
