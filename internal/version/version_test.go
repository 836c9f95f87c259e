package version

import "testing"

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"no commit", Info{Product: "social-scraper", Version: "dev", Commit: "unknown"}, "social-scraper dev"},
		{"empty commit", Info{Product: "social-scraper", Version: "1.2.0"}, "social-scraper 1.2.0"},
		{"long commit", Info{Product: "social-scraper", Version: "1.2.0", Commit: "0123456789abcdef"}, "social-scraper 1.2.0 (0123456)"},
		{"short commit", Info{Product: "social-scraper", Version: "1.2.0", Commit: "abc"}, "social-scraper 1.2.0 (abc)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Product != Product {
		t.Errorf("Product = %q, want %q", info.Product, Product)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}
}
