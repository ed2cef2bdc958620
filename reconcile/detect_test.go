package reconcile

import (
	"testing"

	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
)

const picsum = "https://picsum.photos"

func TestPlaceholderURL(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		index    int
		category string
		expected string
	}{
		{name: "name label", id: "12345", index: 0, category: "LIGHTING", expected: picsum + "/seed/2445/800/800"},
		{name: "slug label", id: "12345", index: 0, category: "1-LIGHTING", expected: picsum + "/seed/2445/800/800"},
		{name: "index offsets", id: "12345", index: 2, category: "SEATING", expected: picsum + "/seed/2547/800/800"},
		{name: "non digits ignored", id: "AM-9-87", index: 0, category: "ARCHIVE", expected: picsum + "/seed/1787/800/800"},
		{name: "no digits", id: "lamp", index: 1, category: "TABLES", expected: picsum + "/seed/401/800/800"},
		{name: "unknown category", id: "7", index: 0, category: "GARDEN", expected: picsum + "/seed/507/800/800"},
		{name: "hyphenated name", id: "3", index: 0, category: "JUST-LANDED", expected: picsum + "/seed/603/800/800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlaceholderURL(picsum+"/", tt.id, tt.index, tt.category)
			if got != tt.expected {
				t.Fatalf("PlaceholderURL(%q, %d, %q) = %q, want %q", tt.id, tt.index, tt.category, got, tt.expected)
			}
			if again := PlaceholderURL(picsum+"/", tt.id, tt.index, tt.category); again != got {
				t.Fatalf("placeholder not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestDetection(t *testing.T) {
	small := "https://cdn.test/" + parser.SmallVariantHash + "/a.jpg"

	if !IsExpired("https://bucket.s3.amazonaws.com/a.jpg") || !IsExpired("https://cdn.test/a.jpg?X-Amz-Signature=x") {
		t.Fatalf("signed urls should be expired")
	}
	if IsExpired("https://cdn.test/a.jpg") {
		t.Fatalf("plain url reported expired")
	}
	if !IsSmallVariant(small) || IsSmallVariant(parser.UpgradeVariant(small)) {
		t.Fatalf("small variant detection wrong")
	}
	if !HasEntityCorruption([]models.ProductImage{{URL: "https://a.test/"}, {URL: "https://a.test/?a=1&amp;b=2"}}) {
		t.Fatalf("encoded ampersand not detected")
	}
	if !HasEntityCorruption([]models.ProductImage{{URL: "https://a.test/x&#x2F;y.jpg"}}) {
		t.Fatalf("encoded slash not detected")
	}
	if HasEntityCorruption([]models.ProductImage{{URL: "https://a.test/?a=1&b=2"}}) {
		t.Fatalf("decoded url reported corrupted")
	}
	if !IsPlaceholder(picsum+"/seed/1/800/800", picsum) || IsPlaceholder("https://cdn.test/a.jpg", picsum) {
		t.Fatalf("placeholder detection wrong")
	}
}

func TestStrategySet(t *testing.T) {
	if !All.Has(RepairRefetch) || Offline.Has(RepairRefetch) {
		t.Fatalf("offline must exclude refetch")
	}
	if !Offline.Has(RepairEntities | RepairPlaceholder) {
		t.Fatalf("offline should include entities and placeholder")
	}
	if got := (RepairPlaceholder | RepairEntities).String(); got != "entities+placeholder" {
		t.Fatalf("String() = %q", got)
	}
	if got := Strategy(0).String(); got != "none" {
		t.Fatalf("String() = %q", got)
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		start, end, n int
		wantStart     int
		wantEnd       int
	}{
		{0, -1, 5, 0, 5},
		{1, 3, 5, 1, 3},
		{-2, 9, 5, 0, 5},
		{4, 2, 5, 2, 2},
		{7, 9, 5, 5, 5},
	}
	for _, tt := range tests {
		s, e := clampRange(tt.start, tt.end, tt.n)
		if s != tt.wantStart || e != tt.wantEnd {
			t.Errorf("clampRange(%d, %d, %d) = (%d, %d), want (%d, %d)", tt.start, tt.end, tt.n, s, e, tt.wantStart, tt.wantEnd)
		}
	}
}
