package parser

import (
	"strings"
	"testing"

	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/google/go-cmp/cmp"
)

const listingHTML = `<html><body>
<ul class="products">
  <li>
    <a href="/categories/1-LIGHTING/123-brass-lamp"><img src="/rails/active_storage/representations/abc/200x200/lamp.jpg"></a>
    <a href="/categories/1-LIGHTING/123-brass-lamp"><h2>Brass Lamp</h2><p>$650.00 L585 VA</p></a>
  </li>
  <li>
    <a href="/categories/1-LIGHTING/456-oak-chair"><h2>Oak Chair</h2><p>sold</p></a>
  </li>
  <li>
    <a href="/categories/1-LIGHTING/123-brass-lamp?ref=dup"><h2>Brass Lamp Again</h2></a>
  </li>
  <li>
    <a href="/categories/1-LIGHTING/789-no-name"><h2>  </h2></a>
  </li>
  <li>
    <a href="/about"><h2>About us</h2></a>
  </li>
  <li>
    <a href="/categories/1-LIGHTING/321-desk-lamp"><h2>Desk Lamp</h2><p>$1,250.00 T120 available: 3</p></a>
  </li>
</ul>
<div class="pagination">
  <a href="/categories/1-LIGHTING?page=1">1</a>
  <a href="/categories/1-LIGHTING?page=2">2</a>
  <a href="/categories/1-LIGHTING?page=7">7</a>
  <a href="/categories/1-LIGHTING?order=added_new-old&amp;page=2">Next ›</a>
</div>
</body></html>`

func TestExtractListingScenario(t *testing.T) {
	e := NewSiteExtractor("active_storage")
	page := e.ExtractListing(listingHTML, "LIGHTING")

	if page.TotalPages != 7 {
		t.Fatalf("total pages = %d, want 7", page.TotalPages)
	}
	if page.NextPageURL != "/categories/1-LIGHTING?order=added_new-old&page=2" {
		t.Fatalf("next page = %q", page.NextPageURL)
	}

	ids := make([]string, 0, len(page.Products))
	for _, p := range page.Products {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"123", "456", "321"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	n := NewNormalizer(testOrigin)
	lamp := n.Normalize(page.Products[0])
	if lamp.Price != 650 || lamp.PriceFormatted != "$650.00" || lamp.Available != 1 {
		t.Fatalf("lamp = %+v", lamp)
	}
	if lamp.SKU != "L585 VA" || lamp.Slug != "brass-lamp" || lamp.Name != "Brass Lamp" {
		t.Fatalf("lamp identity = %+v", lamp)
	}
	if lamp.Category != "LIGHTING" {
		t.Fatalf("category = %q", lamp.Category)
	}
	if lamp.URL != testOrigin+"/categories/1-LIGHTING/123-brass-lamp" {
		t.Fatalf("url = %q", lamp.URL)
	}
	wantImages := []models.ProductImage{{URL: testOrigin + "/rails/active_storage/representations/abc/200x200/lamp.jpg", Alt: "Brass Lamp"}}
	if diff := cmp.Diff(wantImages, lamp.Images); diff != "" {
		t.Fatalf("thumbnail mismatch (-want +got):\n%s", diff)
	}

	chair := n.Normalize(page.Products[1])
	if chair.Price != 0 || chair.PriceFormatted != "sold" || chair.Available != 0 {
		t.Fatalf("chair = %+v", chair)
	}
	if len(chair.Images) != 0 {
		t.Fatalf("chair should have no thumbnail, got %+v", chair.Images)
	}

	desk := n.Normalize(page.Products[2])
	if desk.Price != 1250 || desk.Available != 3 || desk.SKU != "T120" {
		t.Fatalf("desk = %+v", desk)
	}
}

func TestExtractListingEmptyPage(t *testing.T) {
	e := NewSiteExtractor("active_storage")
	page := e.ExtractListing("<html><body><p>nothing here</p></body></html>", "LIGHTING")
	if len(page.Products) != 0 || page.NextPageURL != "" || page.TotalPages != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page = e.ExtractListing("<div><a href=", "LIGHTING")
	if len(page.Products) != 0 {
		t.Fatalf("malformed markup produced products: %+v", page.Products)
	}
}

func TestExtractDetailScenario(t *testing.T) {
	description := strings.TrimSpace(strings.Repeat("teak ", 150))
	html := `<html><body>
<p>Short.</p>
<p>Pierre Jeanneret / Chandigarh / India</p>
<p>` + description + `</p>
<p>hello@amsterdammodern.com / call us</p>
<p>© 2024 Amsterdam Modern</p>
<table>
  <tr><td>Material:</td><td>Teak</td></tr>
  <tr><td>Size:</td><td>30 W x 20 D x 18 H</td></tr>
</table>
<img src="/rails/active_storage/representations/redirect/xyz/300x200/chair.jpg">
<img src="/rails/active_storage/representations/redirect/xyz/300x200/chair.jpg">
<img src="/rails/active_storage/blobs/redirect/abc/chair2.jpg">
<img src="/assets/logo.png">
</body></html>`

	d := NewSiteExtractor("active_storage").ExtractDetail(html, "Chandigarh Chair")

	if d.Designer != "Pierre Jeanneret / Chandigarh / India" {
		t.Fatalf("designer = %q", d.Designer)
	}
	if d.Description != description {
		t.Fatalf("description = %q", d.Description)
	}
	if d.Dimensions != "30 W x 20 D x 18 H" {
		t.Fatalf("dimensions = %q", d.Dimensions)
	}

	want := []models.ProductImage{
		{URL: "/rails/active_storage/representations/redirect/xyz/800x600/chair.jpg", Alt: "Chandigarh Chair"},
		{URL: "/rails/active_storage/blobs/redirect/abc/chair2.jpg", Alt: "Chandigarh Chair"},
	}
	if diff := cmp.Diff(want, d.Images); diff != "" {
		t.Fatalf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDetailLastMatchWins(t *testing.T) {
	html := `<p>First Designer / Italy</p><p>Second Designer / France</p>`
	d := NewSiteExtractor("active_storage").ExtractDetail(html, "x")
	if d.Designer != "Second Designer / France" {
		t.Fatalf("designer = %q", d.Designer)
	}
	if d.Description != "" || d.Dimensions != "" || len(d.Images) != 0 {
		t.Fatalf("unexpected detail: %+v", d)
	}
}

func TestExtractImageCandidates(t *testing.T) {
	html := `<html><body>
<img srcset="https://ammod-pro.s3.amazonaws.com/a-small.jpg?sig=1&amp;x=2 1x, https://ammod-pro.s3.amazonaws.com/a-large.jpg?sig=1&amp;y=2 2x">
<img src="https://ammod-pro.s3.amazonaws.com/b.jpg">
<div style="background-image: url('https://ammod-pro.s3.amazonaws.com/c.jpg')"></div>
<script type="application/ld+json">{"image": "https://ammod-pro.s3.amazonaws.com/b.jpg"}</script>
<script type="application/ld+json">{"image": "https://ammod-pro.s3.amazonaws.com/d.jpg"}</script>
<img src="https://other.cdn.example/x.jpg">
</body></html>`

	got := NewSiteExtractor("active_storage").ExtractImageCandidates(html, "ammod-pro.s3")
	want := []models.ProductImage{
		{URL: "https://ammod-pro.s3.amazonaws.com/a-large.jpg?sig=1&y=2"},
		{URL: "https://ammod-pro.s3.amazonaws.com/b.jpg"},
		{URL: "https://ammod-pro.s3.amazonaws.com/c.jpg"},
		{URL: "https://ammod-pro.s3.amazonaws.com/d.jpg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}

	if none := NewSiteExtractor("active_storage").ExtractImageCandidates("<p>no images</p>", "ammod-pro.s3"); len(none) != 0 {
		t.Fatalf("expected no candidates, got %+v", none)
	}
}
