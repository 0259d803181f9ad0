package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractGoodPage(t *testing.T) {
	t.Parallel()

	got := Extract([]byte(goodPage))
	want := Extraction{
		Title:        "Acme Plumbing | Austin TX Plumbers",
		Description:  "Licensed Austin plumbers offering 24/7 emergency repairs, water heaters and drain cleaning.",
		Emails:       []string{"info@acmeplumbing.com"},
		Phones:       []string{"5125550100"},
		SocialLinks:  []string{"https://www.facebook.com/acmeplumbing"},
		Technologies: []string{"WordPress"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("extraction mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMarkersAndContacts(t *testing.T) {
	t.Parallel()

	page := `<html><head><link rel="stylesheet" href="https://static1.squarespace.com/site.css"></head><body>
<p>Reach us at SALES@shop.example or 512.555.0199, or +1 (737) 555-0123.</p>
<a href="https://instagram.com/shop">IG</a><a href="https://twitter.com/intent/tweet?text=hi">Tweet</a>
<a href="https://www.youtube.com/@shop">YT</a><a href="/about">About</a>
</body></html>`
	got := Extract([]byte(page))
	want := Extraction{
		Emails:       []string{"sales@shop.example"},
		Phones:       []string{"5125550199", "7375550123"},
		SocialLinks:  []string{"https://instagram.com/shop", "https://www.youtube.com/@shop"},
		Technologies: []string{"Squarespace"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("extraction mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractUnknownGenerator(t *testing.T) {
	t.Parallel()

	got := Extract([]byte(`<html><head><meta name="Generator" content="Hugo 0.120"></head><body></body></html>`))
	if diff := cmp.Diff([]string{"Hugo"}, got.Technologies); diff != "" {
		t.Fatalf("technologies mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAdjacentBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		html       string
		wantEmails []string
		wantPhones []string
	}{
		{
			name:       "paragraphs",
			html:       `<html><body><p>Email us: info@acmeplumbing.com</p><p>Call 512-555-0100</p><footer>Follow us</footer></body></html>`,
			wantEmails: []string{"info@acmeplumbing.com"},
			wantPhones: []string{"5125550100"},
		},
		{
			name:       "list items",
			html:       `<html><body><ul><li>office@acme.com</li><li>Hours</li><li>(512) 555-0199</li><li>Mon-Fri</li></ul></body></html>`,
			wantEmails: []string{"office@acme.com"},
			wantPhones: []string{"5125550199"},
		},
		{
			name: "script text ignored",
			html: `<html><body><script>var e="bot@tracker.io"</script><div>hello@denverdental.net</div></body></html>`,
			wantEmails: []string{"hello@denverdental.net"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract([]byte(tt.html))
			if diff := cmp.Diff(tt.wantEmails, got.Emails); diff != "" {
				t.Errorf("emails mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPhones, got.Phones); diff != "" {
				t.Errorf("phones mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
