package archive

import (
	"net/url"
	"strings"
	"testing"
)

func TestExtractURL(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"check https://example.com/post?id=1 out", "https://example.com/post?id=1"},
		{"http://example.com first, https://other.org second", "http://example.com"},
		{"no links here", ""},
		{"ftp://example.com is not archived", ""},
	}
	for _, c := range cases {
		if got := ExtractURL(c.text); got != c.want {
			t.Errorf("ExtractURL(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestExtractHashtags(t *testing.T) {
	got := ExtractHashtags("save this #Recipe for #dinner #recipe #日本語")
	want := []string{"recipe", "dinner", "日本語"}
	if len(got) != len(want) {
		t.Fatalf("ExtractHashtags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := ExtractHashtags("nothing tagged"); got != nil {
		t.Errorf("ExtractHashtags() = %v, want nil", got)
	}
}

func TestExtractReadable(t *testing.T) {
	html := `<!DOCTYPE html><html><head><title>A Longer Test Article</title></head>
<body>
<nav>home | about | contact</nav>
<article>
<h1>A Longer Test Article</h1>
<p>` + strings.Repeat("This paragraph carries the actual content of the page. ", 20) + `</p>
<p>Closing thoughts about the subject at hand, with enough prose to register as body text.</p>
</article>
<footer>copyright</footer>
</body></html>`

	pageURL, _ := url.Parse("https://example.com/articles/1")
	title, markdown := extractReadable([]byte(html), pageURL)

	if title == "" {
		t.Error("extractReadable() returned empty title")
	}
	if !strings.Contains(markdown, "actual content of the page") {
		t.Errorf("markdown lost the body text: %q", markdown)
	}
}

func TestIsPrivateHost(t *testing.T) {
	private := []string{"localhost", "127.0.0.1", "10.0.0.5", "192.168.1.1", "metadata.google.internal", "169.254.169.254"}
	for _, host := range private {
		if !isPrivateHost(host) {
			t.Errorf("isPrivateHost(%q) = false, want true", host)
		}
	}
	if isPrivateHost("93.184.216.34") {
		t.Error("isPrivateHost blocked a public address")
	}
}
