package feeds

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeOPML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.opml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write OPML: %v", err)
	}
	return path
}

func TestReadOPML(t *testing.T) {
	path := writeOPML(t, `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline text="Tech" title="Tech Blog" type="rss" xmlUrl="https://example.com/tech.xml" htmlUrl="https://example.com/tech"/>
    <outline text="News" type="rss" xmlUrl="https://example.com/news.xml"/>
    <outline type="rss" xmlUrl="https://example.com/untitled.xml"/>
  </body>
</opml>`)

	outlines, err := ReadOPML(path)
	if err != nil {
		t.Fatalf("ReadOPML failed: %v", err)
	}
	if len(outlines) != 3 {
		t.Fatalf("expected 3 outlines, got %d", len(outlines))
	}
	if outlines[0].Title != "Tech Blog" || outlines[0].HTMLURL != "https://example.com/tech" {
		t.Errorf("unexpected first outline: %+v", outlines[0])
	}
	if outlines[1].Title != "News" {
		t.Errorf("title should fall back to text, got %q", outlines[1].Title)
	}
	if outlines[2].Title != "" {
		t.Errorf("untitled outline should have no title, got %q", outlines[2].Title)
	}
}

func TestReadOPMLNestedFolders(t *testing.T) {
	path := writeOPML(t, `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline text="Technology">
      <outline text="Security">
        <outline text="Krebs" type="rss" xmlUrl="https://example.com/krebs.xml"/>
      </outline>
      <outline text="Dev" type="rss" xmlUrl="https://example.com/dev.xml"/>
    </outline>
    <outline text="Top Level" type="rss" xmlUrl="https://example.com/top.xml"/>
  </body>
</opml>`)

	outlines, err := ReadOPML(path)
	if err != nil {
		t.Fatalf("ReadOPML failed: %v", err)
	}
	want := []string{
		"https://example.com/krebs.xml",
		"https://example.com/dev.xml",
		"https://example.com/top.xml",
	}
	if len(outlines) != len(want) {
		t.Fatalf("expected %d outlines, got %d", len(want), len(outlines))
	}
	for i, w := range want {
		if outlines[i].XMLURL != w {
			t.Errorf("outline %d = %q, want %q", i, outlines[i].XMLURL, w)
		}
	}
}

func TestReadOPMLMissingFile(t *testing.T) {
	if _, err := ReadOPML("/nonexistent/feeds.opml"); err == nil {
		t.Fatal("expected error for missing OPML file, got nil")
	}
}

func TestWriteOPMLRoundTrip(t *testing.T) {
	in := []Outline{
		{Title: "Alpha", XMLURL: "https://a.example/rss", HTMLURL: "https://a.example"},
		{Title: "Beta", XMLURL: "https://b.example/atom"},
	}

	var buf bytes.Buffer
	if err := WriteOPML(&buf, "subscriptions", in); err != nil {
		t.Fatalf("WriteOPML failed: %v", err)
	}

	out, err := ParseOPML(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseOPML failed: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
