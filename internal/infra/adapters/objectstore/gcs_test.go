package objectstore

import "testing"

func TestKeyspace(t *testing.T) {
	k := NewKeyspace("media", "https://cdn.example.com/")

	if got := k.PublicURL("pipeline/j1/s1.mp4"); got != "https://cdn.example.com/pipeline/j1/s1.mp4" {
		t.Fatalf("PublicURL = %s", got)
	}
	cases := []struct {
		url string
		key string
		ok  bool
	}{
		{"https://cdn.example.com/pipeline/j1/s1.mp4", "pipeline/j1/s1.mp4", true},
		{"https://storage.googleapis.com/media/a/b.mp4?X-Goog-Signature=abc", "a/b.mp4", true},
		{"gs://media/x.png", "x.png", true},
		{"https://storage.googleapis.com/other/a.mp4", "", false},
		{"https://cdn.example.com/", "", false},
		{"https://provider.example.com/out.mp4", "", false},
	}
	for _, c := range cases {
		key, ok := k.Key(c.url)
		if key != c.key || ok != c.ok {
			t.Errorf("Key(%q) = %q,%v want %q,%v", c.url, key, ok, c.key, c.ok)
		}
	}
}

func TestKeyspaceWithoutCDN(t *testing.T) {
	k := NewKeyspace("media", "")
	if got := k.PublicURL("/a.mp4"); got != "https://storage.googleapis.com/media/a.mp4" {
		t.Fatalf("PublicURL = %s", got)
	}
}

func TestContentTypeForKey(t *testing.T) {
	for key, want := range map[string]string{
		"a.MP4":        "video/mp4",
		"a.png?x=1":    "image/png",
		"track.mp3":    "audio/mpeg",
		"unknown.bin":  "",
		"clip.mov":     "video/quicktime",
		"face.jpeg":    "image/jpeg",
		"overlay.webp": "image/webp",
	} {
		if got := ContentTypeForKey(key); got != want {
			t.Errorf("ContentTypeForKey(%q) = %q want %q", key, got, want)
		}
	}
}
