package security

import "testing"

func TestSanitizeText_RemovesMarkup(t *testing.T) {
	s := NewDisplaySanitizer()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"プレーンテキストはそのまま", "ボーカル合成中 (3/5)", "ボーカル合成中 (3/5)"},
		{"scriptタグ除去", `<script>alert(1)</script>マスタリング中`, "マスタリング中"},
		{"imgタグ除去", `生成中<img src=x onerror=alert(1)>`, "生成中"},
		{"装飾タグも全て除去", "<b>rendering</b> <i>vocals</i>", "rendering vocals"},
		{"空文字列", "", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := s.SanitizeText(c.in); got != c.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewDisplaySanitizer()

	in := `<a href="https://example.com">mix</a> 完了`
	once := s.SanitizeText(in)
	twice := s.SanitizeText(once)
	if once != twice {
		t.Errorf("サニタイズは冪等でなければならない: %q != %q", once, twice)
	}
}

func TestValidateURL_AllowsPublicHTTPS(t *testing.T) {
	g := NewArtifactGuard()

	valid := []string{
		"https://cdn.example.com/songs/a.mp3",
		"http://media.example.net/video.mp4",
		"https://93.184.216.34/result.wav",
	}
	for _, u := range valid {
		if err := g.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURL_BlocksDangerousTargets(t *testing.T) {
	g := NewArtifactGuard()

	blocked := []string{
		"",
		"ftp://example.com/a.mp3",
		"file:///etc/passwd",
		"https://localhost/a.mp3",
		"http://127.0.0.1:8080/a.mp3",
		"http://10.0.0.5/a.mp3",
		"http://192.168.1.10/a.mp3",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/a.mp3",
	}
	for _, u := range blocked {
		if err := g.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) はブロックされるべき", u)
		}
	}
}
