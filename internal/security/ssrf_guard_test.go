package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSSRFGuard_ClientTimeout(t *testing.T) {
	client := NewSSRFGuard().Client(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 5*time.Second)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected a dedicated transport")
	}
}

// httptestサーバーはループバックで待ち受けるため、接続は拒否される。
func TestSSRFGuard_ClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	_, err := NewSSRFGuard().Client(5 * time.Second).Get(ts.URL)
	if err == nil {
		t.Fatal("expected loopback request to fail")
	}
}

func TestSSRFGuard_ValidateURL(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開https", "https://example.com/feed.xml", false},
		{"公開http", "http://example.com/rss", false},
		{"明示的な443", "https://example.com:443/feed", false},
		{"空", "", true},
		{"ftp", "ftp://example.com/feed", true},
		{"file", "file:///etc/passwd", true},
		{"ホストなし", "https:///feed", true},
		{"localhost", "http://localhost/feed", true},
		{"サブドメインlocalhost", "http://app.localhost/feed", true},
		{"非標準ポート", "https://example.com:8443/feed", true},
		{"プライベート10", "http://10.0.0.1/feed", true},
		{"プライベート172", "http://172.16.3.4/feed", true},
		{"プライベート192", "http://192.168.1.1/feed", true},
		{"ループバック", "http://127.0.0.1/feed", true},
		{"メタデータ", "http://169.254.169.254/latest/meta-data", true},
		{"ゼロアドレス", "http://0.0.0.0/feed", true},
		{"CGNAT", "http://100.64.0.1/feed", true},
		{"IPv6ループバック", "http://[::1]/feed", true},
		{"IPv4射影IPv6", "http://[::ffff:127.0.0.1]/feed", true},
		{"IPv6ユニークローカル", "http://[fd00::1]/feed", true},
		{"公開IPv4", "http://93.184.216.34/feed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
