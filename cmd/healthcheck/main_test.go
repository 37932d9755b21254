package main

import "testing"

func TestTarget(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"default port", nil, "http://127.0.0.1:42069/healthz"},
		{"callback port", map[string]string{"CALLBACK_PORT": "8099"}, "http://127.0.0.1:8099/healthz"},
		{"http addr wins", map[string]string{"CALLBACK_PORT": "8099", "HTTP_ADDR": "0.0.0.0:9000"}, "http://0.0.0.0:9000/healthz"},
		{"port only addr", map[string]string{"HTTP_ADDR": ":9001"}, "http://127.0.0.1:9001/healthz"},
		{"explicit url", map[string]string{"HEALTHCHECK_URL": "http://bot:1/healthz"}, "http://bot:1/healthz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"HEALTHCHECK_URL", "HTTP_ADDR", "CALLBACK_PORT"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := target()
			if err != nil {
				t.Fatalf("target: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Setenv("HEALTHCHECK_URL", "")
	t.Setenv("CALLBACK_PORT", "not-a-port")
	if _, err := target(); err == nil {
		t.Error("expected error for invalid CALLBACK_PORT")
	}
}
