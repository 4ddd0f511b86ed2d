package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		{
			name:     "explicit locale header wins",
			headers:  map[string]string{"X-Locale": "id-ID"},
			fallback: "en",
			want:     "id",
		},
		{
			name:     "accept-language header",
			headers:  map[string]string{"Accept-Language": "id-ID,en;q=0.8"},
			fallback: "en",
			want:     "id",
		},
		{
			name:     "country falls back to id locale",
			country:  "ID",
			fallback: "en",
			want:     "id",
		},
		{
			name:     "other country falls back to en",
			country:  "US",
			fallback: "id",
			want:     "en",
		},
		{
			name:     "nothing resolved uses fallback",
			fallback: "id",
			want:     "id",
		},
		{
			name: "nothing resolved and no fallback defaults to en",
			want: "en",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got := detectLocale(r, tt.fallback, tt.country)
			if got != tt.want {
				t.Errorf("detectLocale() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{
			name:    "explicit country header",
			headers: map[string]string{"CF-IPCountry": "sg"},
			want:    "SG",
		},
		{
			name:    "locale header region",
			headers: map[string]string{"X-Locale": "en-GB"},
			want:    "GB",
		},
		{
			name:    "id locale with no region implies ID",
			headers: map[string]string{"X-Locale": "id"},
			want:    "ID",
		},
		{
			name: "falls back to geo lookup",
			lookup: func(ip string) (string, error) {
				return "jp", nil
			},
			want: "JP",
		},
		{
			name:   "lookup error yields empty",
			lookup: func(ip string) (string, error) { return "", errUnavailableForTest },
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "198.51.100.10:1234"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got := ResolveCountry(r, tt.lookup)
			if got != tt.want {
				t.Errorf("ResolveCountry() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestI18NMiddlewareStoresLocaleAndCountry(t *testing.T) {
	var gotLocale, gotCountry string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	})

	handler := I18N("en", nil)(next)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Locale", "id-ID")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if gotLocale != "id" {
		t.Errorf("locale = %q, want %q", gotLocale, "id")
	}
	if gotCountry != "ID" {
		t.Errorf("country = %q, want %q", gotCountry, "ID")
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := map[string]string{
		"id":    "id",
		"ID-id": "id",
		"en-US": "en",
		"fr":    "en",
		"":      "en",
	}
	for in, want := range tests {
		if got := normalizeLocale(in); got != want {
			t.Errorf("normalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

var errUnavailableForTest = ErrUnavailableForTest{}

// ErrUnavailableForTest stands in for a lookup failure without importing the
// geoip package into the middleware test.
type ErrUnavailableForTest struct{}

func (ErrUnavailableForTest) Error() string { return "lookup unavailable" }
