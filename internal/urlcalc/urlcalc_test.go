package urlcalc

import (
	"reflect"
	"testing"
)

func TestCalculate(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		project Project
		group   string
		want    URLs
	}{
		{
			name:    "default group, no custom domains",
			project: Project{Name: "acme"},
			group:   "default",
			want: URLs{
				DefaultURL: "https://acme.rise.app",
				PrimaryURL: "https://acme.rise.app",
			},
		},
		{
			name:    "staging group",
			project: Project{Name: "acme"},
			group:   "preview/1",
			want: URLs{
				DefaultURL: "https://acme.preview/1.rise.app",
				PrimaryURL: "https://acme.preview/1.rise.app",
			},
		},
		{
			name: "default group with primary custom domain",
			project: Project{
				Name: "acme",
				CustomDomains: []CustomDomain{
					{Hostname: "shop.example.com", Verified: true},
					{Hostname: "acme.example.com", Verified: true, Primary: true},
				},
			},
			group: "default",
			want: URLs{
				DefaultURL:       "https://acme.rise.app",
				PrimaryURL:       "https://acme.example.com",
				CustomDomainURLs: []string{"https://shop.example.com", "https://acme.example.com"},
			},
		},
		{
			name: "unverified custom domains are excluded",
			project: Project{
				Name: "acme",
				CustomDomains: []CustomDomain{
					{Hostname: "unverified.example.com", Verified: false},
				},
			},
			group: "default",
			want: URLs{
				DefaultURL: "https://acme.rise.app",
				PrimaryURL: "https://acme.rise.app",
			},
		},
		{
			name: "custom domains do not apply to non-default groups",
			project: Project{
				Name: "acme",
				CustomDomains: []CustomDomain{
					{Hostname: "acme.example.com", Verified: true, Primary: true},
				},
			},
			group: "preview/1",
			want: URLs{
				DefaultURL: "https://acme.preview/1.rise.app",
				PrimaryURL: "https://acme.preview/1.rise.app",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(cfg, tt.project, tt.group)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Calculate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
