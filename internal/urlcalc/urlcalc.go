// Package urlcalc computes the URLs a project/group's deployments are
// reachable at. It is the single source of truth used both by the
// Kubernetes backend (to program ingress rules) and by the env-var
// injector (RISE_APP_URL / RISE_APP_URLS).
package urlcalc

import "fmt"

const defaultGroup = "default"

// CustomDomain is a verified domain attached to a project.
type CustomDomain struct {
	Hostname  string
	Primary   bool
	Verified  bool
}

// Project is the subset of project fields the calculator needs.
type Project struct {
	Name          string
	CustomDomains []CustomDomain
}

// Config names the ingress templates: ProductionTemplate takes the
// project name and BaseDomain (default group), StagingTemplate takes the
// project name, the group and BaseDomain (every other group), matching
// the production-vs-staging URL shape.
type Config struct {
	BaseDomain        string
	ProductionTemplate string
	StagingTemplate    string
}

func DefaultConfig() Config {
	return Config{
		BaseDomain:         "rise.app",
		ProductionTemplate: "https://%s.%s",
		StagingTemplate:    "https://%s.%s.%s",
	}
}

// URLs is the full set of URLs a (project, group) resolves to.
type URLs struct {
	DefaultURL       string
	PrimaryURL       string
	CustomDomainURLs []string
}

// Calculate computes the URLs for a project/group pair. Custom domains
// only apply to the default group — other groups (e.g. preview
// branches) never share a project's custom domains.
func Calculate(cfg Config, project Project, group string) URLs {
	defaultURL := defaultURLFor(cfg, project.Name, group)

	var customURLs []string
	var primary string
	if group == defaultGroup {
		for _, d := range project.CustomDomains {
			if !d.Verified {
				continue
			}
			url := "https://" + d.Hostname
			customURLs = append(customURLs, url)
			if d.Primary {
				primary = url
			}
		}
	}

	if primary == "" {
		primary = defaultURL
	}

	return URLs{
		DefaultURL:       defaultURL,
		PrimaryURL:       primary,
		CustomDomainURLs: customURLs,
	}
}

func defaultURLFor(cfg Config, projectName, group string) string {
	if group == "" || group == defaultGroup {
		return fmt.Sprintf(cfg.ProductionTemplate, projectName, cfg.BaseDomain)
	}
	return fmt.Sprintf(cfg.StagingTemplate, projectName, group, cfg.BaseDomain)
}
